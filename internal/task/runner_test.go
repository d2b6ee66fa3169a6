package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestRunner_RunsEveryTaskOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRunner(time.Second)
	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		r.Go(context.Background(), "count", func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})
	}
	r.Wait()

	assert.Equal(t, int32(5), calls.Load())
}

func TestRunner_FailureIsNotRetried(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRunner(time.Second)
	var calls atomic.Int32
	r.Go(context.Background(), "fail", func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("boom")
	})
	r.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestRunner_DetachedFromCallerCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRunner(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ctxErr error
	r.Go(ctx, "detached", func(ctx context.Context) error {
		ctxErr = ctx.Err()
		return nil
	})
	r.Wait()

	assert.NoError(t, ctxErr)
}

func TestRunner_RecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRunner(0)
	r.Go(context.Background(), "panic", func(ctx context.Context) error {
		panic("boom")
	})
	r.Wait()
}

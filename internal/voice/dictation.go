package voice

import (
	"context"
	"strings"
	"sync"

	"github.com/set-night/sofia/internal/domain"
)

// Dictation is a one-shot use of the recognizer outside the conversation
// loop. It never changes controller state.
type Dictation struct {
	mu     sync.Mutex
	rec    Recognizer
	active bool
}

func NewDictation(rec Recognizer) *Dictation {
	return &Dictation{rec: rec}
}

// Take is one dictation in flight.
type Take struct {
	d      *Dictation
	result chan takeResult
	once   sync.Once
}

type takeResult struct {
	text string
	err  error
}

// Begin starts recognition once. Only one take may be open at a time.
func (d *Dictation) Begin(ctx context.Context) (*Take, error) {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return nil, domain.ErrVoiceBusy
	}
	d.active = true
	d.mu.Unlock()

	t := &Take{d: d, result: make(chan takeResult, 1)}
	if err := d.rec.Start(ctx, t); err != nil {
		t.finish("", err)
		return nil, err
	}
	return t, nil
}

// Wait returns the transcript. No speech yields ErrNoSpeech.
func (t *Take) Wait(ctx context.Context) (string, error) {
	select {
	case r := <-t.result:
		return r.text, r.err
	case <-ctx.Done():
		t.d.rec.Abort()
		t.finish("", ctx.Err())
		return "", ctx.Err()
	}
}

func (t *Take) finish(text string, err error) {
	t.once.Do(func() {
		t.result <- takeResult{text: text, err: err}
		t.d.mu.Lock()
		t.d.active = false
		t.d.mu.Unlock()
	})
}

func (t *Take) FinalTranscript(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		t.NoSpeech()
		return
	}
	t.finish(text, nil)
}

func (t *Take) NoSpeech() {
	t.finish("", &domain.SpeechError{Code: domain.SpeechNoSpeech})
}

func (t *Take) RecognitionFailed(err error) { t.finish("", err) }

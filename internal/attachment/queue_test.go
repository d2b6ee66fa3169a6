package attachment

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/set-night/sofia/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1 << 20

func newTestQueue() *Queue {
	return NewQueue(Limits{MaxTotalBytes: 10 * mib, MaxFileBytes: 10 * mib, DecodeTimeout: time.Second})
}

func memFile(name, mime string, data []byte) File {
	return File{
		Name:     name,
		MimeType: mime,
		Size:     int64(len(data)),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// blockingFile decodes only after release is closed.
func blockingFile(name string, size int, release <-chan struct{}) File {
	return File{
		Name:     name,
		MimeType: "application/pdf",
		Size:     int64(size),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return io.NopCloser(bytes.NewReader(make([]byte, size))), nil
		},
	}
}

func TestQueue_SecondFileOverCeilingIsRejected(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()

	firstID, err := q.Add(ctx, KindDocument, memFile("a.pdf", "application/pdf", make([]byte, 6*mib)))
	require.NoError(t, err)

	_, err = q.Add(ctx, KindDocument, memFile("b.pdf", "application/pdf", make([]byte, 6*mib)))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.RejectTooLarge, verr.Reason)
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, q.Settle(ctx))
	snap := q.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, firstID, snap[0].ID)
	assert.Equal(t, int64(6*mib), q.Reserved())
}

func TestQueue_SingleFileOverPerFileCeiling(t *testing.T) {
	q := NewQueue(Limits{MaxTotalBytes: 10 * mib, MaxFileBytes: 2 * mib})

	_, err := q.Add(context.Background(), KindDocument, memFile("big.png", "image/png", make([]byte, 3*mib)))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.RejectTooLarge, verr.Reason)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_TypeAllowLists(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()

	tests := []struct {
		name    string
		kind    Kind
		file    string
		mime    string
		allowed bool
	}{
		{"image by mime", KindDocument, "photo", "image/jpeg", true},
		{"pdf document", KindDocument, "report.PDF", "application/pdf", true},
		{"docx document", KindDocument, "notes.docx", "application/octet-stream", true},
		{"code in document picker", KindDocument, "main.go", "text/plain", false},
		{"go source", KindCode, "main.go", "text/plain", true},
		{"kotlin source", KindCode, "App.kt", "", true},
		{"pdf in code picker", KindCode, "report.pdf", "application/pdf", false},
		{"executable", KindDocument, "setup.exe", "application/octet-stream", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Add(ctx, tt.kind, memFile(tt.file, tt.mime, []byte("x")))
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, domain.RejectTypeNotAllowed, verr.Reason)
		})
	}
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, KindCode, KindFor("script.PY"))
	assert.Equal(t, KindDocument, KindFor("paper.pdf"))
	assert.Equal(t, KindDocument, KindFor("noext"))
}

func TestQueue_SnapshotEncodesAndDoesNotMutate(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()

	_, err := q.Add(ctx, KindCode, memFile("a.txt", "text/plain", []byte("hello")))
	require.NoError(t, err)
	require.NoError(t, q.Settle(ctx))

	first := q.Snapshot()
	require.Len(t, first, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello")), first[0].Payload)

	first[0].Name = "changed"
	second := q.Snapshot()
	assert.Equal(t, "a.txt", second[0].Name)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_SnapshotKeepsPickOrder(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	release := make(chan struct{})

	slowID, err := q.Add(ctx, KindDocument, blockingFile("slow.pdf", 10, release))
	require.NoError(t, err)
	fastID, err := q.Add(ctx, KindCode, memFile("fast.txt", "text/plain", []byte("x")))
	require.NoError(t, err)

	close(release)
	require.NoError(t, q.Settle(ctx))

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, slowID, snap[0].ID)
	assert.Equal(t, fastID, snap[1].ID)
}

func TestQueue_RemoveWhileDecoding(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	release := make(chan struct{})

	id, err := q.Add(ctx, KindDocument, blockingFile("slow.pdf", 1024, release))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), q.Reserved())

	q.Remove(id)
	close(release)
	require.NoError(t, q.Settle(ctx))

	assert.Empty(t, q.Snapshot())
	assert.Equal(t, int64(0), q.Reserved())

	q.Remove("missing")
}

func TestQueue_DecodeFailureReleasesReservation(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()

	liar := memFile("short.pdf", "application/pdf", make([]byte, 64))
	liar.Size = 10
	_, err := q.Add(ctx, KindDocument, liar)
	require.NoError(t, err)

	broken := File{
		Name: "broken.pdf", MimeType: "application/pdf", Size: 5,
		Open: func(ctx context.Context) (io.ReadCloser, error) { return nil, errors.New("gone") },
	}
	_, err = q.Add(ctx, KindDocument, broken)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), q.Reserved())
}

func TestQueue_UnknownSizeRejected(t *testing.T) {
	q := newTestQueue()

	_, err := q.Add(context.Background(), KindDocument, memFile("scan.pdf", "application/pdf", nil))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.RejectSizeUnknown, verr.Reason)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DecodeFailureIsReported(t *testing.T) {
	q := newTestQueue()
	failed := make(chan string, 1)
	q.OnDecodeFailed(func(name string, err error) { failed <- name })

	broken := File{
		Name: "broken.pdf", MimeType: "application/pdf", Size: 5,
		Open: func(ctx context.Context) (io.ReadCloser, error) { return nil, errors.New("gone") },
	}
	_, err := q.Add(context.Background(), KindDocument, broken)
	require.NoError(t, err)

	select {
	case name := <-failed:
		assert.Equal(t, "broken.pdf", name)
	case <-time.After(time.Second):
		t.Fatal("decode failure was not reported")
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DiscardAndClear(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()

	a, _ := q.Add(ctx, KindCode, memFile("a.go", "", []byte("a")))
	b, _ := q.Add(ctx, KindCode, memFile("b.go", "", []byte("b")))
	c, _ := q.Add(ctx, KindCode, memFile("c.go", "", []byte("c")))
	require.NoError(t, q.Settle(ctx))

	q.Discard(a, c)
	snap := q.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, b, snap[0].ID)

	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, int64(0), q.Reserved())
}

func TestQueue_RestoreRespectsCeiling(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()

	_, err := q.Add(ctx, KindDocument, memFile("a.pdf", "application/pdf", make([]byte, 6*mib)))
	require.NoError(t, err)
	require.NoError(t, q.Settle(ctx))
	sent := q.Snapshot()
	q.Discard(sent[0].ID)

	_, err = q.Add(ctx, KindDocument, memFile("b.pdf", "application/pdf", make([]byte, 5*mib)))
	require.NoError(t, err)
	require.NoError(t, q.Settle(ctx))

	assert.Equal(t, 0, q.Restore(sent))
	assert.Equal(t, int64(5*mib), q.Reserved())

	q.Clear()
	assert.Equal(t, 1, q.Restore(sent))
	assert.Equal(t, 0, q.Restore(sent), "already queued")
	assert.Equal(t, sent, q.Snapshot())
}

func TestQueue_ReservedNeverExceedsCeiling(t *testing.T) {
	q := NewQueue(Limits{MaxTotalBytes: 10 * mib, MaxFileBytes: 4 * mib})
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	var ids []string
	for i := 0; i < 100; i++ {
		switch rng.Intn(4) {
		case 0:
			if len(ids) > 0 {
				n := rng.Intn(len(ids))
				q.Remove(ids[n])
				ids = append(ids[:n], ids[n+1:]...)
			}
		default:
			size := rng.Intn(5 * mib)
			id, err := q.Add(ctx, KindDocument, memFile("f.pdf", "application/pdf", make([]byte, size)))
			if err == nil {
				ids = append(ids, id)
			}
		}
		require.LessOrEqual(t, q.Reserved(), int64(10*mib))
	}
	require.NoError(t, q.Settle(ctx))
}

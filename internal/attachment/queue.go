// Package attachment validates, encodes and holds files until they are sent.
package attachment

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/sofia/internal/config"
	"github.com/set-night/sofia/internal/domain"
)

// Kind selects the allow-list a file is validated against.
type Kind int

const (
	KindDocument Kind = iota
	KindCode
)

func (k Kind) String() string {
	if k == KindCode {
		return "code"
	}
	return "document"
}

// KindFor picks the code allow-list for source files and the document list otherwise.
func KindFor(name string) Kind {
	if slices.Contains(config.CodeExtensions, strings.ToLower(filepath.Ext(name))) {
		return KindCode
	}
	return KindDocument
}

// File is a user pick. Open is called once, off the caller's goroutine.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Ref      string
	Open     func(ctx context.Context) (io.ReadCloser, error)
}

type Limits struct {
	MaxTotalBytes int64
	MaxFileBytes  int64
	DecodeTimeout time.Duration
}

type entry struct {
	att    domain.Attachment
	ready  bool
	done   chan struct{}
	cancel context.CancelFunc
}

// Queue holds pending attachments in pick order. Bytes of files still being
// decoded count against the ceiling from the moment Add accepts them.
type Queue struct {
	mu       sync.Mutex
	entries  []*entry
	reserved int64
	limits   Limits
	onFailed func(name string, err error)
}

func NewQueue(limits Limits) *Queue {
	if limits.MaxFileBytes <= 0 || limits.MaxFileBytes > limits.MaxTotalBytes {
		limits.MaxFileBytes = limits.MaxTotalBytes
	}
	return &Queue{limits: limits}
}

// OnDecodeFailed observes files dropped because they could not be read.
func (q *Queue) OnDecodeFailed(fn func(name string, err error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailed = fn
}

// Add validates f and starts decoding it. The returned id is usable with
// Remove immediately, before decoding completes.
func (q *Queue) Add(ctx context.Context, kind Kind, f File) (string, error) {
	if !allowed(kind, f.Name, f.MimeType) {
		return "", &domain.ValidationError{Reason: domain.RejectTypeNotAllowed, Name: f.Name, Size: f.Size}
	}
	if f.Size < 0 || f.Open == nil {
		return "", fmt.Errorf("add attachment %q: %w", f.Name, domain.ErrValidation)
	}
	// The declared size is the reservation and the read cap.
	if f.Size == 0 {
		return "", &domain.ValidationError{Reason: domain.RejectSizeUnknown, Name: f.Name}
	}

	q.mu.Lock()
	if f.Size > q.limits.MaxFileBytes || q.reserved+f.Size > q.limits.MaxTotalBytes {
		q.mu.Unlock()
		return "", &domain.ValidationError{Reason: domain.RejectTooLarge, Name: f.Name, Size: f.Size}
	}

	decodeCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if q.limits.DecodeTimeout > 0 {
		decodeCtx, cancel = context.WithTimeout(decodeCtx, q.limits.DecodeTimeout)
	} else {
		decodeCtx, cancel = context.WithCancel(decodeCtx)
	}

	e := &entry{
		att: domain.Attachment{
			ID:         uuid.NewString(),
			Name:       f.Name,
			MimeType:   f.MimeType,
			SizeBytes:  f.Size,
			PreviewRef: f.Ref,
		},
		done:   make(chan struct{}),
		cancel: cancel,
	}
	q.entries = append(q.entries, e)
	q.reserved += f.Size
	q.mu.Unlock()

	go q.decode(decodeCtx, e, f)
	return e.att.ID, nil
}

func (q *Queue) decode(ctx context.Context, e *entry, f File) {
	defer close(e.done)
	defer e.cancel()

	payload, err := encode(ctx, f)

	q.mu.Lock()
	if !slices.Contains(q.entries, e) {
		q.mu.Unlock()
		return
	}
	if err == nil {
		e.att.Payload = payload
		e.ready = true
		q.mu.Unlock()
		return
	}
	q.removeLocked(e)
	onFailed := q.onFailed
	q.mu.Unlock()

	slog.Warn("decode attachment", "error", err, "name", f.Name)
	if onFailed != nil {
		onFailed(f.Name, err)
	}
}

func encode(ctx context.Context, f File) (string, error) {
	rc, err := f.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, f.Size+1))
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > f.Size {
		return "", &domain.ValidationError{Reason: domain.RejectTooLarge, Name: f.Name, Size: int64(len(data))}
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Remove drops one attachment, cancelling its decode if still running.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.att.ID == id {
			q.removeLocked(e)
			return
		}
	}
}

// Discard removes exactly the given ids in one step.
func (q *Queue) Discard(ids ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		for _, e := range q.entries {
			if e.att.ID == id {
				q.removeLocked(e)
				break
			}
		}
	}
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		e.cancel()
	}
	q.entries = nil
	q.reserved = 0
}

func (q *Queue) removeLocked(e *entry) {
	idx := slices.Index(q.entries, e)
	if idx < 0 {
		return
	}
	e.cancel()
	q.entries = slices.Delete(q.entries, idx, idx+1)
	q.reserved -= e.att.SizeBytes
}

// Snapshot returns a copy of the decoded attachments in pick order.
// It does not mutate the queue.
func (q *Queue) Snapshot() []domain.Attachment {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.Attachment
	for _, e := range q.entries {
		if e.ready {
			out = append(out, e.att)
		}
	}
	return out
}

// Settle waits for every decode started before the call.
func (q *Queue) Settle(ctx context.Context) error {
	q.mu.Lock()
	var waits []chan struct{}
	for _, e := range q.entries {
		if !e.ready {
			waits = append(waits, e.done)
		}
	}
	q.mu.Unlock()

	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Restore puts previously snapshotted attachments back at the front of the
// queue, skipping any that are already queued or no longer fit the ceiling.
// It returns how many were restored.
func (q *Queue) Restore(atts []domain.Attachment) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var restored []*entry
	for _, a := range atts {
		if q.hasLocked(a.ID) || q.reserved+a.SizeBytes > q.limits.MaxTotalBytes {
			slog.Warn("attachment not restored", "name", a.Name, "id", a.ID)
			continue
		}
		done := make(chan struct{})
		close(done)
		restored = append(restored, &entry{att: a, ready: true, done: done, cancel: func() {}})
		q.reserved += a.SizeBytes
	}
	q.entries = append(restored, q.entries...)
	return len(restored)
}

func (q *Queue) hasLocked(id string) bool {
	for _, e := range q.entries {
		if e.att.ID == id {
			return true
		}
	}
	return false
}

// Len counts queued attachments, including those still decoding.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Reserved is the byte total counted against the ceiling.
func (q *Queue) Reserved() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.reserved
}

// Pending lists queued attachments with their decode state for display.
func (q *Queue) Pending() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]Item, len(q.entries))
	for i, e := range q.entries {
		items[i] = Item{ID: e.att.ID, Name: e.att.Name, SizeBytes: e.att.SizeBytes, Ready: e.ready}
	}
	return items
}

type Item struct {
	ID        string
	Name      string
	SizeBytes int64
	Ready     bool
}

func allowed(kind Kind, name, mimeType string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch kind {
	case KindCode:
		return slices.Contains(config.CodeExtensions, ext)
	default:
		return strings.HasPrefix(mimeType, "image/") || slices.Contains(config.DocumentExtensions, ext)
	}
}

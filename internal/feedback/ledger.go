// Package feedback keeps per-message judgments for the current transcript.
package feedback

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/set-night/sofia/internal/domain"
)

type Remote interface {
	PostFeedback(ctx context.Context, chatID string, index int, j domain.Judgment) error
	FetchFeedback(ctx context.Context, chatID string) ([]domain.FeedbackEntry, error)
}

type Spawner interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// SessionRef is the slice of the session store the ledger reads.
type SessionRef interface {
	ID() string
	IsTemporary() bool
	SenderAt(idx int) (domain.Sender, bool)
}

// Ledger maps sequence indices to judgments. A missing key means the message
// was never judged; JudgmentNeutral means feedback was withdrawn.
type Ledger struct {
	mu      sync.RWMutex
	entries map[int]domain.FeedbackEntry
	epoch   uint64

	session SessionRef
	remote  Remote
	tasks   Spawner
	now     func() time.Time
}

func NewLedger(session SessionRef, remote Remote, tasks Spawner) *Ledger {
	return &Ledger{
		entries: make(map[int]domain.FeedbackEntry),
		session: session,
		remote:  remote,
		tasks:   tasks,
		now:     time.Now,
	}
}

// Set records a judgment locally at once and pushes it to the backend in the
// background. A failed push is logged and never rolled back.
func (l *Ledger) Set(ctx context.Context, idx int, j domain.Judgment) error {
	sender, ok := l.session.SenderAt(idx)
	if !ok || sender != domain.SenderAssistant {
		return fmt.Errorf("set feedback %d: %w", idx, domain.ErrNotAssistant)
	}

	l.mu.Lock()
	l.entries[idx] = domain.FeedbackEntry{SequenceIndex: idx, Judgment: j, Timestamp: l.now()}
	l.mu.Unlock()

	chatID := l.session.ID()
	if chatID == "" || l.session.IsTemporary() {
		return nil
	}
	l.tasks.Go(ctx, "post feedback", func(ctx context.Context) error {
		return l.remote.PostFeedback(ctx, chatID, idx, j)
	})
	return nil
}

func (l *Ledger) Get(idx int) (domain.Judgment, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[idx]
	return e.Judgment, ok
}

// Entries returns a copy keyed by sequence index.
func (l *Ledger) Entries() map[int]domain.FeedbackEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.entries)
}

// LoadForSession repopulates the ledger from the backend. A result that
// arrives after another Reset is discarded.
func (l *Ledger) LoadForSession(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	l.mu.RLock()
	epoch := l.epoch
	l.mu.RUnlock()

	remote, err := l.remote.FetchFeedback(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch feedback: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if epoch != l.epoch {
		return nil
	}
	for _, e := range remote {
		l.entries[e.SequenceIndex] = e
	}
	return nil
}

// Reset drops every entry.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[int]domain.FeedbackEntry)
	l.epoch++
}

// Package session owns the transcript of the current conversation and keeps
// it reconciled with the backend chat store.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/set-night/sofia/internal/config"
	"github.com/set-night/sofia/internal/domain"
)

// Remote is the backend chat store. SaveChat creates when s.ID is empty and
// updates otherwise.
type Remote interface {
	SaveChat(ctx context.Context, s domain.Session) (domain.ChatSummary, error)
}

// Lister returns saved chats with their transcripts.
type Lister interface {
	ListChats(ctx context.Context) ([]domain.Session, error)
}

// FeedbackReloader is told whenever the transcript is swapped out.
type FeedbackReloader interface {
	Reset()
	LoadForSession(ctx context.Context, id string) error
}

// SavedFunc observes successful persists. created is true only for the call
// that assigned the id.
type SavedFunc func(summary domain.ChatSummary, created bool)

type Store struct {
	mu         sync.RWMutex
	id         string
	title      string
	messages   []domain.Message
	temporary  bool
	generation uint64

	// persistMu serializes persists so a fresh session is created once.
	persistMu sync.Mutex

	remote   Remote
	lister   Lister
	feedback FeedbackReloader
	onSaved  SavedFunc
}

func NewStore(remote Remote, lister Lister) *Store {
	return &Store{remote: remote, lister: lister}
}

func (s *Store) AttachFeedback(f FeedbackReloader) {
	s.feedback = f
}

func (s *Store) OnSaved(fn SavedFunc) {
	s.onSaved = fn
}

// Append assigns the next sequence index and returns it.
func (s *Store) Append(msg domain.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

// AppendIf appends only while the transcript is still the one identified by
// gen. A reply that lands after Reset or Load is dropped.
func (s *Store) AppendIf(gen uint64, msg domain.Message) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return -1, false
	}
	return s.appendLocked(msg), true
}

func (s *Store) appendLocked(msg domain.Message) int {
	msg = msg.Clone()
	msg.SequenceIndex = len(s.messages)
	s.messages = append(s.messages, msg)
	return msg.SequenceIndex
}

// Persist saves the transcript. It is a no-op for temporary or empty sessions.
func (s *Store) Persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	if s.temporary || len(s.messages) == 0 {
		s.mu.RUnlock()
		return nil
	}
	gen := s.generation
	snap := s.snapshotLocked()
	s.mu.RUnlock()

	if snap.Title == "" {
		snap.Title = Title(snap.Messages)
	}
	summary, err := s.remote.SaveChat(ctx, snap)
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		slog.Debug("session changed during persist", "session_id", summary.ID)
		return nil
	}
	created := false
	switch {
	case s.id == "":
		s.id = summary.ID
		created = true
	case summary.ID != "" && summary.ID != s.id:
		slog.Warn("backend returned a different session id", "session_id", s.id, "returned_id", summary.ID)
		summary.ID = s.id
	}
	s.mu.Unlock()

	if s.onSaved != nil {
		s.onSaved(summary, created)
	}
	return nil
}

// Load replaces the transcript with a saved chat. Positions become sequence
// indices and feedback is reloaded for the chat.
func (s *Store) Load(ctx context.Context, id string) error {
	chats, err := s.lister.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}

	var found *domain.Session
	for i := range chats {
		if chats[i].ID == id {
			found = &chats[i]
			break
		}
	}
	if found == nil {
		return domain.ErrSessionNotFound
	}

	msgs := make([]domain.Message, len(found.Messages))
	for i, m := range found.Messages {
		msgs[i] = m.Clone()
		msgs[i].SequenceIndex = i
	}

	s.mu.Lock()
	s.id = found.ID
	s.title = found.Title
	s.messages = msgs
	s.temporary = false
	s.generation++
	s.mu.Unlock()

	if s.feedback != nil {
		s.feedback.Reset()
		if err := s.feedback.LoadForSession(ctx, found.ID); err != nil {
			slog.Warn("load feedback", "error", err, "session_id", found.ID)
		}
	}
	return nil
}

// Reset starts a new session. The outgoing one is not persisted.
func (s *Store) Reset() {
	s.mu.Lock()
	s.id = ""
	s.title = ""
	s.messages = nil
	s.temporary = false
	s.generation++
	s.mu.Unlock()

	if s.feedback != nil {
		s.feedback.Reset()
	}
}

// SetTemporary excludes the session from persistence until SaveTemporary.
func (s *Store) SetTemporary(temporary bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temporary = temporary
}

// SaveTemporary moves a temporary session into history.
func (s *Store) SaveTemporary(ctx context.Context) error {
	s.mu.Lock()
	if !s.temporary {
		s.mu.Unlock()
		return domain.ErrNotTemporary
	}
	s.temporary = false
	s.mu.Unlock()
	return s.Persist(ctx)
}

// SetTitle pins a title chosen by the user. An empty title falls back to
// the first message.
func (s *Store) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

func (s *Store) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *Store) IsTemporary() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.temporary
}

func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) Message(idx int) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= len(s.messages) {
		return domain.Message{}, false
	}
	return s.messages[idx].Clone(), true
}

func (s *Store) SenderAt(idx int) (domain.Sender, bool) {
	m, ok := s.Message(idx)
	return m.Sender, ok
}

// Snapshot is a read-only copy for rendering.
func (s *Store) Snapshot() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.Session {
	msgs := make([]domain.Message, len(s.messages))
	for i, m := range s.messages {
		msgs[i] = m.Clone()
	}
	return domain.Session{ID: s.id, Title: s.title, Messages: msgs, IsTemporary: s.temporary}
}

// Title is the first message's text cut to TitleMaxRunes.
func Title(msgs []domain.Message) string {
	if len(msgs) == 0 || msgs[0].Text == "" {
		return config.DefaultTitle
	}
	r := []rune(msgs[0].Text)
	if len(r) > config.TitleMaxRunes {
		r = r[:config.TitleMaxRunes]
	}
	return string(r)
}

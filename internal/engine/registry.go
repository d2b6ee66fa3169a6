package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/set-night/sofia/internal/domain"
)

// BindingStore remembers which session each front-end chat is on.
type BindingStore interface {
	GetBinding(ctx context.Context, chatID int64) (domain.ChatBinding, bool, error)
	SaveBinding(ctx context.Context, b domain.ChatBinding) error
}

// SpeechFactory builds speech for a chat, or returns nil when speech is off.
type SpeechFactory func(chatID int64) *Speech

// Registry holds one engine per front-end chat. Usage counters are shared
// because every chat talks to the same backend account.
type Registry struct {
	mu      sync.Mutex
	engines map[int64]*Engine

	deps     Deps
	bindings BindingStore
	speech   SpeechFactory

	// Configure runs once on every new engine before it starts.
	Configure func(chatID int64, e *Engine)
}

func NewRegistry(deps Deps, bindings BindingStore, speech SpeechFactory) *Registry {
	return &Registry{
		engines:  make(map[int64]*Engine),
		deps:     deps,
		bindings: bindings,
		speech:   speech,
	}
}

// Get returns the chat's engine, creating and resuming it on first use.
// Resuming talks to the backend, so it runs outside the lock; if two first
// updates race, the first engine registered wins.
func (r *Registry) Get(ctx context.Context, chatID int64) (*Engine, error) {
	r.mu.Lock()
	e, ok := r.engines[chatID]
	r.mu.Unlock()
	if ok {
		return e, nil
	}

	b, found, err := r.bindings.GetBinding(ctx, chatID)
	if err != nil {
		return nil, err
	}

	deps := r.deps
	if r.speech != nil {
		deps.Speech = r.speech(chatID)
	}
	e = New(chatID, deps)
	if found {
		e.mode = b.Mode
		e.store.SetTemporary(b.Temporary)
	}
	if r.Configure != nil {
		r.Configure(chatID, e)
	}

	sessionID := ""
	if found {
		sessionID = b.SessionID
	}
	if err := e.Start(ctx, sessionID); err != nil {
		// The chat stays usable on a blank session.
		slog.Warn("start engine", "error", err, "chat_id", chatID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.engines[chatID]; ok {
		e.Close()
		return existing, nil
	}
	e.OnBindingChange(func(b domain.ChatBinding) {
		r.deps.Tasks.Go(ctx, "save binding", func(ctx context.Context) error {
			return r.bindings.SaveBinding(ctx, b)
		})
	})
	r.engines[chatID] = e
	return e, nil
}

// Close shuts every engine down.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.engines {
		e.Close()
	}
}

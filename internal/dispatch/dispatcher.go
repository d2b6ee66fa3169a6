// Package dispatch orchestrates one outgoing message across the queue, the
// usage governor, the chat backend and the transcript.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/set-night/sofia/internal/config"
	"github.com/set-night/sofia/internal/domain"
)

type Queue interface {
	Settle(ctx context.Context) error
	Len() int
	Snapshot() []domain.Attachment
	Discard(ids ...string)
	Restore(atts []domain.Attachment) int
}

type Governor interface {
	Check(mode domain.Mode) error
	RecordSend(ctx context.Context, mode domain.Mode)
}

type Store interface {
	Generation() uint64
	Append(msg domain.Message) int
	AppendIf(gen uint64, msg domain.Message) (int, bool)
	Persist(ctx context.Context) error
	IsTemporary() bool
}

type Backend interface {
	Chat(ctx context.Context, r domain.ChatRequest) (string, error)
}

type Library interface {
	UploadLibrary(ctx context.Context, a domain.Attachment) error
}

type Spawner interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}

type Options struct {
	// RestoreOnFailure puts attachments back in the queue when the chat call fails.
	RestoreOnFailure bool
}

// Result describes a dispatched turn. Err holds the backend failure that was
// turned into a system message; it is nil on success.
type Result struct {
	UserIndex  int
	ReplyIndex int
	Reply      string
	Sender     domain.Sender
	Dropped    bool
	Err        error
}

type Dispatcher struct {
	queue    Queue
	governor Governor
	store    Store
	backend  Backend
	library  Library
	tasks    Spawner
	opts     Options

	mu       sync.Mutex
	uploaded map[string]struct{}
}

func New(queue Queue, governor Governor, store Store, backend Backend, library Library, tasks Spawner, opts Options) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		governor: governor,
		store:    store,
		backend:  backend,
		library:  library,
		tasks:    tasks,
		opts:     opts,
		uploaded: make(map[string]struct{}),
	}
}

// Send dispatches text with every queued attachment. Empty input and usage
// vetoes are returned as errors before anything is sent. A failed backend
// call is not an error: it becomes a system message in the transcript.
func (d *Dispatcher) Send(ctx context.Context, text string, mode domain.Mode) (Result, error) {
	if err := d.queue.Settle(ctx); err != nil {
		return Result{}, fmt.Errorf("settle attachments: %w", err)
	}
	if strings.TrimSpace(text) == "" && d.queue.Len() == 0 {
		return Result{}, domain.ErrEmptyMessage
	}
	if err := d.governor.Check(mode); err != nil {
		return Result{}, err
	}

	atts := d.queue.Snapshot()
	gen := d.store.Generation()
	userIdx := d.store.Append(domain.Message{
		Text:        text,
		Sender:      domain.SenderUser,
		Attachments: atts,
		Mode:        mode,
	})

	ids := attachmentIDs(atts)
	d.queue.Discard(ids...)
	d.upload(ctx, atts)

	reply, err := d.backend.Chat(ctx, domain.ChatRequest{
		Text:        text,
		Attachments: atts,
		Mode:        mode,
		IsTemporary: d.store.IsTemporary(),
	})
	if err != nil {
		return d.fail(ctx, gen, userIdx, mode, atts, err), nil
	}
	d.forget(ids)
	d.governor.RecordSend(ctx, mode)
	return d.answer(ctx, gen, userIdx, mode, reply), nil
}

// Instruct sends a steering prompt outside the usage quota. It carries no
// attachments. The prompt joins the transcript only when keep is set;
// otherwise UserIndex is -1.
func (d *Dispatcher) Instruct(ctx context.Context, text string, keep bool) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, domain.ErrEmptyMessage
	}

	gen := d.store.Generation()
	userIdx := -1
	if keep {
		userIdx = d.store.Append(domain.Message{Text: text, Sender: domain.SenderUser})
	}

	reply, err := d.backend.Chat(ctx, domain.ChatRequest{
		Text:        text,
		IsTemporary: d.store.IsTemporary(),
	})
	if err != nil {
		return d.fail(ctx, gen, userIdx, domain.ModeNone, nil, err), nil
	}
	return d.answer(ctx, gen, userIdx, domain.ModeNone, reply), nil
}

func (d *Dispatcher) answer(ctx context.Context, gen uint64, userIdx int, mode domain.Mode, reply string) Result {
	if reply == "" {
		reply = config.EmptyResponseText
	}

	res := Result{UserIndex: userIdx, Reply: reply, Sender: domain.SenderAssistant}
	idx, ok := d.store.AppendIf(gen, domain.Message{Text: reply, Sender: domain.SenderAssistant, Mode: mode})
	if !ok {
		slog.Info("reply dropped, session changed", "mode", mode)
		res.ReplyIndex, res.Dropped = -1, true
		return res
	}
	res.ReplyIndex = idx
	d.persist(ctx)
	return res
}

func (d *Dispatcher) fail(ctx context.Context, gen uint64, userIdx int, mode domain.Mode, atts []domain.Attachment, cause error) Result {
	text := config.FailureText
	if errors.Is(cause, domain.ErrRateLimited) {
		text = config.RateLimitedText
	}
	slog.Error("chat request", "error", cause, "mode", mode)

	if d.opts.RestoreOnFailure && len(atts) > 0 {
		d.queue.Restore(atts)
	} else {
		d.forget(attachmentIDs(atts))
	}

	res := Result{UserIndex: userIdx, Reply: text, Sender: domain.SenderSystem, Err: cause}
	idx, ok := d.store.AppendIf(gen, domain.Message{Text: text, Sender: domain.SenderSystem, Mode: mode})
	if !ok {
		res.ReplyIndex, res.Dropped = -1, true
		return res
	}
	res.ReplyIndex = idx
	d.persist(ctx)
	return res
}

func (d *Dispatcher) persist(ctx context.Context) {
	if err := d.store.Persist(ctx); err != nil {
		slog.Error("persist session", "error", err)
	}
}

// upload schedules a library upload once per attachment id.
func (d *Dispatcher) upload(ctx context.Context, atts []domain.Attachment) {
	if d.library == nil {
		return
	}
	for _, a := range atts {
		d.mu.Lock()
		_, seen := d.uploaded[a.ID]
		d.uploaded[a.ID] = struct{}{}
		d.mu.Unlock()
		if seen {
			continue
		}
		d.tasks.Go(ctx, "library upload", func(ctx context.Context) error {
			return d.library.UploadLibrary(ctx, a)
		})
	}
}

// forget drops upload marks once attachments can no longer be resent.
func (d *Dispatcher) forget(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		delete(d.uploaded, id)
	}
}

func attachmentIDs(atts []domain.Attachment) []string {
	ids := make([]string, len(atts))
	for i, a := range atts {
		ids[i] = a.ID
	}
	return ids
}

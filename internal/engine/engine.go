// Package engine wires one conversation's components together and exposes
// the operations a front end drives.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/set-night/sofia/internal/attachment"
	"github.com/set-night/sofia/internal/config"
	"github.com/set-night/sofia/internal/dispatch"
	"github.com/set-night/sofia/internal/domain"
	"github.com/set-night/sofia/internal/feedback"
	"github.com/set-night/sofia/internal/session"
	"github.com/set-night/sofia/internal/usage"
	"github.com/set-night/sofia/internal/voice"
	"golang.org/x/sync/errgroup"
)

// Backend is everything the engine needs from the chat backend.
type Backend interface {
	Chat(ctx context.Context, r domain.ChatRequest) (string, error)
	UploadLibrary(ctx context.Context, a domain.Attachment) error
	SaveChat(ctx context.Context, s domain.Session) (domain.ChatSummary, error)
	ListChats(ctx context.Context) ([]domain.Session, error)
	DeleteChat(ctx context.Context, id string) error
	RenameChat(ctx context.Context, id, title string) error
	PostFeedback(ctx context.Context, chatID string, index int, j domain.Judgment) error
	FetchFeedback(ctx context.Context, chatID string) ([]domain.FeedbackEntry, error)
	UserInfo(ctx context.Context) (domain.Account, error)
	EvaluateCyber(ctx context.Context, msgs []domain.Message, level domain.CyberLevel) (domain.CyberReport, error)
}

type Spawner interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// Speech is a conversation's recognizer and synthesizer. Submit feeds one
// captured utterance to the recognizer.
type Speech struct {
	Recognizer  voice.Recognizer
	Synthesizer voice.Synthesizer
	Submit      func(audio []byte) error
}

type Deps struct {
	Backend          Backend
	Governor         *usage.Governor
	Tasks            Spawner
	Limits           attachment.Limits
	RestoreOnFailure bool
	Speech           *Speech
}

// Engine is the current session of one conversation.
type Engine struct {
	backend  Backend
	governor *usage.Governor
	tasks    Spawner

	queue      *attachment.Queue
	store      *session.Store
	ledger     *feedback.Ledger
	dispatcher *dispatch.Dispatcher

	speech    *Speech
	voice     *voice.Controller
	dictation *voice.Dictation

	mu      sync.Mutex
	mode    domain.Mode
	compose string
	cyber   domain.CyberLevel
	onBind  func(domain.ChatBinding)
	onVoice func(text string, res dispatch.Result)
	chatID  int64
}

func New(chatID int64, deps Deps) *Engine {
	e := &Engine{
		chatID:   chatID,
		backend:  deps.Backend,
		governor: deps.Governor,
		tasks:    deps.Tasks,
		queue:    attachment.NewQueue(deps.Limits),
		speech:   deps.Speech,
	}
	e.store = session.NewStore(deps.Backend, deps.Backend)
	e.ledger = feedback.NewLedger(e.store, deps.Backend, deps.Tasks)
	e.store.AttachFeedback(e.ledger)
	e.store.OnSaved(func(summary domain.ChatSummary, created bool) {
		if created {
			e.bind()
		}
	})
	e.dispatcher = dispatch.New(e.queue, e.governor, e.store, deps.Backend, deps.Backend, deps.Tasks,
		dispatch.Options{RestoreOnFailure: deps.RestoreOnFailure})

	if deps.Speech != nil {
		e.voice = voice.NewController(deps.Speech.Recognizer, deps.Speech.Synthesizer, e)
		e.dictation = voice.NewDictation(deps.Speech.Recognizer)
	}
	return e
}

// OnBindingChange observes changes worth remembering across restarts.
func (e *Engine) OnBindingChange(fn func(domain.ChatBinding)) {
	e.onBind = fn
}

// OnVoiceTurn observes each utterance sent by the voice loop with its result.
func (e *Engine) OnVoiceTurn(fn func(text string, res dispatch.Result)) {
	e.onVoice = fn
}

// OnVoiceState and OnVoiceError forward controller events. No-ops without speech.
func (e *Engine) OnVoiceState(fn func(voice.State)) {
	if e.voice != nil {
		e.voice.OnStateChange(fn)
	}
}

func (e *Engine) OnVoiceError(fn func(error)) {
	if e.voice != nil {
		e.voice.OnError(fn)
	}
}

// OnAttachmentFailed observes files dropped after Attach accepted them.
func (e *Engine) OnAttachmentFailed(fn func(name string, err error)) {
	e.queue.OnDecodeFailed(fn)
}

// Start loads account usage and resumes sessionID when set. Both run
// concurrently and neither failure cancels the other, so a resumed session
// survives an unreachable account endpoint. Errors are joined.
func (e *Engine) Start(ctx context.Context, sessionID string) error {
	var (
		g    errgroup.Group
		errs [2]error
	)
	g.Go(func() error {
		acct, err := e.backend.UserInfo(ctx)
		if err != nil {
			errs[0] = fmt.Errorf("get user info: %w", err)
			return nil
		}
		e.governor.Refresh(acct)
		return nil
	})
	if sessionID != "" {
		g.Go(func() error {
			if err := e.store.Load(ctx, sessionID); err != nil {
				errs[1] = fmt.Errorf("resume session %s: %w", sessionID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs[:]...)
}

// Send dispatches text in the current mode.
func (e *Engine) Send(ctx context.Context, text string) (dispatch.Result, error) {
	return e.dispatcher.Send(ctx, text, e.Mode())
}

// SendVoice is the voice loop's path into the dispatcher.
func (e *Engine) SendVoice(ctx context.Context, text string) (string, error) {
	res, err := e.dispatcher.Send(ctx, text, domain.ModeVoice)
	if err != nil {
		return "", err
	}
	if e.onVoice != nil {
		e.onVoice(text, res)
	}
	return res.Reply, nil
}

func (e *Engine) Mode() domain.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetWebSearch toggles web search for later text sends.
func (e *Engine) SetWebSearch(on bool) {
	e.mu.Lock()
	if on {
		e.mode = domain.ModeWebSearch
	} else {
		e.mode = domain.ModeNone
	}
	e.mu.Unlock()
	e.bind()
}

// Compose is the dictated draft awaiting send or discard.
func (e *Engine) Compose() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compose
}

func (e *Engine) SetCompose(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compose = text
}

// SendCompose sends the draft as a dictated message and clears it on
// acceptance.
func (e *Engine) SendCompose(ctx context.Context) (dispatch.Result, error) {
	text := e.Compose()
	res, err := e.dispatcher.Send(ctx, text, domain.ModeMicInput)
	if err != nil {
		return res, err
	}
	e.SetCompose("")
	return res, nil
}

// HandleUtterance routes captured audio. During a voice conversation it
// feeds the loop; otherwise it runs one dictation and returns the draft.
func (e *Engine) HandleUtterance(ctx context.Context, audio []byte) (string, error) {
	if e.speech == nil {
		return "", domain.ErrVoiceDisabled
	}
	if e.voice.State() != voice.Idle {
		return "", e.speech.Submit(audio)
	}

	take, err := e.dictation.Begin(ctx)
	if err != nil {
		return "", err
	}
	if err := e.speech.Submit(audio); err != nil {
		e.speech.Recognizer.Abort()
		return "", fmt.Errorf("submit dictation: %w", err)
	}
	text, err := take.Wait(ctx)
	if err != nil {
		return "", err
	}
	e.SetCompose(text)
	return text, nil
}

func (e *Engine) StartVoice(ctx context.Context) error {
	if e.voice == nil {
		return domain.ErrVoiceDisabled
	}
	return e.voice.Start(ctx)
}

func (e *Engine) EndVoice() {
	if e.voice != nil {
		e.voice.End()
	}
}

// SpeechEnabled reports whether this engine can listen and speak.
func (e *Engine) SpeechEnabled() bool {
	return e.speech != nil
}

func (e *Engine) VoiceState() voice.State {
	if e.voice == nil {
		return voice.Idle
	}
	return e.voice.State()
}

// SpeakMessage reads one transcript message aloud outside the voice loop.
func (e *Engine) SpeakMessage(ctx context.Context, idx int) error {
	if e.speech == nil {
		return domain.ErrVoiceDisabled
	}
	if e.voice.State() != voice.Idle {
		return domain.ErrVoiceBusy
	}
	msg, ok := e.store.Message(idx)
	if !ok || msg.Sender != domain.SenderAssistant {
		return fmt.Errorf("speak message %d: %w", idx, domain.ErrNotAssistant)
	}
	e.speech.Recognizer.Abort()
	return e.speech.Synthesizer.Speak(ctx, msg.Text, logListener{idx: idx})
}

// NewChat abandons the current session. Callers persist first if needed.
func (e *Engine) NewChat(temporary bool) {
	e.EndVoice()
	e.setCyber("")
	e.store.Reset()
	e.store.SetTemporary(temporary)
	e.queue.Clear()
	e.SetCompose("")
	e.bind()
}

func (e *Engine) LoadChat(ctx context.Context, id string) error {
	e.EndVoice()
	if err := e.store.Load(ctx, id); err != nil {
		return err
	}
	e.setCyber("")
	e.bind()
	return nil
}

// StartCyber opens a fresh chat for a training level. Learn is an ordinary
// tutoring send. The simulated levels have the assistant play a scammer
// until EndCyber, and their steering turns do not count against usage.
func (e *Engine) StartCyber(ctx context.Context, level domain.CyberLevel) (dispatch.Result, error) {
	var persona string
	switch level {
	case domain.CyberLearn:
		e.NewChat(false)
		return e.Send(ctx, config.CyberLearnPrompt)
	case domain.CyberBasic:
		persona = config.CyberBasicPersona
	case domain.CyberIntermediate:
		persona = config.CyberIntermediatePersona
	default:
		return dispatch.Result{}, fmt.Errorf("start cyber level %q: %w", level, domain.ErrValidation)
	}

	e.NewChat(false)
	e.setCyber(level)
	return e.dispatcher.Instruct(ctx, fmt.Sprintf(config.CyberIntroFormat, level, persona), true)
}

// EndCyber grades the running simulation, then steers the assistant back to
// its own persona. The game ends even when grading fails.
func (e *Engine) EndCyber(ctx context.Context) (domain.CyberReport, dispatch.Result, error) {
	e.mu.Lock()
	level := e.cyber
	e.cyber = ""
	e.mu.Unlock()
	if level == "" {
		return domain.CyberReport{}, dispatch.Result{}, domain.ErrNoCyberGame
	}

	report, evalErr := e.backend.EvaluateCyber(ctx, e.store.Snapshot().Messages, level)
	if evalErr != nil {
		evalErr = fmt.Errorf("evaluate cyber game: %w", evalErr)
	}
	res, err := e.dispatcher.Instruct(ctx, config.CyberResetPrompt, false)
	if err != nil {
		return report, res, errors.Join(evalErr, fmt.Errorf("reset persona: %w", err))
	}
	return report, res, evalErr
}

// CyberLevel is the simulation in progress, if any.
func (e *Engine) CyberLevel() (domain.CyberLevel, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cyber, e.cyber != ""
}

func (e *Engine) setCyber(level domain.CyberLevel) {
	e.mu.Lock()
	e.cyber = level
	e.mu.Unlock()
}

// DeleteChat removes a saved chat and starts fresh if it was the current one.
func (e *Engine) DeleteChat(ctx context.Context, id string) error {
	if err := e.backend.DeleteChat(ctx, id); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if e.store.ID() == id {
		e.NewChat(false)
	}
	return nil
}

func (e *Engine) RenameChat(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("rename chat: %w", domain.ErrValidation)
	}
	if err := e.backend.RenameChat(ctx, id, title); err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}
	if e.store.ID() == id {
		e.store.SetTitle(title)
	}
	return nil
}

// Chats lists saved chats, newest backend order preserved.
func (e *Engine) Chats(ctx context.Context) ([]domain.ChatSummary, error) {
	chats, err := e.backend.ListChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	out := make([]domain.ChatSummary, len(chats))
	for i, c := range chats {
		out[i] = domain.ChatSummary{ID: c.ID, Title: c.Title}
	}
	return out, nil
}

func (e *Engine) SaveTemporary(ctx context.Context) error {
	if err := e.store.SaveTemporary(ctx); err != nil {
		return err
	}
	e.bind()
	return nil
}

func (e *Engine) Rate(ctx context.Context, idx int, j domain.Judgment) error {
	return e.ledger.Set(ctx, idx, j)
}

func (e *Engine) Judgment(idx int) (domain.Judgment, bool) {
	return e.ledger.Get(idx)
}

func (e *Engine) Attach(ctx context.Context, f attachment.File) (string, error) {
	return e.queue.Add(ctx, attachment.KindFor(f.Name), f)
}

func (e *Engine) Pending() []attachment.Item {
	return e.queue.Pending()
}

func (e *Engine) RemoveAttachment(id string) {
	e.queue.Remove(id)
}

func (e *Engine) ClearAttachments() {
	e.queue.Clear()
}

func (e *Engine) Transcript() domain.Session {
	return e.store.Snapshot()
}

func (e *Engine) Usage() usage.Report {
	return e.governor.Report()
}

func (e *Engine) Binding() domain.ChatBinding {
	return domain.ChatBinding{
		ChatID:    e.chatID,
		SessionID: e.store.ID(),
		Temporary: e.store.IsTemporary(),
		Mode:      e.Mode(),
	}
}

// Close ends any voice conversation and waits for its goroutines.
func (e *Engine) Close() {
	if e.voice != nil {
		e.voice.End()
		e.voice.Wait()
	}
}

func (e *Engine) bind() {
	if e.onBind != nil {
		e.onBind(e.Binding())
	}
}

type logListener struct {
	idx int
}

func (logListener) SynthesisStarted() {}
func (logListener) SynthesisDone()    {}

func (l logListener) SynthesisFailed(err error) {
	slog.Warn("speak message", "error", err, "index", l.idx)
}

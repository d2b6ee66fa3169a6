// Package voice runs the hands-free conversation loop and one-shot dictation.
package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/set-night/sofia/internal/domain"
)

type State int

const (
	Idle State = iota
	Listening
	Thinking
	Speaking
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Thinking:
		return "thinking"
	case Speaking:
		return "speaking"
	}
	return "idle"
}

// Sender dispatches a captured utterance and returns the text to speak back,
// which is the failure text when the backend call failed.
type Sender interface {
	SendVoice(ctx context.Context, text string) (string, error)
}

// Controller is the four-state conversation machine. Every turn carries an
// epoch; callbacks from an older turn are ignored.
type Controller struct {
	mu     sync.Mutex
	state  State
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc

	rec    Recognizer
	syn    Synthesizer
	sender Sender

	onState func(State)
	onError func(error)

	wg sync.WaitGroup
}

func NewController(rec Recognizer, syn Synthesizer, sender Sender) *Controller {
	return &Controller{rec: rec, syn: syn, sender: sender}
}

// OnStateChange is called after every transition, outside the lock.
func (c *Controller) OnStateChange(fn func(State)) {
	c.onState = fn
}

// OnError receives the error that ended a conversation.
func (c *Controller) OnError(fn func(error)) {
	c.onError = fn
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins a conversation. The conversation outlives ctx's cancellation
// and runs until End or a capture failure.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return domain.ErrVoiceBusy
	}
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.state = Listening
	ep := c.next()
	c.mu.Unlock()

	return c.listen(ep)
}

// End stops the conversation from any state. In-flight recognition is
// aborted and synthesis is cancelled before End returns.
func (c *Controller) End() {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return
	}
	c.state = Idle
	c.next()
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.rec.Abort()
	c.syn.Cancel()
	c.notify(Idle)
}

// Wait blocks until background sends and restarts have returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) next() uint64 {
	c.epoch++
	return c.epoch
}

// listen starts capture for turn ep. Synthesis is cancelled first so the
// microphone never hears the assistant.
func (c *Controller) listen(ep uint64) error {
	c.mu.Lock()
	if c.epoch != ep || c.state != Listening {
		c.mu.Unlock()
		return nil
	}
	ctx := c.ctx
	c.mu.Unlock()

	c.syn.Cancel()
	c.notify(Listening)
	if err := c.rec.Start(ctx, &turn{c: c, epoch: ep}); err != nil {
		c.fail(ep, err)
		return err
	}
	return nil
}

// restart re-enters Listening for a new turn off the callback goroutine.
func (c *Controller) restart(from uint64) {
	c.mu.Lock()
	if c.epoch != from || c.state == Idle {
		c.mu.Unlock()
		return
	}
	c.state = Listening
	ep := c.next()
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.listen(ep)
	}()
}

func (c *Controller) transcript(ep uint64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		c.silence(ep)
		return
	}

	c.mu.Lock()
	if c.epoch != ep || c.state != Listening {
		c.mu.Unlock()
		return
	}
	c.state = Thinking
	ep = c.next()
	ctx := c.ctx
	c.mu.Unlock()

	c.notify(Thinking)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		reply, err := c.sender.SendVoice(ctx, text)
		if err != nil {
			c.fail(ep, err)
			return
		}
		c.speak(ep, reply)
	}()
}

func (c *Controller) silence(ep uint64) {
	c.mu.Lock()
	listening := c.epoch == ep && c.state == Listening
	c.mu.Unlock()
	if listening {
		slog.Debug("no speech, restarting capture")
		c.restart(ep)
	}
}

// speak moves Thinking to Speaking. Recognition is aborted first.
func (c *Controller) speak(ep uint64, text string) {
	c.mu.Lock()
	if c.epoch != ep || c.state != Thinking {
		c.mu.Unlock()
		return
	}
	c.state = Speaking
	ep = c.next()
	ctx := c.ctx
	c.mu.Unlock()

	c.rec.Abort()
	c.notify(Speaking)
	if err := c.syn.Speak(ctx, text, &turn{c: c, epoch: ep}); err != nil {
		c.fail(ep, err)
	}
}

func (c *Controller) spoken(ep uint64) {
	c.mu.Lock()
	speaking := c.epoch == ep && c.state == Speaking
	c.mu.Unlock()
	if speaking {
		c.restart(ep)
	}
}

// fail ends the conversation if ep is still the current turn and reports err.
func (c *Controller) fail(ep uint64, err error) {
	c.mu.Lock()
	if c.epoch != ep || c.state == Idle {
		c.mu.Unlock()
		return
	}
	c.state = Idle
	c.next()
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.rec.Abort()
	c.syn.Cancel()
	c.notify(Idle)

	slog.Warn("voice conversation ended", "error", err)
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *Controller) notify(s State) {
	if c.onState != nil {
		c.onState(s)
	}
}

// turn binds speech callbacks to the epoch they were started in.
type turn struct {
	c     *Controller
	epoch uint64
}

func (t *turn) FinalTranscript(text string) { t.c.transcript(t.epoch, text) }

func (t *turn) NoSpeech() { t.c.silence(t.epoch) }

func (t *turn) RecognitionFailed(err error) {
	if errors.Is(err, domain.ErrNoSpeech) {
		t.c.silence(t.epoch)
		return
	}
	t.c.fail(t.epoch, err)
}

func (t *turn) SynthesisStarted() {}

func (t *turn) SynthesisDone() { t.c.spoken(t.epoch) }

func (t *turn) SynthesisFailed(err error) { t.c.fail(t.epoch, err) }

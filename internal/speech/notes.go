package speech

import (
	"context"
	"errors"
	"sync"

	"github.com/set-night/sofia/internal/domain"
	"github.com/set-night/sofia/internal/voice"
)

// ErrNotListening is returned when a voice note arrives with no capture armed.
var ErrNotListening = errors.New("not listening")

// NoteRecognizer treats the next submitted voice note as the utterance of
// the armed recognition turn.
type NoteRecognizer struct {
	stt Transcriber

	mu       sync.Mutex
	listener voice.RecognitionListener
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewNoteRecognizer(stt Transcriber) *NoteRecognizer {
	return &NoteRecognizer{stt: stt}
}

func (r *NoteRecognizer) Start(ctx context.Context, l voice.RecognitionListener) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.listener = l
	return nil
}

func (r *NoteRecognizer) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disarmLocked()
}

func (r *NoteRecognizer) disarmLocked() {
	if r.cancel != nil {
		r.cancel()
	}
	r.listener, r.ctx, r.cancel = nil, nil, nil
}

// Listening reports whether a turn is armed.
func (r *NoteRecognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listener != nil && r.ctx.Err() == nil
}

// Submit transcribes audio for the armed turn. An Abort during
// transcription discards the result.
func (r *NoteRecognizer) Submit(audio []byte) error {
	r.mu.Lock()
	l, ctx, cancel := r.listener, r.ctx, r.cancel
	if l == nil || ctx.Err() != nil {
		r.mu.Unlock()
		return ErrNotListening
	}
	r.listener = nil
	r.mu.Unlock()
	defer cancel()

	text, err := r.stt.Transcribe(ctx, audio)
	if ctx.Err() != nil {
		return nil
	}
	switch {
	case err != nil:
		l.RecognitionFailed(err)
	case text == "":
		l.NoSpeech()
	default:
		l.FinalTranscript(text)
	}
	return nil
}

// NoteSynthesizer renders replies to audio and hands them to a sink, such
// as a chat's voice-note sender.
type NoteSynthesizer struct {
	tts  Synthesizer
	sink func(ctx context.Context, audio []byte) error

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNoteSynthesizer(tts Synthesizer, sink func(ctx context.Context, audio []byte) error) *NoteSynthesizer {
	return &NoteSynthesizer{tts: tts, sink: sink}
}

func (s *NoteSynthesizer) Speak(ctx context.Context, text string, l voice.SynthesisListener) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		l.SynthesisStarted()
		audio, err := s.tts.Synthesize(ctx, Speakable(text))
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.SynthesisFailed(err)
			return
		}
		if err := s.sink(ctx, audio); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.SynthesisFailed(&domain.SpeechError{Output: true, Code: domain.SpeechFailed, Err: err})
			return
		}
		l.SynthesisDone()
	}()
	return nil
}

func (s *NoteSynthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Wait blocks until in-flight synthesis has finished or been cancelled.
func (s *NoteSynthesizer) Wait() {
	s.wg.Wait()
}

package voice

import "context"

// RecognitionListener receives the outcome of one recognition turn. Exactly
// one method is called per Start unless the turn is aborted.
type RecognitionListener interface {
	FinalTranscript(text string)
	NoSpeech()
	RecognitionFailed(err error)
}

// Recognizer captures one utterance per Start. Abort stops capture at once
// and discards anything not yet delivered. Start must not begin capture
// once ctx is done, and capture stops when ctx is cancelled.
type Recognizer interface {
	Start(ctx context.Context, l RecognitionListener) error
	Abort()
}

type SynthesisListener interface {
	SynthesisStarted()
	SynthesisDone()
	SynthesisFailed(err error)
}

// Synthesizer speaks text. Cancel drops queued and playing output, as does
// cancelling ctx.
type Synthesizer interface {
	Speak(ctx context.Context, text string, l SynthesisListener) error
	Cancel()
}

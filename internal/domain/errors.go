package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrEmptyMessage    = errors.New("empty message")
	ErrLimitReached    = errors.New("usage limit reached")
	ErrTransport       = errors.New("transport failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrSpeechCapture   = errors.New("speech capture failed")
	ErrSpeechOutput    = errors.New("speech output failed")
	ErrNoSpeech        = errors.New("no speech detected")
	ErrSessionNotFound = errors.New("session not found")
	ErrNotTemporary    = errors.New("session is not temporary")
	ErrVoiceBusy       = errors.New("voice conversation in progress")
	ErrVoiceDisabled   = errors.New("speech is not configured")
	ErrNotAssistant    = errors.New("message is not an assistant reply")
	ErrNoCyberGame     = errors.New("no cyber simulation running")
)

type RejectReason string

const (
	RejectTooLarge       RejectReason = "too_large"
	RejectTypeNotAllowed RejectReason = "type_not_allowed"
	RejectSizeUnknown    RejectReason = "size_unknown"
)

// ValidationError rejects an attachment before any network call.
type ValidationError struct {
	Reason RejectReason
	Name   string
	Size   int64
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case RejectTooLarge:
		return fmt.Sprintf("attachment %q too large (%d bytes)", e.Name, e.Size)
	case RejectTypeNotAllowed:
		return fmt.Sprintf("attachment %q type not allowed", e.Name)
	case RejectSizeUnknown:
		return fmt.Sprintf("attachment %q has no declared size", e.Name)
	default:
		return fmt.Sprintf("attachment %q rejected", e.Name)
	}
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type Counter string

const (
	CounterMessages    Counter = "messages"
	CounterWebSearches Counter = "webSearches"
)

// LimitError is the usage governor's veto.
type LimitError struct {
	Counter Counter
	Used    int
	Limit   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit reached (%d/%d)", e.Counter, e.Used, e.Limit)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrLimitReached
}

// TransportError is a network failure or a non-2xx response from the backend.
// Status is zero when no response was received.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

type SpeechCode string

const (
	SpeechPermissionDenied SpeechCode = "permission_denied"
	SpeechHardwareAbsent   SpeechCode = "hardware_absent"
	SpeechNoSpeech         SpeechCode = "no_speech"
	SpeechFailed           SpeechCode = "failed"
)

// SpeechError reports a recognition (Output=false) or synthesis (Output=true) failure.
type SpeechError struct {
	Output bool
	Code   SpeechCode
	Err    error
}

func (e *SpeechError) Error() string {
	kind := "recognition"
	if e.Output {
		kind = "synthesis"
	}
	if e.Err != nil {
		return fmt.Sprintf("speech %s %s: %v", kind, e.Code, e.Err)
	}
	return fmt.Sprintf("speech %s %s", kind, e.Code)
}

func (e *SpeechError) Unwrap() error {
	return e.Err
}

func (e *SpeechError) Is(target error) bool {
	switch target {
	case ErrSpeechOutput:
		return e.Output
	case ErrSpeechCapture:
		return !e.Output
	case ErrNoSpeech:
		return e.Code == SpeechNoSpeech
	}
	return false
}

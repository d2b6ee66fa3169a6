package domain

import (
	"fmt"
	"strings"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

// WireName is the sender as the backend stores it.
func (s Sender) WireName() string {
	if s == SenderAssistant {
		return "ai"
	}
	return string(s)
}

// ParseSender accepts both wire and in-memory names.
func ParseSender(v string) (Sender, error) {
	switch v {
	case "user":
		return SenderUser, nil
	case "ai", "assistant":
		return SenderAssistant, nil
	case "system":
		return SenderSystem, nil
	}
	return "", fmt.Errorf("unknown sender %q", v)
}

type Mode string

const (
	ModeNone      Mode = ""
	ModeWebSearch Mode = "web_search"
	ModeMicInput  Mode = "mic_input"
	ModeVoice     Mode = "voice_mode"
)

func ParseMode(v string) Mode {
	switch Mode(v) {
	case ModeWebSearch, ModeMicInput, ModeVoice:
		return Mode(v)
	}
	return ModeNone
}

// Attachment is a decoded file ready to travel with a message.
type Attachment struct {
	ID        string
	Name      string
	MimeType  string
	SizeBytes int64
	Payload   string // base64

	// PreviewRef is a front-end handle for the original file and is never persisted.
	PreviewRef string
}

func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// DataURL renders the payload for inline previews.
func (a Attachment) DataURL() string {
	return "data:" + a.MimeType + ";base64," + a.Payload
}

// Message is one transcript entry. It is immutable once appended.
type Message struct {
	Text          string
	Sender        Sender
	Attachments   []Attachment
	Mode          Mode
	SequenceIndex int
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return m
}

// ChatRequest is one outgoing turn to the chat backend.
type ChatRequest struct {
	Text        string
	Attachments []Attachment
	Mode        Mode
	IsTemporary bool
}

// Package speech turns voice notes into text and text into voice notes by
// running external speech binaries.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/set-night/sofia/internal/domain"
)

// Command runs a binary with input on stdin and reads its stdout.
type Command struct {
	argv     []string
	language string
	timeout  time.Duration
}

// NewCommand parses a shell-free command line. It returns nil for an empty line.
func NewCommand(line, language string, timeout time.Duration) *Command {
	argv := strings.Fields(line)
	if len(argv) == 0 {
		return nil
	}
	return &Command{argv: argv, language: language, timeout: timeout}
}

func (c *Command) run(ctx context.Context, input []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Env = append(os.Environ(), "SPEECH_LANGUAGE="+c.language)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", c.argv[0], err, msg)
		}
		return nil, fmt.Errorf("%s: %w", c.argv[0], err)
	}
	return stdout.Bytes(), nil
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// CommandTranscriber pipes audio into an STT binary and reads text back.
type CommandTranscriber struct {
	cmd *Command
}

func NewCommandTranscriber(cmd *Command) *CommandTranscriber {
	return &CommandTranscriber{cmd: cmd}
}

func (t *CommandTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	out, err := t.cmd.run(ctx, audio)
	if err != nil {
		return "", captureError(err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CommandSynthesizer pipes text into a TTS binary and reads OGG/Opus audio back.
type CommandSynthesizer struct {
	cmd *Command
}

func NewCommandSynthesizer(cmd *Command) *CommandSynthesizer {
	return &CommandSynthesizer{cmd: cmd}
}

func (s *CommandSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	out, err := s.cmd.run(ctx, []byte(text))
	if err != nil {
		return nil, &domain.SpeechError{Output: true, Code: domain.SpeechFailed, Err: err}
	}
	if len(out) == 0 {
		return nil, &domain.SpeechError{Output: true, Code: domain.SpeechFailed, Err: errors.New("no audio produced")}
	}
	return out, nil
}

func captureError(err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return &domain.SpeechError{Code: domain.SpeechHardwareAbsent, Err: err}
	}
	return &domain.SpeechError{Code: domain.SpeechFailed, Err: err}
}

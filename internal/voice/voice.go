// Package voice provides the optional speech channels of the assistant. Both are backed by
// external commands so any text-to-speech or speech-to-text tool on the host can be used.
package voice

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/harunnryd/kiki/internal/config"

	"github.com/google/shlex"
)

// Speaker turns text into audio. Speak never blocks and never reports failure.
type Speaker interface {
	Speak(text string)
}

// Listener captures one spoken utterance per session.
type Listener interface {
	// StartListening begins a session and reports whether it was started. onResult is
	// called with at most one transcript; onError is not called when the session is
	// stopped by StopListening.
	StartListening(onResult func(string), onError func(error)) bool
	StopListening()
	Listening() bool
}

// commandFunc runs argv and returns its stdout.
type commandFunc func(ctx context.Context, argv []string) ([]byte, error)

func runCommand(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return exec.CommandContext(ctx, argv[0], argv[1:]...).Output()
}

// New builds the speaker and listener from the voice config section. Channels without a
// configured command fall back to the null implementations.
func New(cfg config.VoiceConfig) (Speaker, Listener, error) {
	var speaker Speaker = NullSpeaker{}
	if strings.TrimSpace(cfg.SpeakCommand) != "" {
		s, err := NewCommandSpeaker(cfg.SpeakCommand)
		if err != nil {
			return nil, nil, fmt.Errorf("voice.speak_command: %w", err)
		}
		speaker = s
	}

	var listener Listener = NullListener{}
	if strings.TrimSpace(cfg.ListenCommand) != "" {
		l, err := NewCommandListener(cfg.ListenCommand)
		if err != nil {
			return nil, nil, fmt.Errorf("voice.listen_command: %w", err)
		}
		listener = l
	}

	return speaker, listener, nil
}

func splitCommand(command string) ([]string, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return argv, nil
}

type NullSpeaker struct{}

func (NullSpeaker) Speak(string) {}

type NullListener struct{}

func (NullListener) StartListening(func(string), func(error)) bool { return false }
func (NullListener) StopListening()                                {}
func (NullListener) Listening() bool                               { return false }

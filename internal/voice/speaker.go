package voice

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/harunnryd/kiki/internal/concurrency"
)

// CommandSpeaker speaks by running a command with the text appended as its last argument.
// Utterances are queued and played one at a time, in the order they were requested, by a
// single drain goroutine that exits when the queue is empty.
type CommandSpeaker struct {
	argv []string
	run  commandFunc

	mu       sync.Mutex
	pending  [][]string
	draining bool
	wg       sync.WaitGroup
}

func NewCommandSpeaker(command string) (*CommandSpeaker, error) {
	argv, err := splitCommand(command)
	if err != nil {
		return nil, err
	}
	return &CommandSpeaker{argv: argv, run: runCommand}, nil
}

func (s *CommandSpeaker) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	argv := make([]string, 0, len(s.argv)+1)
	argv = append(argv, s.argv...)
	argv = append(argv, text)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.wg.Add(1)
	s.pending = append(s.pending, argv)
	if s.draining {
		return
	}
	s.draining = true
	concurrency.Go("voice.speak", s.drain, func(interface{}) { s.abandon() })
}

func (s *CommandSpeaker) drain() {
	for {
		argv, ok := s.next()
		if !ok {
			return
		}
		if _, err := s.run(context.Background(), argv); err != nil {
			slog.Debug("Speech output failed", "command", s.argv[0], "error", err)
		}
		s.wg.Done()
	}
}

// next pops the oldest utterance, or marks the drain finished when none is left.
func (s *CommandSpeaker) next() ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		s.draining = false
		return nil, false
	}
	argv := s.pending[0]
	s.pending = s.pending[1:]
	return argv, true
}

// abandon drops the queue after the drain goroutine panicked.
func (s *CommandSpeaker) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range s.pending {
		s.wg.Done()
	}
	s.pending = nil
	s.draining = false
	s.wg.Done()
}

// Wait blocks until every pending utterance has finished.
func (s *CommandSpeaker) Wait() {
	s.wg.Wait()
}

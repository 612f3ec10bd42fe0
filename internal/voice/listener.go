package voice

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/harunnryd/kiki/internal/concurrency"
	kerrors "github.com/harunnryd/kiki/internal/errors"
)

// CommandListener runs a speech-to-text command per session and takes the first non-empty
// line of its output as the transcript.
type CommandListener struct {
	argv []string
	run  commandFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	session uint64
}

func NewCommandListener(command string) (*CommandListener, error) {
	argv, err := splitCommand(command)
	if err != nil {
		return nil, err
	}
	return &CommandListener{argv: argv, run: runCommand}, nil
}

func (l *CommandListener) StartListening(onResult func(string), onError func(error)) bool {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.session++
	session := l.session
	l.mu.Unlock()

	concurrency.Go("voice.listen", func() {
		out, err := l.run(ctx, l.argv)
		stopped := ctx.Err() != nil
		l.finish(session)

		if stopped {
			return
		}
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("speech recognition failed: %w", err))
			}
			return
		}

		transcript := firstLine(out)
		if transcript == "" {
			if onError != nil {
				onError(kerrors.NotFound("no speech recognized"))
			}
			return
		}
		if onResult != nil {
			onResult(transcript)
		}
	}, func(interface{}) {
		l.finish(session)
	})
	return true
}

func (l *CommandListener) StopListening() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *CommandListener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// finish ends the given session unless a newer one has already replaced it.
func (l *CommandListener) finish(session uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == session && l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func firstLine(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line
		}
	}
	return ""
}

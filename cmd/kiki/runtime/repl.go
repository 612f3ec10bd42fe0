package runtime

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/harunnryd/kiki/internal/chat"
	"github.com/harunnryd/kiki/internal/render"

	"github.com/google/shlex"
)

// QuickActions are the canned prompts offered next to the input box.
var QuickActions = []string{
	"Help me",
	"Weather",
	"Todo",
	"Time",
}

var errExit = errors.New("exit requested")

type REPL struct {
	components *RuntimeComponents
	reader     *bufio.Reader
	out        io.Writer
	exportDir  string

	mu      sync.Mutex
	draft   string
	printed int
	cards   int
}

func NewREPL(components *RuntimeComponents, in io.Reader, out io.Writer) *REPL {
	exportDir := components.Config.App.ExportDir
	if exportDir == "" {
		exportDir = "."
	}
	return &REPL{
		components: components,
		reader:     bufio.NewReader(in),
		out:        &syncWriter{w: out},
		exportDir:  exportDir,
	}
}

func (r *REPL) Start() error {
	fmt.Fprintf(r.out, "%s\n", r.components.Config.App.Name)
	fmt.Fprintln(r.out, "Type '/help' for commands, '/exit' to quit.")
	r.flush()

	for {
		select {
		case <-r.components.Ctx.Done():
			return nil
		default:
			if err := r.readLine(); err != nil {
				if err == io.EOF || errors.Is(err, errExit) {
					return nil
				}
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
		}
	}
}

func (r *REPL) readLine() error {
	fmt.Fprint(r.out, "> ")
	text, err := r.reader.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return err
	}

	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/") {
		return r.handleCommand(text)
	}

	r.send(r.takeDraft(text))
	return nil
}

// takeDraft merges a pending voice draft with the typed line and clears the draft.
func (r *REPL) takeDraft(text string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := strings.TrimSpace(joinDraft(r.draft, text))
	r.draft = ""
	return merged
}

func (r *REPL) send(text string) {
	if text == "" {
		return
	}
	r.components.Assistant.HandleSend(r.components.Ctx, text)
	r.flush()
}

// flush prints transcript entries and task cards not yet shown.
func (r *REPL) flush() {
	state := r.components.Assistant.State()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.printed > len(state.Messages) {
		r.printed = 0
	}
	for _, m := range state.Messages[r.printed:] {
		fmt.Fprintln(r.out, render.MessageLine(m))
	}
	r.printed = len(state.Messages)

	if r.cards > len(state.Tasks) {
		r.cards = 0
	}
	for _, task := range state.Tasks[r.cards:] {
		fmt.Fprintln(r.out, render.TaskCard(task))
	}
	r.cards = len(state.Tasks)

	if !state.Connected {
		fmt.Fprintln(r.out, render.StatusStyle(chat.TaskError).Render("● offline"))
	}
}

func (r *REPL) handleCommand(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if len(args) == 0 {
		return nil
	}

	switch args[0] {
	case "/exit", "/quit":
		return errExit
	case "/help":
		r.printHelp()
	case "/clear":
		r.components.Assistant.Clear()
		r.mu.Lock()
		r.printed, r.cards = 0, 0
		r.mu.Unlock()
		fmt.Fprintln(r.out, "Conversation cleared.")
		r.flush()
	case "/export":
		dir := r.exportDir
		if len(args) > 1 {
			dir = args[1]
		}
		path, err := r.components.Assistant.ExportFile(dir)
		if err != nil {
			return fmt.Errorf("export conversation: %w", err)
		}
		fmt.Fprintf(r.out, "Conversation exported to %s\n", path)
	case "/voice":
		return r.handleVoice(args[1:])
	case "/listen":
		r.startListening()
	case "/stop":
		r.components.Listener.StopListening()
		fmt.Fprintln(r.out, "Stopped listening.")
	case "/tasks":
		fmt.Fprintln(r.out, render.NewTableFormatter().Tasks(r.components.Assistant.State().Tasks))
	case "/quick":
		return r.handleQuick(args[1:])
	default:
		return fmt.Errorf("unknown command %q, type /help", args[0])
	}
	return nil
}

func (r *REPL) handleVoice(args []string) error {
	if len(args) == 0 {
		state := "off"
		if r.components.Assistant.VoiceEnabled() {
			state = "on"
		}
		fmt.Fprintf(r.out, "Voice is %s.\n", state)
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "on":
		r.components.Assistant.SetVoiceEnabled(true)
		fmt.Fprintln(r.out, "Voice enabled.")
	case "off":
		r.components.Assistant.SetVoiceEnabled(false)
		r.components.Listener.StopListening()
		fmt.Fprintln(r.out, "Voice disabled.")
	default:
		return fmt.Errorf("usage: /voice on|off")
	}
	return nil
}

func (r *REPL) startListening() {
	if !r.components.Assistant.VoiceEnabled() {
		fmt.Fprintln(r.out, "Voice is off. Use '/voice on' first.")
		return
	}

	started := r.components.Listener.StartListening(
		func(transcript string) {
			r.mu.Lock()
			r.draft = joinDraft(r.draft, transcript)
			draft := r.draft
			r.mu.Unlock()
			fmt.Fprintf(r.out, "\n🎤 %s\n(press Enter to send)\n", draft)
		},
		func(err error) {
			fmt.Fprintf(r.out, "\nvoice recognition error: %v\n", err)
		},
	)
	if !started {
		fmt.Fprintln(r.out, "Voice input is unavailable.")
		return
	}
	fmt.Fprintln(r.out, "Listening... type '/stop' to cancel.")
}

func (r *REPL) handleQuick(args []string) error {
	if len(args) == 0 {
		for i, prompt := range QuickActions {
			fmt.Fprintf(r.out, "  %d. %s\n", i+1, prompt)
		}
		return nil
	}

	var n int
	if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n < 1 || n > len(QuickActions) {
		return fmt.Errorf("quick action must be between 1 and %d", len(QuickActions))
	}
	r.send(QuickActions[n-1])
	return nil
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out, `Commands:
  /clear            reset the conversation
  /export [dir]     write the conversation as JSON
  /voice on|off     toggle spoken replies
  /listen           capture one voice utterance into the draft
  /stop             stop listening
  /tasks            show executed actions
  /quick [n]        list or send a quick action
  /exit             quit`)
	fmt.Fprintln(r.out, "Quick actions:")
	for i, prompt := range QuickActions {
		fmt.Fprintf(r.out, "  %d. %s\n", i+1, prompt)
	}
}

// syncWriter serializes writes from the input loop and the voice callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func joinDraft(prev, next string) string {
	prev = strings.TrimSpace(prev)
	next = strings.TrimSpace(next)
	switch {
	case prev == "":
		return next
	case next == "":
		return prev
	default:
		return prev + " " + next
	}
}

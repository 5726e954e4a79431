package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"

	"finchat/internal/conversation"
	"finchat/pkg/logger"
)

// Terminal prints the conversation to a terminal. The reply being streamed
// is written as plain text as it grows. Replies that arrive whole are
// rendered through glamour when a markdown style is configured.
type Terminal struct {
	mu       sync.Mutex
	w        io.Writer
	glamour  *glamour.TermRenderer
	printed  int // messages fully written
	partial  int // bytes of the streaming reply already written
	status   string
	showUser bool
}

type TerminalOption func(*Terminal)

// WithEchoUser also prints user messages; off by default because the input
// line already shows them.
func WithEchoUser() TerminalOption {
	return func(t *Terminal) { t.showUser = true }
}

// NewTerminal creates a terminal surface. style is a glamour standard style
// ("auto", "dark", "light", "notty"); an empty style disables markdown.
func NewTerminal(w io.Writer, style string, opts ...TerminalOption) (*Terminal, error) {
	t := &Terminal{w: w}
	if style != "" {
		gr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			return nil, fmt.Errorf("create markdown renderer: %w", err)
		}
		t.glamour = gr
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Terminal) Draw(v View) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.printed > len(v.Messages) {
		t.printed, t.partial = 0, 0
	}

	if v.ShowStatus {
		if v.Status != t.status {
			fmt.Fprintf(t.w, "  … %s\n", ansi.Strip(v.Status))
			t.status = v.Status
		}
	} else {
		t.status = ""
	}

	for i := t.printed; i < len(v.Messages); i++ {
		m := v.Messages[i]
		last := i == len(v.Messages)-1
		if m.Role == conversation.RoleUser {
			if t.showUser {
				fmt.Fprintf(t.w, "> %s\n", ansi.Strip(m.Source))
			}
			t.printed++
			continue
		}

		text := ansi.Strip(m.Source)
		if t.partial > len(text) {
			t.partial = len(text)
		}
		if last && v.Streaming {
			io.WriteString(t.w, text[t.partial:])
			t.partial = len(text)
			return
		}

		t.finish(text)
		t.printed++
		t.partial = 0
	}
}

// finish completes a reply that may already be partly on screen. Only a
// reply with nothing on screen yet goes through glamour.
func (t *Terminal) finish(text string) {
	if t.partial == 0 {
		if rendered := t.markdown(text); rendered != "" {
			io.WriteString(t.w, rendered)
			return
		}
	}
	io.WriteString(t.w, text[t.partial:])
	io.WriteString(t.w, "\n\n")
}

func (t *Terminal) markdown(text string) string {
	if t.glamour == nil || !looksLikeMarkdown(text) {
		return ""
	}
	out, err := t.glamour.Render(text)
	if err != nil {
		logger.Warnf("cannot render markdown: %v", err)
		return ""
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

// ScrollToLatest is a no-op: terminal output always ends at the newest line.
func (t *Terminal) ScrollToLatest() {}

func looksLikeMarkdown(s string) bool {
	return strings.ContainsAny(s, "*_`#|[") || strings.Contains(s, "\n- ")
}

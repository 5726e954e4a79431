package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat/internal/conversation"
	"finchat/internal/stream"
)

const hostile = "<script>alert(1)</script>\n\n" +
	"[click](javascript:alert(2))\n\n" +
	"<img src=x onerror=alert(3)>\n\n" +
	"<a href=\"#\" onclick=\"steal()\">x</a> **still bold**"

func assistant(id, content string) conversation.Message {
	return conversation.Message{ID: id, Role: conversation.RoleAssistant, Content: content, CreatedAt: time.Now()}
}

func TestHTMLRendersMarkdown(t *testing.T) {
	r := New()

	out := r.HTML("**Reliance** is up 2%\n\n| a | b |\n|---|---|\n| 1 | 2 |")

	assert.Contains(t, out, "<strong>Reliance</strong>")
	assert.Contains(t, out, "<table>")
}

func TestHTMLSanitizesHostileContent(t *testing.T) {
	r := New()

	out := strings.ToLower(r.HTML(hostile))

	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "javascript:")
	assert.NotContains(t, out, "<img")
	assert.NotContains(t, out, "onclick=\"")
	assert.Contains(t, out, "<strong>still bold</strong>")
}

func TestTextStripsMarkup(t *testing.T) {
	r := New()

	out := r.Text("<b>hi</b> & 5 < 6")

	assert.NotContains(t, out, "<b>")
	assert.Contains(t, out, "hi")
	assert.Contains(t, out, "&amp;")
}

func TestRenderStatusIndicator(t *testing.T) {
	r := New()
	greeting := assistant("g", conversation.Greeting)
	user := conversation.Message{ID: "u", Role: conversation.RoleUser, Content: "price of TCS?"}

	tests := []struct {
		name       string
		snap       conversation.Snapshot
		showStatus bool
		status     string
	}{
		{
			name: "idle",
			snap: conversation.Snapshot{Messages: []conversation.Message{greeting}},
		},
		{
			name:       "awaiting first event",
			snap:       conversation.Snapshot{Messages: []conversation.Message{greeting, user}, IsStreaming: true, TransientStatus: conversation.ProcessingStatus},
			showStatus: true,
			status:     conversation.ProcessingStatus,
		},
		{
			name:       "thinking",
			snap:       conversation.Snapshot{Messages: []conversation.Message{greeting, user}, IsStreaming: true, TransientStatus: "Fetching <b>quote</b>"},
			showStatus: true,
			status:     "Fetching quote",
		},
		{
			name:       "empty status falls back to placeholder",
			snap:       conversation.Snapshot{Messages: []conversation.Message{greeting, user}, IsStreaming: true},
			showStatus: true,
			status:     conversation.ProcessingStatus,
		},
		{
			name: "content arrived",
			snap: conversation.Snapshot{Messages: []conversation.Message{greeting, user, assistant("a", "TCS")}, IsStreaming: true, TurnHasContent: true, TransientStatus: "still thinking"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := r.Render(tt.snap)
			assert.Equal(t, tt.showStatus, v.ShowStatus)
			assert.Equal(t, tt.status, v.Status)
			assert.Len(t, v.Messages, len(tt.snap.Messages))
		})
	}
}

func TestRenderKeepsOrderAndSanitizes(t *testing.T) {
	r := New()
	snap := conversation.Snapshot{Messages: []conversation.Message{
		assistant("g", conversation.Greeting),
		{ID: "u", Role: conversation.RoleUser, Content: "<script>x()</script>hello"},
		assistant("a", hostile),
	}}

	v := r.Render(snap)

	require.Len(t, v.Messages, 3)
	assert.Equal(t, []string{"g", "u", "a"}, []string{v.Messages[0].ID, v.Messages[1].ID, v.Messages[2].ID})
	for _, m := range v.Messages {
		assert.NotContains(t, strings.ToLower(m.HTML), "<script")
	}
	assert.Contains(t, v.Messages[1].HTML, "hello")
}

func TestRenderRefreshesGrowingMessage(t *testing.T) {
	r := New()
	msgs := []conversation.Message{assistant("a", "Hel")}

	first := r.Render(conversation.Snapshot{Messages: msgs})
	msgs[0].Content = "Hello **world**"
	second := r.Render(conversation.Snapshot{Messages: msgs})

	assert.Contains(t, first.Messages[0].HTML, "Hel")
	assert.Contains(t, second.Messages[0].HTML, "<strong>world</strong>")
}

type recordingSurface struct {
	views    []View
	scrolled int
}

func (s *recordingSurface) Draw(v View)     { s.views = append(s.views, v) }
func (s *recordingSurface) ScrollToLatest() { s.scrolled++ }

func TestBindRedrawsOnChange(t *testing.T) {
	state := conversation.NewState()
	d := conversation.NewDispatcher(state)
	surface := &recordingSurface{}

	unbind := Bind(state, New(), surface)
	require.Len(t, surface.views, 1)

	require.NoError(t, d.Begin("hi"))
	last := surface.views[len(surface.views)-1]
	assert.True(t, last.ShowStatus)

	d.Apply(stream.Content("Hello"))
	last = surface.views[len(surface.views)-1]
	assert.False(t, last.ShowStatus)
	assert.Contains(t, last.Messages[len(last.Messages)-1].HTML, "Hello")
	assert.Equal(t, len(surface.views), surface.scrolled)

	unbind()
	n := len(surface.views)
	d.Apply(stream.Done())
	assert.Len(t, surface.views, n)
}

func TestTerminalStreamsDeltas(t *testing.T) {
	var out bytes.Buffer
	term, err := NewTerminal(&out, "")
	require.NoError(t, err)

	state := conversation.NewState()
	d := conversation.NewDispatcher(state)
	unbind := Bind(state, New(), term)
	defer unbind()

	require.NoError(t, d.Begin("hi"))
	d.Apply(stream.Thinking("Looking up NIFTY"))
	d.Apply(stream.Content("Sen"))
	d.Apply(stream.Content("sex \x1b[31mred\x1b[0m"))
	d.Apply(stream.Done())

	got := out.String()
	assert.Contains(t, got, conversation.Greeting)
	assert.Contains(t, got, "… "+conversation.ProcessingStatus)
	assert.Contains(t, got, "… Looking up NIFTY")
	assert.Contains(t, got, "Sensex red\n\n")
	assert.Equal(t, 1, strings.Count(got, "Sensex"))
	assert.NotContains(t, got, "\x1b[31m")
	assert.NotContains(t, got, "> hi")
}

func TestTerminalRendersMarkdownReplies(t *testing.T) {
	var out bytes.Buffer
	term, err := NewTerminal(&out, "notty", WithEchoUser())
	require.NoError(t, err)

	term.Draw(View{Messages: []MessageView{
		{Role: conversation.RoleUser, Source: "show movers"},
		{Role: conversation.RoleAssistant, Source: "## Top movers\n\n- **INFY** +3%"},
	}})

	got := out.String()
	assert.Contains(t, got, "> show movers")
	assert.Contains(t, got, "Top movers")
	assert.Contains(t, got, "INFY")
}

func TestTerminalPrintsStreamedMarkdownOnce(t *testing.T) {
	var out bytes.Buffer
	term, err := NewTerminal(&out, "notty")
	require.NoError(t, err)

	state := conversation.NewState()
	d := conversation.NewDispatcher(state)
	unbind := Bind(state, New(), term)
	defer unbind()

	require.NoError(t, d.Begin("show movers"))
	d.Apply(stream.Content("## Top movers\n\n"))
	d.Apply(stream.Content("- **INFY** +3%"))
	d.Apply(stream.Done())

	got := out.String()
	assert.Contains(t, got, "## Top movers\n\n- **INFY** +3%\n\n")
	assert.Equal(t, 1, strings.Count(got, "Top movers"))
	assert.Equal(t, 1, strings.Count(got, "INFY"))
}

func TestExportHTML(t *testing.T) {
	r := New()
	v := r.Render(conversation.Snapshot{Messages: []conversation.Message{
		assistant("g", conversation.Greeting),
		{ID: "u", Role: conversation.RoleUser, Content: "<script>x()</script>q", CreatedAt: time.Now()},
		assistant("a", hostile),
	}})

	var buf bytes.Buffer
	require.NoError(t, ExportHTML(&buf, "</title><script>bad()</script>", v))

	page := strings.ToLower(buf.String())
	assert.True(t, strings.HasPrefix(page, "<!doctype html>"))
	assert.NotContains(t, page, "<script")
	assert.Contains(t, page, "<strong>still bold</strong>")
	assert.Contains(t, page, "assistant-message")
	assert.Contains(t, page, "user-message")
}

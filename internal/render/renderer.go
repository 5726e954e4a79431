// Package render turns conversation snapshots into sanitized views and
// pushes them to a display surface.
package render

import (
	"bytes"
	"html"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"finchat/internal/conversation"
	"finchat/pkg/logger"
)

// MessageView is one rendered message. HTML is always sanitized; Source is
// the raw text and must be treated as untrusted by the surface.
type MessageView struct {
	ID        string
	Role      conversation.Role
	HTML      string
	Source    string
	CreatedAt time.Time
}

type View struct {
	Messages   []MessageView
	Streaming  bool
	ShowStatus bool
	Status     string
	Revision   uint64
}

type cached struct {
	content string
	html    string
}

// Renderer converts markdown to HTML with goldmark and sanitizes the result
// with bluemonday. Raw HTML in the markdown source is never passed through.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	strict *bluemonday.Policy

	mu    sync.Mutex
	cache map[string]cached
}

func New() *Renderer {
	return &Renderer{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
		cache:  make(map[string]cached),
	}
}

// HTML renders assistant markdown.
func (r *Renderer) HTML(markdown string) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		logger.Warnf("markdown conversion failed, rendering as text: %v", err)
		return "<p>" + r.Text(markdown) + "</p>"
	}
	return r.policy.Sanitize(buf.String())
}

// Text renders user input as plain text: no markup survives.
func (r *Renderer) Text(s string) string {
	return r.strict.Sanitize(s)
}

// Render builds the view for a snapshot, oldest message first. The status
// indicator is shown only while streaming and before the active turn has
// produced any visible text.
func (r *Renderer) Render(snap conversation.Snapshot) View {
	v := View{
		Messages:   make([]MessageView, 0, len(snap.Messages)),
		Streaming:  snap.IsStreaming,
		ShowStatus: snap.IsStreaming && !snap.TurnHasContent,
		Revision:   snap.Revision,
	}
	if v.ShowStatus {
		v.Status = snap.TransientStatus
		if v.Status == "" {
			v.Status = conversation.ProcessingStatus
		}
		v.Status = html.UnescapeString(r.Text(v.Status))
	}

	seen := make(map[string]struct{}, len(snap.Messages))
	for _, m := range snap.Messages {
		seen[m.ID] = struct{}{}
		v.Messages = append(v.Messages, MessageView{
			ID:        m.ID,
			Role:      m.Role,
			HTML:      r.messageHTML(m),
			Source:    m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	r.prune(seen)
	return v
}

// messageHTML re-renders a message only when its content changed since the
// previous call.
func (r *Renderer) messageHTML(m conversation.Message) string {
	r.mu.Lock()
	c, ok := r.cache[m.ID]
	r.mu.Unlock()
	if ok && c.content == m.Content {
		return c.html
	}

	var out string
	if m.Role == conversation.RoleUser {
		out = "<p>" + r.Text(m.Content) + "</p>"
	} else {
		out = r.HTML(m.Content)
	}

	r.mu.Lock()
	r.cache[m.ID] = cached{content: m.Content, html: out}
	r.mu.Unlock()
	return out
}

func (r *Renderer) prune(seen map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.cache {
		if _, ok := seen[id]; !ok {
			delete(r.cache, id)
		}
	}
}

package stream

import (
	"encoding/json"
	"errors"
	"strings"

	"finchat/pkg/logger"
)

const frameDelimiter = "\n\n"

// errNoFields marks a frame that carries only comments, e.g. a heartbeat.
var errNoFields = errors.New("frame has no fields")

// Parser turns an incrementally delivered text stream into events. A Parser
// belongs to a single turn and is not safe for concurrent use.
type Parser struct {
	buf      string
	dropped  int
	finished bool
}

func NewParser() *Parser {
	return &Parser{}
}

// Feed appends chunk to the buffer and returns every event whose frame is
// now complete, in arrival order. The trailing segment after the last
// delimiter is kept verbatim for the next call. Once a done event has been
// returned the parser discards everything after it.
func (p *Parser) Feed(chunk string) []Event {
	if p.finished || chunk == "" {
		return nil
	}

	p.buf += chunk
	end := completeLen(p.buf)
	if end == 0 {
		return nil
	}
	complete := normalizeNewlines(p.buf[:end])
	p.buf = p.buf[end:]

	// complete ends with the delimiter, so the last segment is empty
	segments := strings.Split(complete, frameDelimiter)

	var events []Event
	for _, frame := range segments[:len(segments)-1] {
		ev, ok := p.parse(frame)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.Terminal() {
			p.finish()
			break
		}
	}
	return events
}

// Flush is called at end of stream. A trailing frame that was never
// terminated by a blank line is parsed once; the buffer is then empty.
func (p *Parser) Flush() []Event {
	if p.finished {
		return nil
	}
	rest := normalizeNewlines(p.buf)
	p.finish()

	ev, ok := p.parse(rest)
	if !ok {
		return nil
	}
	return []Event{ev}
}

// Reset drops any buffered partial frame.
func (p *Parser) Reset() {
	p.buf = ""
}

// Pending returns the buffered, not yet complete frame.
func (p *Parser) Pending() string {
	return p.buf
}

// Dropped returns how many frames were discarded as malformed or unknown.
func (p *Parser) Dropped() int {
	return p.dropped
}

// completeLen returns the length of the prefix of s that ends with the last
// blank line. Line breaks may be LF or CRLF.
func completeLen(s string) int {
	end := 0
	afterBreak := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\n':
			if afterBreak {
				end = i + 1
				afterBreak = false
			} else {
				afterBreak = true
			}
		case s[i] == '\r' && i+1 < len(s) && s[i+1] == '\n':
		default:
			afterBreak = false
		}
	}
	return end
}

func normalizeNewlines(s string) string {
	if strings.Contains(s, "\r\n") {
		return strings.ReplaceAll(s, "\r\n", "\n")
	}
	return s
}

func (p *Parser) finish() {
	p.buf = ""
	p.finished = true
}

func (p *Parser) parse(frame string) (Event, bool) {
	if strings.TrimSpace(frame) == "" {
		return Event{}, false
	}
	ev, err := ParseFrame(frame)
	switch {
	case err == nil:
		return ev, true
	case errors.Is(err, errNoFields):
		return Event{}, false
	default:
		p.dropped++
		logger.Warnf("dropping stream frame: %v", err)
		return Event{}, false
	}
}

// ParseFrame decodes a single frame without its trailing delimiter.
func ParseFrame(frame string) (Event, error) {
	var (
		name     string
		hasEvent bool
		data     []string
	)
	for _, line := range strings.Split(frame, "\n") {
		switch {
		case line == "", strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			hasEvent = true
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if !hasEvent && len(data) == 0 {
		return Event{}, errNoFields
	}

	kind := parseKind(name)
	payload := strings.TrimSpace(strings.Join(data, "\n"))
	if payload == "" {
		payload = "{}"
	}

	switch kind {
	case KindThinking:
		var p thinkingPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return Event{}, &FrameParseError{Frame: frame, Err: err}
		}
		return Thinking(p.Status), nil
	case KindContent:
		var p contentPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return Event{}, &FrameParseError{Frame: frame, Err: err}
		}
		return Content(p.Delta), nil
	case KindDone:
		return Done(), nil
	default:
		return Event{Kind: KindUnknown, Raw: frame}, &UnknownEventKindError{Name: name}
	}
}

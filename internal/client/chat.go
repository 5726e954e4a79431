package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"finchat/internal/conversation"
	"finchat/pkg/logger"
)

// MaxHistory caps how many prior messages are sent with a chat request.
const MaxHistory = 10

const chunkSize = 4096

type ChatRequest struct {
	Message string                      `json:"message"`
	History []conversation.HistoryEntry `json:"history"`
}

// StreamChat posts a chat message and returns the streamed reply. Only the
// MaxHistory most recent history entries are sent.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, conversation.ErrEmptyMessage
	}
	req.History = trimHistory(req.History)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/message", bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Reason: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Reason: "request failed", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &TransportError{StatusCode: resp.StatusCode, Reason: readDetail(resp)}
	}

	logger.Debugf("chat stream opened, %d history entries", len(req.History))
	return newChatStream(resp.Body), nil
}

func trimHistory(h []conversation.HistoryEntry) []conversation.HistoryEntry {
	if len(h) > MaxHistory {
		h = h[len(h)-MaxHistory:]
	}
	out := make([]conversation.HistoryEntry, len(h))
	copy(out, h)
	return out
}

// ChatStream is a pull iterator over the decoded text of a streamed reply.
// It cannot be restarted; a new request is needed for a new stream.
type ChatStream struct {
	body    io.ReadCloser
	buf     []byte
	pending []byte
	err     error
	once    sync.Once
}

func newChatStream(body io.ReadCloser) *ChatStream {
	return &ChatStream{body: body, buf: make([]byte, chunkSize)}
}

// Next blocks for the next chunk of text. It returns io.EOF once the server
// closes the stream, or a *TransportError if reading fails. A multi-byte
// UTF-8 sequence is never split between two chunks.
func (s *ChatStream) Next() (string, error) {
	for {
		if s.err != nil {
			if errors.Is(s.err, io.EOF) && len(s.pending) > 0 {
				rest := string(s.pending)
				s.pending = nil
				return rest, nil
			}
			return "", s.err
		}

		n, err := s.body.Read(s.buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.err = io.EOF
			} else {
				s.err = &TransportError{Reason: "stream interrupted", Err: err}
				s.pending = nil
			}
		}
		if n == 0 {
			continue
		}

		s.pending = append(s.pending, s.buf[:n]...)
		cut := completeUTF8(s.pending)
		if cut == 0 {
			continue
		}
		text := string(s.pending[:cut])
		rest := copy(s.pending, s.pending[cut:])
		s.pending = s.pending[:rest]
		return text, nil
	}
}

func (s *ChatStream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}

// completeUTF8 returns the length of the longest prefix of b that does not
// end inside a multi-byte sequence.
func completeUTF8(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

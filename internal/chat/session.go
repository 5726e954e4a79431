// Package chat drives one chat session: it sends each user message, reads
// the streamed reply, and applies the decoded events to the conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"finchat/internal/client"
	"finchat/internal/conversation"
	"finchat/internal/stream"
	"finchat/pkg/logger"
)

const DefaultIdleTimeout = 60 * time.Second

// Chunks is a pull iterator over the text of one streamed reply. Next
// returns io.EOF when the stream closes normally.
type Chunks interface {
	Next() (string, error)
	Close() error
}

// Transport opens the reply stream for a message.
type Transport interface {
	Open(ctx context.Context, message string, history []conversation.HistoryEntry) (Chunks, error)
}

type httpTransport struct {
	c *client.Client
}

// HTTPTransport streams replies from the backend chat endpoint.
func HTTPTransport(c *client.Client) Transport {
	return &httpTransport{c: c}
}

func (t *httpTransport) Open(ctx context.Context, message string, history []conversation.HistoryEntry) (Chunks, error) {
	s, err := t.c.StreamChat(ctx, client.ChatRequest{Message: message, History: history})
	if err != nil {
		return nil, err
	}
	return s, nil
}

type Option func(*Session)

// WithIdleTimeout ends a turn with the timeout fallback when no data
// arrives for d. Zero disables the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Session) { s.idleTimeout = d }
}

// WithHistoryLimit sets how many prior messages go with each request.
func WithHistoryLimit(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.historyLimit = n
		}
	}
}

type Session struct {
	transport    Transport
	state        *conversation.State
	dispatcher   *conversation.Dispatcher
	idleTimeout  time.Duration
	historyLimit int

	mu         sync.Mutex
	closed     bool
	cancelTurn context.CancelFunc
}

func NewSession(t Transport, opts ...Option) *Session {
	state := conversation.NewState()
	s := &Session{
		transport:    t,
		state:        state,
		dispatcher:   conversation.NewDispatcher(state),
		idleTimeout:  DefaultIdleTimeout,
		historyLimit: conversation.DefaultHistoryLen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() *conversation.State {
	return s.state
}

// Submit sends input and blocks until the reply has been fully applied.
// Blank input returns conversation.ErrEmptyMessage without touching the
// network or the state. Transport failures do not surface as errors: they
// end the turn with a fallback assistant message.
func (s *Session) Submit(ctx context.Context, input string) error {
	text := strings.TrimSpace(input)
	if text == "" {
		return conversation.ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return conversation.ErrDetached
	}
	history := s.state.History(s.historyLimit)
	if err := s.dispatcher.Begin(text); err != nil {
		s.mu.Unlock()
		return err
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.cancelTurn = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.cancelTurn = nil
		s.mu.Unlock()
	}()

	reason, err := s.run(turnCtx, text, history)
	s.dispatcher.Finish(reason, err)
	return nil
}

// Close abandons an in-flight reply. No event is applied to the state after
// Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.dispatcher.Detach()
	if s.cancelTurn != nil {
		s.cancelTurn()
	}
}

func (s *Session) run(ctx context.Context, text string, history []conversation.HistoryEntry) (conversation.TerminalReason, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timedOut atomic.Bool
	var idle *time.Timer
	if s.idleTimeout > 0 {
		idle = time.AfterFunc(s.idleTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
		defer idle.Stop()
	}

	chunks, err := s.transport.Open(ctx, text, history)
	if err != nil {
		return s.classify(ctx, &timedOut, err)
	}
	defer chunks.Close()
	// closing the stream on cancel unblocks a pending Next
	stop := context.AfterFunc(ctx, func() { chunks.Close() })
	defer stop()

	parser := stream.NewParser()
	for {
		chunk, err := chunks.Next()
		if err != nil {
			if errors.Is(err, io.EOF) && ctx.Err() == nil {
				for _, ev := range parser.Flush() {
					if s.dispatcher.Apply(ev) {
						return conversation.ReasonDone, nil
					}
				}
				return conversation.ReasonClosed, nil
			}
			return s.classify(ctx, &timedOut, err)
		}
		if idle != nil {
			idle.Reset(s.idleTimeout)
		}

		for _, ev := range parser.Feed(chunk) {
			if s.dispatcher.Apply(ev) {
				parser.Reset()
				return conversation.ReasonDone, nil
			}
		}
	}
}

func (s *Session) classify(ctx context.Context, timedOut *atomic.Bool, err error) (conversation.TerminalReason, error) {
	switch {
	case timedOut.Load():
		return conversation.ReasonTimeout, fmt.Errorf("no data for %s", s.idleTimeout)
	case ctx.Err() != nil:
		logger.Debugf("chat turn abandoned: %v", err)
		return conversation.ReasonCancelled, nil
	default:
		return conversation.ReasonTransportError, err
	}
}

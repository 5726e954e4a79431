package conversation

import (
	"errors"
	"strings"
	"sync"

	"finchat/internal/stream"
	"finchat/pkg/logger"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrTurnInProgress = errors.New("a response is still streaming")
	ErrDetached       = errors.New("conversation is closed")
)

// TerminalReason records why a turn ended.
type TerminalReason string

const (
	ReasonDone           TerminalReason = "done"
	ReasonClosed         TerminalReason = "closed"
	ReasonTransportError TerminalReason = "transport_error"
	ReasonTimeout        TerminalReason = "timeout"
	ReasonCancelled      TerminalReason = "cancelled"
)

// Dispatcher applies stream events to a State in the order it receives them.
// After Detach it ignores everything.
type Dispatcher struct {
	mu       sync.Mutex
	state    *State
	detached bool
}

func NewDispatcher(state *State) *Dispatcher {
	return &Dispatcher{state: state}
}

// Begin opens a turn: the user message is appended and the state starts
// streaming with a placeholder status.
func (d *Dispatcher) Begin(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detached {
		return ErrDetached
	}

	s := d.state
	s.mu.Lock()
	if s.phase.active() {
		s.mu.Unlock()
		return ErrTurnInProgress
	}
	s.messages = append(s.messages, newMessage(RoleUser, text))
	s.streaming = true
	s.status = ProcessingStatus
	s.phase = PhaseAwaiting
	s.turnContent = false
	s.assistantIdx = -1
	s.revision++
	s.mu.Unlock()

	logger.Debugf("turn started, %d messages", len(s.messages))
	s.notify()
	return nil
}

// Apply applies one event and reports whether the turn is over.
func (d *Dispatcher) Apply(ev stream.Event) (terminal bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detached {
		return true
	}

	s := d.state
	s.mu.Lock()
	if !s.phase.active() {
		s.mu.Unlock()
		return true
	}
	if s.phase == PhaseAwaiting {
		s.phase = PhaseStreaming
	}

	switch ev.Kind {
	case stream.KindThinking:
		s.status = ev.Status
	case stream.KindContent:
		if ev.Delta != "" {
			if s.assistantIdx < 0 {
				s.messages = append(s.messages, newMessage(RoleAssistant, ""))
				s.assistantIdx = len(s.messages) - 1
			}
			s.messages[s.assistantIdx].Content += ev.Delta
			s.turnContent = true
		}
	case stream.KindDone:
		d.terminateLocked(ReasonDone)
		terminal = true
	default:
		logger.Debugf("ignoring %s event", ev.Kind)
	}
	s.revision++
	s.mu.Unlock()

	s.notify()
	return terminal
}

// Finish ends the active turn. Calling it on a turn that already ended is a
// no-op, so closure after done never adds a second fallback.
func (d *Dispatcher) Finish(reason TerminalReason, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detached {
		return
	}

	s := d.state
	s.mu.Lock()
	if !s.phase.active() {
		s.mu.Unlock()
		return
	}
	if err != nil {
		logger.Errorf("chat turn ended (%s): %v", reason, err)
	}
	d.terminateLocked(reason)
	s.revision++
	s.mu.Unlock()

	s.notify()
}

// Detach stops all further mutation and drops the state's observers. It is
// called when the owning UI goes away.
func (d *Dispatcher) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detached = true
	d.state.clearObservers()
}

func (d *Dispatcher) terminateLocked(reason TerminalReason) {
	s := d.state
	if !s.turnContent {
		switch reason {
		case ReasonTransportError:
			s.messages = append(s.messages, newMessage(RoleAssistant, ErrorFallback))
		case ReasonTimeout:
			s.messages = append(s.messages, newMessage(RoleAssistant, TimeoutFallback))
		}
	}
	s.streaming = false
	s.status = ""
	s.phase = PhaseTerminal
	s.assistantIdx = -1
	logger.Debugf("turn finished: %s", reason)
}

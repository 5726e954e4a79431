package conversation

import "sync"

// Phase is the per-turn state of the conversation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaiting
	PhaseStreaming
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaiting:
		return "awaiting"
	case PhaseStreaming:
		return "streaming"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

func (p Phase) active() bool {
	return p == PhaseAwaiting || p == PhaseStreaming
}

// Snapshot is a point-in-time copy of the state.
type Snapshot struct {
	Messages        []Message
	IsStreaming     bool
	TransientStatus string
	Phase           Phase
	// TurnHasContent is true once the active turn produced visible text.
	TurnHasContent bool
	Revision       uint64
}

// State is the transcript of one chat session. Reads are safe from any
// goroutine; only the Dispatcher mutates it.
type State struct {
	mu           sync.RWMutex
	messages     []Message
	streaming    bool
	status       string
	phase        Phase
	turnContent  bool
	assistantIdx int
	revision     uint64

	obsMu     sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int
}

// NewState creates a session transcript seeded with the assistant greeting.
func NewState() *State {
	return &State{
		messages:     []Message{newMessage(RoleAssistant, Greeting)},
		assistantIdx: -1,
		observers:    make(map[int]func(Snapshot)),
	}
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{
		Messages:        msgs,
		IsStreaming:     s.streaming,
		TransientStatus: s.status,
		Phase:           s.phase,
		TurnHasContent:  s.turnContent,
		Revision:        s.revision,
	}
}

// History returns up to n of the most recent messages, oldest first.
func (s *State) History(n int) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.messages) - n
	if start < 0 || n < 0 {
		start = 0
	}
	entries := make([]HistoryEntry, 0, len(s.messages)-start)
	for _, m := range s.messages[start:] {
		entries = append(entries, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return entries
}

// Observe registers fn to be called with a fresh snapshot after every
// change. The returned function removes the observer.
func (s *State) Observe(fn func(Snapshot)) (cancel func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

func (s *State) clearObservers() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = make(map[int]func(Snapshot))
}

// notify must be called without s.mu held.
func (s *State) notify() {
	snap := s.Snapshot()

	s.obsMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

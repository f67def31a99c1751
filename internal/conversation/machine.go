// Package conversation holds the conversation state machine: the message
// list, the active conversation id and the pending/error flags. Apply is
// the only way to change it.
package conversation

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidTransition is returned when an event is not valid in the
// current phase. State is left untouched.
var ErrInvalidTransition = errors.New("conversation: invalid transition")

// Role identifies who produced a message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message is one entry of a conversation. Messages are never modified once
// appended.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// Phase is the coarse state derived from the pending and error flags.
type Phase int

const (
	Idle Phase = iota
	Pending
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// State is a snapshot of the conversation. ActiveConversationID is empty
// until the backend assigns one; LastError is empty when there is none.
type State struct {
	Messages             []Message
	ActiveConversationID string
	Pending              bool
	// PendingSeq is the Seq of the Send awaiting a reply.
	PendingSeq           uint64
	LastError            string
	LastMessageAt        time.Time
}

// Phase reports the phase of s.
func (s State) Phase() Phase {
	switch {
	case s.Pending:
		return Pending
	case s.LastError != "":
		return Failed
	default:
		return Idle
	}
}

// Event is the closed set of inputs accepted by Apply.
type Event interface {
	apply(s *State, now time.Time) error
}

// Send appends the user's message before any backend confirmation. Seq tags
// the request; the Receive or Fail resolving it must carry the same Seq.
type Send struct {
	Text string
	Seq  uint64
}

// Receive appends the bot reply and adopts the conversation id when none is
// active yet.
type Receive struct {
	Content        string
	ConversationID string
	Seq            uint64
}

// Fail resolves a pending request without a reply. The user message stays.
// An empty Message resolves it without recording an inline error.
type Fail struct {
	Message string
	Seq     uint64
}

// Load replaces the conversation wholesale with persisted history.
type Load struct {
	Messages       []Message
	ConversationID string
}

// Reset starts a fresh, unpersisted conversation.
type Reset struct{}

func (e Send) apply(s *State, now time.Time) error {
	if s.Pending {
		return fmt.Errorf("%w: send while pending", ErrInvalidTransition)
	}
	s.Messages = append(s.Messages, Message{Role: RoleUser, Content: e.Text, Timestamp: now})
	s.Pending = true
	s.PendingSeq = e.Seq
	s.LastError = ""
	s.LastMessageAt = now
	return nil
}

func (e Receive) apply(s *State, now time.Time) error {
	if !s.Pending {
		return fmt.Errorf("%w: receive while not pending", ErrInvalidTransition)
	}
	if e.Seq != s.PendingSeq {
		return fmt.Errorf("%w: reply to send %d, pending send is %d", ErrInvalidTransition, e.Seq, s.PendingSeq)
	}
	s.Messages = append(s.Messages, Message{Role: RoleBot, Content: e.Content, Timestamp: now})
	s.Pending = false
	s.PendingSeq = 0
	if s.ActiveConversationID == "" && e.ConversationID != "" {
		s.ActiveConversationID = e.ConversationID
	}
	s.LastMessageAt = now
	return nil
}

func (e Fail) apply(s *State, _ time.Time) error {
	if !s.Pending {
		return fmt.Errorf("%w: fail while not pending", ErrInvalidTransition)
	}
	if e.Seq != s.PendingSeq {
		return fmt.Errorf("%w: failure of send %d, pending send is %d", ErrInvalidTransition, e.Seq, s.PendingSeq)
	}
	s.Pending = false
	s.PendingSeq = 0
	s.LastError = e.Message
	return nil
}

func (e Load) apply(s *State, _ time.Time) error {
	s.Messages = append([]Message(nil), e.Messages...)
	s.ActiveConversationID = e.ConversationID
	s.Pending = false
	s.PendingSeq = 0
	s.LastError = ""
	return nil
}

func (Reset) apply(s *State, _ time.Time) error {
	*s = State{}
	return nil
}

// Machine serialises events against a single State.
type Machine struct {
	mu        sync.Mutex
	state     State
	now       func() time.Time
	listeners []func(State)
}

// NewMachine creates an empty, idle Machine.
func NewMachine() *Machine {
	return &Machine{now: time.Now}
}

// Apply runs ev against the current state and notifies listeners on
// success.
func (m *Machine) Apply(ev Event) error {
	m.mu.Lock()
	next := m.state.clone()
	if err := ev.apply(&next, m.now()); err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = next
	snap := next.clone()
	listeners := m.listeners
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn to receive a snapshot after every applied event.
func (m *Machine) Subscribe(fn func(State)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (s State) clone() State {
	out := s
	if s.Messages != nil {
		out.Messages = append([]Message(nil), s.Messages...)
	}
	return out
}

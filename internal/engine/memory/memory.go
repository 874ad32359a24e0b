// Package memory keeps the dual-layer event record for a running session:
// a bounded recent window fed to stage collaborators, and the unbounded
// chronicle behind it.
package memory

import (
	"github.com/wyrdlabs/wyrd/internal/engine/state"
)

// RecentWindow is the number of chronicle events retained in the fast
// context window handed to collaborators each turn.
const RecentWindow = 20

// SessionMemory holds the recent window and the full chronicle for one
// session. It is not safe for concurrent use; the session manager
// serializes access per session.
type SessionMemory struct {
	recent    []state.EventNode
	chronicle []state.EventNode
	window    int
}

// New returns empty session memory with the default window size.
func New() *SessionMemory {
	return &SessionMemory{window: RecentWindow}
}

// Rebuild reconstructs memory from a persisted chronicle, oldest first.
// The recent window becomes the chronicle's tail.
func Rebuild(chronicle []state.EventNode) *SessionMemory {
	m := New()
	for _, event := range chronicle {
		m.Add(event)
	}
	return m
}

// Add appends an event to the chronicle and slides it into the recent
// window, evicting the oldest entry once the window is full.
func (m *SessionMemory) Add(event state.EventNode) {
	m.chronicle = append(m.chronicle, event)
	m.recent = append(m.recent, event)
	if len(m.recent) > m.window {
		m.recent = m.recent[len(m.recent)-m.window:]
	}
}

// ContextWindow returns a copy of the recent window, oldest first.
func (m *SessionMemory) ContextWindow() []state.EventNode {
	return append([]state.EventNode(nil), m.recent...)
}

// Chronicle returns a copy of the full event history, oldest first.
func (m *SessionMemory) Chronicle() []state.EventNode {
	return append([]state.EventNode(nil), m.chronicle...)
}

// Len reports the chronicle length.
func (m *SessionMemory) Len() int {
	return len(m.chronicle)
}

// ForTurn returns the chronicle entries recorded for the given turn.
func (m *SessionMemory) ForTurn(turn int) []state.EventNode {
	var events []state.EventNode
	for _, event := range m.chronicle {
		if event.TurnNumber == turn {
			events = append(events, event)
		}
	}
	return events
}

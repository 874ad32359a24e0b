package checkpoint

import (
	"context"
	"sync"

	"github.com/wyrdlabs/wyrd/internal/engine/state"
)

// Memory is an in-memory Store for tests and ephemeral sessions. Safe for
// concurrent use. Snapshots are deep-cloned on both paths so callers can
// never mutate stored state through a returned value.
type Memory struct {
	mu        sync.Mutex
	snapshots map[string]state.SessionState
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{snapshots: make(map[string]state.SessionState)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, sessionID string) (state.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.snapshots[sessionID]
	if !ok {
		return state.SessionState{}, ErrNotFound
	}
	return state.Clone(snapshot), nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, sessionID string, s state.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[sessionID] = state.Clone(s)
	return nil
}

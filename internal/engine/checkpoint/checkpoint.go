// Package checkpoint defines durable session snapshots. A snapshot is
// written after every committed turn; resume replays nothing, it loads the
// latest snapshot.
package checkpoint

import (
	"context"
	"errors"

	"github.com/wyrdlabs/wyrd/internal/engine/state"
)

// ErrNotFound indicates no snapshot exists for the session.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists the latest session snapshot per session id.
type Store interface {
	// Get loads the latest snapshot. Returns ErrNotFound when the
	// session has never been checkpointed.
	Get(ctx context.Context, sessionID string) (state.SessionState, error)
	// Put replaces the snapshot for the session.
	Put(ctx context.Context, sessionID string, s state.SessionState) error
}

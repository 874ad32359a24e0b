// Package telemetry records engine events worth keeping past the process:
// quality-gate overrides, stage failures, and scene transitions. Recording
// is best-effort; a failed append is logged, never surfaced to the turn.
package telemetry

import (
	"context"
	"log"
	"time"
)

// Severity classifies an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one recorded engine event.
type Event struct {
	SessionID  string    `json:"session_id"`
	TurnNumber int       `json:"turn_number"`
	Kind       string    `json:"kind"`
	Severity   Severity  `json:"severity"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Store persists emitted events.
type Store interface {
	AppendTelemetryEvent(ctx context.Context, event Event) error
}

// Emitter writes events to a Store. A nil Emitter or nil Store discards
// silently, so callers never guard their emit sites.
type Emitter struct {
	store Store
	now   func() time.Time
}

// NewEmitter returns an emitter over store. Store may be nil.
func NewEmitter(store Store) *Emitter {
	return &Emitter{store: store, now: time.Now}
}

// Emit records an event. Append failures are logged and swallowed.
func (e *Emitter) Emit(ctx context.Context, sessionID string, turn int, kind string, severity Severity, detail string) {
	if e == nil || e.store == nil {
		return
	}
	event := Event{
		SessionID:  sessionID,
		TurnNumber: turn,
		Kind:       kind,
		Severity:   severity,
		Detail:     detail,
		OccurredAt: e.now().UTC(),
	}
	if err := e.store.AppendTelemetryEvent(ctx, event); err != nil {
		log.Printf("telemetry append failed for %s: %v", kind, err)
	}
}

package turn

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyrdlabs/wyrd/internal/engine/checkpoint"
	"github.com/wyrdlabs/wyrd/internal/engine/graph"
	"github.com/wyrdlabs/wyrd/internal/engine/memory"
	"github.com/wyrdlabs/wyrd/internal/engine/state"
	"github.com/wyrdlabs/wyrd/internal/telemetry"
)

// ChronicleAppender persists chronicle events as they are produced.
type ChronicleAppender interface {
	AppendEvents(ctx context.Context, sessionID string, events []state.EventNode) error
}

// Metrics summarizes one executed turn.
type Metrics struct {
	TurnNumber        int                      `json:"turn_number"`
	Duration          time.Duration            `json:"duration"`
	StageDurations    map[string]time.Duration `json:"stage_durations"`
	Retries           int                      `json:"retries"`
	SceneTransitioned bool                     `json:"scene_transitioned"`
}

// Executor commits turns. A turn either completes fully, with its events
// chronicled and its state checkpointed, or fails and leaves the prior
// checkpoint untouched.
type Executor struct {
	Runner      graph.Runner
	Checkpoints checkpoint.Store
	Chronicle   ChronicleAppender
	Telemetry   *telemetry.Emitter
	Now         func() time.Time
}

// ExecuteTurn advances the session one turn through g. On success the
// returned state is the committed post-turn state; on failure the input
// state remains the session's truth.
func (e *Executor) ExecuteTurn(ctx context.Context, g *graph.Graph, s state.SessionState, mem *memory.SessionMemory) (state.SessionState, Metrics, error) {
	now := e.Now
	if now == nil {
		now = time.Now
	}

	tracer := otel.Tracer("wyrd/engine/turn")
	ctx, span := tracer.Start(ctx, "turn.execute", trace.WithAttributes(
		attribute.String("session.id", s.SessionID),
		attribute.Int("turn.number", s.TurnNumber+1),
	))
	defer span.End()

	working := s.ResetForTurn()
	working.TurnNumber++
	turnsInSceneBefore := working.Pacing.TurnsInScene

	stageDurations := make(map[string]time.Duration)
	runner := e.Runner
	baseObserver := runner.Observe
	runner.Observe = func(name string, elapsed time.Duration, err error) {
		stageDurations[name] += elapsed
		span.AddEvent(name, trace.WithAttributes(
			attribute.Int64("elapsed_ms", elapsed.Milliseconds()),
		))
		if baseObserver != nil {
			baseObserver(name, elapsed, err)
		}
	}

	started := now()
	final, err := runner.Run(ctx, g, working)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		e.Telemetry.Emit(ctx, s.SessionID, working.TurnNumber, "turn_failed", telemetry.SeverityError, err.Error())
		return s, Metrics{}, fmt.Errorf("run turn graph: %w", err)
	}
	final.UpdatedAt = now().UTC()

	if e.Chronicle != nil && len(final.PhaseData.TurnEvents) > 0 {
		if err := e.Chronicle.AppendEvents(ctx, final.SessionID, final.PhaseData.TurnEvents); err != nil {
			return s, Metrics{}, fmt.Errorf("append chronicle: %w", err)
		}
	}
	for _, event := range final.PhaseData.TurnEvents {
		mem.Add(event)
	}
	if err := e.Checkpoints.Put(ctx, final.SessionID, final); err != nil {
		return s, Metrics{}, fmt.Errorf("checkpoint turn: %w", err)
	}

	metrics := Metrics{
		TurnNumber:        final.TurnNumber,
		Duration:          now().Sub(started),
		StageDurations:    stageDurations,
		Retries:           final.RetryCount,
		SceneTransitioned: final.Pacing.TurnsInScene < turnsInSceneBefore,
	}
	span.SetAttributes(attribute.Int("turn.retries", metrics.Retries))
	return final, metrics, nil
}

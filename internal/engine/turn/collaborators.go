// Package turn runs one committed turn: it drives the stage graph, applies
// the quality gate, syncs the chronicle, and checkpoints the result.
package turn

import (
	"context"

	"github.com/wyrdlabs/wyrd/internal/engine/pacing"
	"github.com/wyrdlabs/wyrd/internal/engine/state"
)

// Resolver turns a submitted player action into a mechanical outcome.
// correction carries the judge's suggestion on a retry attempt; it is
// empty on the first attempt.
type Resolver interface {
	ResolveAction(ctx context.Context, s state.SessionState, action state.PlayerAction, correction string) (state.ActionOutcomeToken, error)
}

// Judge reviews one resolution attempt for narrative and mechanical
// quality.
type Judge interface {
	Review(ctx context.Context, s state.SessionState, token state.ActionOutcomeToken) (state.JudgeVerdict, error)
}

// Narrator renders the turn's outcome into prose, given the recent event
// window for context.
type Narrator interface {
	Narrate(ctx context.Context, s state.SessionState, recent []state.EventNode) (state.TurnOutcome, error)
}

// Directive is the director's per-turn pacing guidance.
type Directive struct {
	TensionDelta float64
	Category     pacing.Category
	Suggestions  []string
}

// Director assesses the turn and steers pacing.
type Director interface {
	Assess(ctx context.Context, s state.SessionState) (Directive, error)
}

package turn

import (
	"context"
	"fmt"

	"github.com/wyrdlabs/wyrd/internal/engine/state"
	"github.com/wyrdlabs/wyrd/internal/telemetry"
)

// DefaultMaxRetries bounds how many times the gate re-resolves after an
// invalid verdict before overriding.
const DefaultMaxRetries = 2

// GateResult is the outcome of one gated resolution.
type GateResult struct {
	Token      state.ActionOutcomeToken
	Verdict    state.JudgeVerdict
	Retries    int
	Overridden bool
}

// QualityGate resolves an action and reviews the result, retrying with the
// judge's correction a bounded number of times. When retries run out the
// last attempt stands and the override is recorded, never silently.
type QualityGate struct {
	Resolver   Resolver
	Judge      Judge
	MaxRetries int
	Telemetry  *telemetry.Emitter
}

// Resolve runs the resolve-review loop for one action.
func (g *QualityGate) Resolve(ctx context.Context, s state.SessionState, action state.PlayerAction) (GateResult, error) {
	maxRetries := g.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var result GateResult
	correction := ""
	for attempt := 0; attempt <= maxRetries; attempt++ {
		token, err := g.Resolver.ResolveAction(ctx, s, action, correction)
		if err != nil {
			return GateResult{}, fmt.Errorf("resolve action: %w", err)
		}
		verdict, err := g.Judge.Review(ctx, s, token)
		if err != nil {
			return GateResult{}, fmt.Errorf("review resolution: %w", err)
		}
		result = GateResult{Token: token, Verdict: verdict, Retries: attempt}
		if verdict.IsValid {
			return result, nil
		}
		correction = verdict.CorrectionSuggestion
	}

	result.Overridden = true
	g.Telemetry.Emit(ctx, s.SessionID, s.TurnNumber, "quality_gate_override", telemetry.SeverityWarning,
		fmt.Sprintf("verdict overridden after %d retries: %s", maxRetries, result.Verdict.Feedback))
	return result, nil
}

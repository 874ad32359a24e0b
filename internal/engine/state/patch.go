package state

import (
	"github.com/wyrdlabs/wyrd/internal/engine/intent"
	"github.com/wyrdlabs/wyrd/internal/engine/pacing"
)

// Patch is the partial update a stage returns. Pointer fields replace the
// corresponding state field when non-nil; slice fields append, except
// Suggestions which replaces wholesale so stale prompts never survive a
// turn, and PlayerUpdates which replaces roster entries by id. The zero
// Patch is a no-op.
type Patch struct {
	ResponseType  *intent.Response
	RetryCount    *int
	Pacing        *pacing.Metrics
	Narrative     *NarrativeState
	World         *WorldState
	CurrentAction *PlayerAction
	ClearAction   bool
	LastOutcome   *TurnOutcome
	LastVerdict   *JudgeVerdict
	ClearVerdict  bool
	Players       []Player
	PlayerUpdates []Player
	OutcomeTokens []ActionOutcomeToken
	WorldChanges  []WorldStateChange
	TurnEvents    []EventNode
	Suggestions   []string
}

// Apply merges the patch into a copy of the state and returns it. Append
// order within a single patch is preserved; the runner serializes merges,
// so concurrent fan-out workers never interleave within one append.
func Apply(s SessionState, p Patch) SessionState {
	if p.ResponseType != nil {
		s.ResponseType = *p.ResponseType
	}
	if p.RetryCount != nil {
		s.RetryCount = *p.RetryCount
	}
	if p.Pacing != nil {
		s.Pacing = *p.Pacing
	}
	if p.Narrative != nil {
		s.PhaseData.Narrative = *p.Narrative
	}
	if p.World != nil {
		s.PhaseData.World = *p.World
	}
	if p.CurrentAction != nil {
		s.PhaseData.CurrentAction = p.CurrentAction
	}
	if p.ClearAction {
		s.PhaseData.CurrentAction = nil
	}
	if p.LastOutcome != nil {
		s.PhaseData.LastOutcome = p.LastOutcome
	}
	if p.LastVerdict != nil {
		s.PhaseData.LastVerdict = p.LastVerdict
	}
	if p.ClearVerdict {
		s.PhaseData.LastVerdict = nil
	}
	if len(p.Players) > 0 {
		s.PhaseData.Players = append(s.PhaseData.Players, p.Players...)
	}
	if len(p.PlayerUpdates) > 0 {
		roster := append([]Player(nil), s.PhaseData.Players...)
		for _, update := range p.PlayerUpdates {
			for i := range roster {
				if roster[i].ID == update.ID {
					roster[i] = update
				}
			}
		}
		s.PhaseData.Players = roster
	}
	if len(p.OutcomeTokens) > 0 {
		s.PhaseData.OutcomeTokens = append(s.PhaseData.OutcomeTokens, p.OutcomeTokens...)
	}
	if len(p.WorldChanges) > 0 {
		s.PhaseData.WorldChanges = append(s.PhaseData.WorldChanges, p.WorldChanges...)
	}
	if len(p.TurnEvents) > 0 {
		s.PhaseData.TurnEvents = append(s.PhaseData.TurnEvents, p.TurnEvents...)
	}
	if p.Suggestions != nil {
		s.PhaseData.Suggestions = p.Suggestions
	}
	return s
}

// SetResponse is a convenience constructor for routing-only patches.
func SetResponse(response intent.Response) Patch {
	return Patch{ResponseType: &response}
}

// SetRetryCount is a convenience constructor for the quality-gate loop.
func SetRetryCount(count int) Patch {
	return Patch{RetryCount: &count}
}

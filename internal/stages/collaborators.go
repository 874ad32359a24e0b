// Package stages provides the built-in stage implementations and the graph
// builders for session initialization and the per-turn loop.
//
// The collaborators here are deterministic rules engines. They implement
// the turn package's interfaces, so a model-backed resolver or narrator
// can replace any of them without touching the graphs.
package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wyrdlabs/wyrd/internal/engine/dice"
	"github.com/wyrdlabs/wyrd/internal/engine/intent"
	"github.com/wyrdlabs/wyrd/internal/engine/pacing"
	"github.com/wyrdlabs/wyrd/internal/engine/state"
	"github.com/wyrdlabs/wyrd/internal/engine/turn"
)

// RulesResolver resolves actions mechanically: classify the intent, look
// up the difficulty class, roll against it with the performer's relevant
// ability modifier.
type RulesResolver struct {
	NewID func() string
	Now   func() time.Time
}

// ResolveAction implements turn.Resolver. Rolls are seeded from the
// session seed, turn number, and attempt, so a retried resolution rerolls
// instead of repeating the rejected outcome.
func (r *RulesResolver) ResolveAction(_ context.Context, s state.SessionState, action state.PlayerAction, correction string) (state.ActionOutcomeToken, error) {
	actionIntent := intent.Classify(action.Description)
	difficulty := intent.DifficultyClass(actionIntent)

	performer, found := findPlayer(s, action.PerformerID)
	var violations []string
	if !found {
		violations = append(violations, fmt.Sprintf("performer %s is not in the party roster", action.PerformerID))
	}

	attribute := intent.RelevantAttribute(actionIntent)
	modifier := intent.Modifier(performer.Stats.Score(attribute))

	seed := s.Seed + int64(s.TurnNumber)*1009 + int64(len(correction))*31
	check, err := dice.Check(modifier, difficulty, seed)
	if err != nil {
		return state.ActionOutcomeToken{}, fmt.Errorf("roll check: %w", err)
	}

	token := state.ActionOutcomeToken{
		ActionID:        r.NewID(),
		PerformerID:     action.PerformerID,
		Intent:          actionIntent,
		Roll:            check.Roll,
		DifficultyClass: check.Difficulty,
		MeetsDC:         check.Meets,
		Effectiveness:   check.Effectiveness,
		RuleViolations:  violations,
		ResolvedAt:      r.Now().UTC(),
	}
	if check.Meets {
		switch actionIntent {
		case intent.TypeAttack:
			token.DamageDealt = check.Roll.Total - difficulty + 1
		case intent.TypeCastSpell:
			if strings.Contains(strings.ToLower(action.Description), "heal") {
				token.HealingReceived = modifier + 4
				if token.HealingReceived < 1 {
					token.HealingReceived = 1
				}
			}
		}
	}
	token.MechanicalSummary = summarize(performer.Name, token)
	return token, nil
}

func summarize(name string, token state.ActionOutcomeToken) string {
	verdict := "fails"
	if token.MeetsDC {
		verdict = "succeeds"
	}
	if name == "" {
		name = token.PerformerID
	}
	return fmt.Sprintf("%s %s a %s check: rolled %d against DC %d",
		name, verdict, token.Intent, token.Roll.Total, token.DifficultyClass)
}

func findPlayer(s state.SessionState, id string) (state.Player, bool) {
	for _, player := range s.PhaseData.Players {
		if player.ID == id {
			return player, true
		}
	}
	return state.Player{}, false
}

// ConsistencyJudge reviews resolutions against the party roster and world
// record. A resolution with rule violations is invalid; everything else
// passes with scores derived from the roll.
type ConsistencyJudge struct{}

// Review implements turn.Judge.
func (ConsistencyJudge) Review(_ context.Context, _ state.SessionState, token state.ActionOutcomeToken) (state.JudgeVerdict, error) {
	if len(token.RuleViolations) > 0 {
		return state.JudgeVerdict{
			IsValid:              false,
			Consistency:          0.2,
			Agency:               0.5,
			RuleAdherence:        0,
			Safety:               1,
			Feedback:             strings.Join(token.RuleViolations, "; "),
			CorrectionSuggestion: "resolve the action for a registered party member",
		}, nil
	}
	return state.JudgeVerdict{
		IsValid:       true,
		Consistency:   0.9,
		Agency:        0.9,
		RuleAdherence: 1,
		Safety:        1,
		Feedback:      "resolution is mechanically sound",
	}, nil
}

// TemplateNarrator renders outcomes into plain prose from fixed templates.
type TemplateNarrator struct{}

// Narrate implements turn.Narrator.
func (TemplateNarrator) Narrate(_ context.Context, s state.SessionState, recent []state.EventNode) (state.TurnOutcome, error) {
	tokens := s.PhaseData.OutcomeTokens
	if len(tokens) == 0 {
		scene := s.PhaseData.Narrative.CurrentScene
		if scene == "" {
			scene = "The story waits for its next move."
		}
		return state.TurnOutcome{Success: true, Narration: scene}, nil
	}

	var lines []string
	success := true
	for _, token := range tokens {
		lines = append(lines, token.MechanicalSummary)
		if !token.MeetsDC {
			success = false
		}
	}
	if len(recent) > 0 {
		last := recent[len(recent)-1]
		if last.OutcomeSummary != "" {
			lines = append(lines, fmt.Sprintf("Echoes of the last beat linger: %s.", last.OutcomeSummary))
		}
	}
	return state.TurnOutcome{Success: success, Narration: strings.Join(lines, " ")}, nil
}

// TensionDirector adjusts pacing from the turn's dominant intent and
// recommends follow-up moves matching the resulting band.
type TensionDirector struct{}

// Assess implements turn.Director.
func (TensionDirector) Assess(_ context.Context, s state.SessionState) (turn.Directive, error) {
	dominant := intent.TypeUnknown
	if len(s.PhaseData.OutcomeTokens) > 0 {
		dominant = s.PhaseData.OutcomeTokens[0].Intent
	}

	directive := turn.Directive{Category: categoryFor(dominant)}
	switch dominant {
	case intent.TypeAttack:
		directive.TensionDelta = 0.15
	case intent.TypeCastSpell:
		directive.TensionDelta = 0.1
	case intent.TypeDefend:
		directive.TensionDelta = 0.05
	case intent.TypeInvestigate:
		directive.TensionDelta = 0.05
	case intent.TypeDialogue:
		directive.TensionDelta = -0.05
	default:
		directive.TensionDelta = -0.02
	}

	projected := s.Pacing
	projected.ApplyTensionDelta(directive.TensionDelta)
	switch projected.RecommendedPacing() {
	case "HIGH_INTENSITY":
		directive.Suggestions = []string{"press the advantage", "force a decisive confrontation"}
	case "ESCALATING":
		directive.Suggestions = []string{"raise the stakes", "cut off an escape route"}
	case "DESCENDING":
		directive.Suggestions = []string{"offer a moment of respite", "reveal a quieter thread"}
	case "LOW_INTENSITY":
		directive.Suggestions = []string{"introduce a new complication", "move the scene forward"}
	default:
		directive.Suggestions = []string{"follow the party's lead"}
	}
	return directive, nil
}

func categoryFor(t intent.Type) pacing.Category {
	switch t {
	case intent.TypeAttack, intent.TypeCastSpell, intent.TypeDefend:
		return pacing.CategoryCombat
	case intent.TypeDialogue:
		return pacing.CategoryDialogue
	default:
		return pacing.CategoryExploration
	}
}

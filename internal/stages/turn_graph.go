package stages

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wyrdlabs/wyrd/internal/engine/blackboard"
	"github.com/wyrdlabs/wyrd/internal/engine/graph"
	"github.com/wyrdlabs/wyrd/internal/engine/intent"
	"github.com/wyrdlabs/wyrd/internal/engine/memory"
	"github.com/wyrdlabs/wyrd/internal/engine/state"
	"github.com/wyrdlabs/wyrd/internal/engine/turn"
	"github.com/wyrdlabs/wyrd/internal/telemetry"
)

// EncounterHPFlag is the world flag tracking the current encounter's
// remaining threat pool. Successful attacks drain it.
const EncounterHPFlag = "encounter_hp"

// DefaultEncounterHP is the pool value assumed when the flag is unset.
const DefaultEncounterHP = 10

// TurnDeps carries everything the turn stages need. All fields are
// required except Telemetry and Board.
type TurnDeps struct {
	Gate      *turn.QualityGate
	Narrator  turn.Narrator
	Director  turn.Director
	Memory    *memory.SessionMemory
	Board     *blackboard.Board
	Telemetry *telemetry.Emitter
	NewID     func() string
	Now       func() time.Time
}

// BuildTurnGraph wires the per-turn stage graph. An action routes through
// the full resolution pipeline; a question gets a narration-only answer;
// an exit, or anything the classifier could not place, lands on the
// exit_check terminal so an ambiguous turn can never mutate the world. A
// turn submitted with no action at all resolves a synthesized observe
// action for the first party member.
func BuildTurnGraph(deps TurnDeps) (*graph.Graph, error) {
	g := graph.New()

	builders := []struct {
		name string
		fn   graph.StageFunc
	}{
		{"intake", deps.intake},
		{"resolve", deps.resolve},
		{"update_world", deps.updateWorld},
		{"narrate", deps.narrate},
		{"direct", deps.direct},
		{"record", deps.record},
		{"transition_check", deps.transitionCheck},
		{"answer", deps.answer},
		{"exit_check", deps.exitCheck},
	}
	for _, b := range builders {
		if err := g.AddStage(b.name, b.fn); err != nil {
			return nil, fmt.Errorf("add stage %s: %w", b.name, err)
		}
	}

	err := g.AddConditionalEdge("intake", func(s state.SessionState) string {
		return string(s.ResponseType)
	}, map[string]string{
		string(intent.ResponseAction):   "resolve",
		string(intent.ResponseQuestion): "answer",
		string(intent.ResponseExit):     "exit_check",
	})
	if err != nil {
		return nil, fmt.Errorf("wire intake: %w", err)
	}

	edges := [][2]string{
		{"resolve", "update_world"},
		{"update_world", "narrate"},
		{"narrate", "direct"},
		{"direct", "record"},
		{"record", "transition_check"},
	}
	for _, edge := range edges {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("wire %s: %w", edge[0], err)
		}
	}

	for _, terminal := range []string{"transition_check", "answer", "exit_check"} {
		if err := g.SetTerminal(terminal); err != nil {
			return nil, fmt.Errorf("mark terminal %s: %w", terminal, err)
		}
	}
	if err := g.SetFallback("exit_check"); err != nil {
		return nil, fmt.Errorf("set fallback: %w", err)
	}
	if err := g.SetEntry("intake"); err != nil {
		return nil, fmt.Errorf("set entry: %w", err)
	}
	return g, nil
}

// intake classifies the submitted input into a turn route. A turn with no
// submitted action runs in automated mode: the first party member waits
// and observes, and the turn resolves like any other action.
func (d TurnDeps) intake(_ context.Context, s state.SessionState) (state.Patch, error) {
	if s.PhaseData.CurrentAction == nil {
		if len(s.PhaseData.Players) == 0 {
			return state.SetResponse(intent.ResponseUnset), nil
		}
		patch := state.SetResponse(intent.ResponseAction)
		patch.CurrentAction = &state.PlayerAction{
			PerformerID: s.PhaseData.Players[0].ID,
			Description: "look around, waiting and observing",
			SubmittedAt: d.Now().UTC(),
		}
		return patch, nil
	}
	return state.SetResponse(intent.ClassifyResponse(s.PhaseData.CurrentAction.Description)), nil
}

// resolve runs the quality-gated mechanical resolution for the submitted
// action.
func (d TurnDeps) resolve(ctx context.Context, s state.SessionState) (state.Patch, error) {
	if s.PhaseData.CurrentAction == nil {
		return state.Patch{}, fmt.Errorf("resolve: no action submitted")
	}
	result, err := d.Gate.Resolve(ctx, s, *s.PhaseData.CurrentAction)
	if err != nil {
		return state.Patch{}, err
	}
	retries := result.Retries
	verdict := result.Verdict
	return state.Patch{
		OutcomeTokens: []state.ActionOutcomeToken{result.Token},
		RetryCount:    &retries,
		LastVerdict:   &verdict,
	}, nil
}

// updateWorld applies outcome tokens to the world record. A token whose
// action id already has audit entries is skipped, so a replayed stage
// cannot double-apply.
func (d TurnDeps) updateWorld(_ context.Context, s state.SessionState) (state.Patch, error) {
	applied := make(map[string]bool)
	for _, change := range s.PhaseData.WorldChanges {
		applied[change.ActionID] = true
	}

	// Copy the flag map so the input state stays untouched.
	world := s.PhaseData.World
	flags := make(map[string]string, len(world.Flags))
	for key, value := range world.Flags {
		flags[key] = value
	}
	world.Flags = flags

	var changes []state.WorldStateChange
	var playerUpdates []state.Player
	now := d.Now().UTC()

	for _, token := range s.PhaseData.OutcomeTokens {
		if applied[token.ActionID] || !token.MeetsDC {
			continue
		}
		switch token.Intent {
		case intent.TypeAttack:
			if token.DamageDealt > 0 {
				old := encounterHP(world)
				remaining := old - token.DamageDealt
				if remaining < 0 {
					remaining = 0
				}
				world.Flags[EncounterHPFlag] = strconv.Itoa(remaining)
				changes = append(changes, state.WorldStateChange{
					ChangeType: "encounter_hp",
					TargetID:   EncounterHPFlag,
					OldValue:   strconv.Itoa(old),
					NewValue:   strconv.Itoa(remaining),
					Reason:     token.MechanicalSummary,
					ActionID:   token.ActionID,
					Timestamp:  now,
				})
			}
		case intent.TypeCastSpell:
			if token.HealingReceived > 0 {
				if performer, ok := findPlayer(s, token.PerformerID); ok {
					healed := performer.CurrentHP + token.HealingReceived
					if healed > performer.MaxHP {
						healed = performer.MaxHP
					}
					changes = append(changes, state.WorldStateChange{
						ChangeType: "player_hp",
						TargetID:   performer.ID,
						OldValue:   strconv.Itoa(performer.CurrentHP),
						NewValue:   strconv.Itoa(healed),
						Reason:     token.MechanicalSummary,
						ActionID:   token.ActionID,
						Timestamp:  now,
					})
					performer.CurrentHP = healed
					playerUpdates = append(playerUpdates, performer)
				}
			}
		case intent.TypeMove:
			if performer, ok := findPlayer(s, token.PerformerID); ok {
				if destination, ok := nextLocation(world, performer.LocationID); ok {
					changes = append(changes, state.WorldStateChange{
						ChangeType: "player_location",
						TargetID:   performer.ID,
						OldValue:   performer.LocationID,
						NewValue:   destination,
						Reason:     token.MechanicalSummary,
						ActionID:   token.ActionID,
						Timestamp:  now,
					})
					performer.LocationID = destination
					playerUpdates = append(playerUpdates, performer)
				}
			}
		case intent.TypeInvestigate:
			world.Flags["last_discovery"] = token.MechanicalSummary
			changes = append(changes, state.WorldStateChange{
				ChangeType: "flag",
				TargetID:   "last_discovery",
				NewValue:   token.MechanicalSummary,
				Reason:     token.MechanicalSummary,
				ActionID:   token.ActionID,
				Timestamp:  now,
			})
		}
	}

	return state.Patch{
		World:         &world,
		WorldChanges:  changes,
		PlayerUpdates: playerUpdates,
	}, nil
}

func encounterHP(world state.WorldState) int {
	raw, ok := world.Flags[EncounterHPFlag]
	if !ok {
		return DefaultEncounterHP
	}
	hp, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultEncounterHP
	}
	return hp
}

func nextLocation(world state.WorldState, current string) (string, bool) {
	for _, location := range world.Locations {
		if location.ID == current && len(location.Connections) > 0 {
			return location.Connections[0], true
		}
	}
	return "", false
}

// narrate renders the turn's outcome with the recent event window for
// continuity.
func (d TurnDeps) narrate(ctx context.Context, s state.SessionState) (state.Patch, error) {
	outcome, err := d.Narrator.Narrate(ctx, s, d.Memory.ContextWindow())
	if err != nil {
		return state.Patch{}, fmt.Errorf("narrate: %w", err)
	}
	return state.Patch{LastOutcome: &outcome}, nil
}

// direct applies the director's pacing directive.
func (d TurnDeps) direct(ctx context.Context, s state.SessionState) (state.Patch, error) {
	directive, err := d.Director.Assess(ctx, s)
	if err != nil {
		return state.Patch{}, fmt.Errorf("assess pacing: %w", err)
	}
	metrics := s.Pacing
	metrics.RecordTurn(directive.Category)
	metrics.ApplyTensionDelta(directive.TensionDelta)

	if d.Board != nil {
		note := fmt.Sprintf("tension %.2f (%s): %s",
			metrics.CurrentTension, metrics.RecommendedPacing(),
			strings.Join(directive.Suggestions, "; "))
		if err := d.Board.Post("pacing", "director", note); err != nil {
			return state.Patch{}, fmt.Errorf("post pacing note: %w", err)
		}
	}
	return state.Patch{Pacing: &metrics, Suggestions: directive.Suggestions}, nil
}

// record builds the turn's chronicle events: one per resolved action plus
// one narration event.
func (d TurnDeps) record(_ context.Context, s state.SessionState) (state.Patch, error) {
	now := d.Now().UTC()
	var events []state.EventNode

	changesByAction := make(map[string][]state.WorldStateChange)
	for _, change := range s.PhaseData.WorldChanges {
		changesByAction[change.ActionID] = append(changesByAction[change.ActionID], change)
	}

	for _, token := range s.PhaseData.OutcomeTokens {
		events = append(events, state.EventNode{
			EventID:        d.NewID(),
			TurnNumber:     s.TurnNumber,
			Phase:          "resolution",
			PerformerID:    token.PerformerID,
			Intent:         token.Intent,
			OutcomeSummary: token.MechanicalSummary,
			StateChanges:   changesByAction[token.ActionID],
			SceneContext:   s.PhaseData.Narrative.CurrentScene,
			Timestamp:      now,
		})
	}
	if s.PhaseData.LastOutcome != nil {
		events = append(events, state.EventNode{
			EventID:        d.NewID(),
			TurnNumber:     s.TurnNumber,
			Phase:          "narration",
			OutcomeSummary: s.PhaseData.LastOutcome.Narration,
			SceneContext:   s.PhaseData.Narrative.CurrentScene,
			Timestamp:      now,
		})
	}
	return state.Patch{TurnEvents: events}, nil
}

// transitionCheck closes the scene when pacing says it has run its
// course.
func (d TurnDeps) transitionCheck(ctx context.Context, s state.SessionState) (state.Patch, error) {
	if !s.Pacing.ShouldTransitionScene() {
		return state.Patch{}, nil
	}
	metrics := s.Pacing
	metrics.ResetScene()

	narrative := s.PhaseData.Narrative
	narrative.Beats = append(narrative.Beats, narrative.CurrentScene)
	narrative.CurrentScene = "The scene shifts, and a new chapter of the story opens."

	d.Telemetry.Emit(ctx, s.SessionID, s.TurnNumber, "scene_transition", telemetry.SeverityInfo,
		fmt.Sprintf("scene closed after %d turns at tension %.2f", s.Pacing.TurnsInScene, s.Pacing.CurrentTension))
	if d.Board != nil {
		if err := d.Board.Post("scene", "director", "scene closed: "+s.PhaseData.Narrative.CurrentScene); err != nil {
			return state.Patch{}, fmt.Errorf("post scene note: %w", err)
		}
	}

	return state.Patch{Pacing: &metrics, Narrative: &narrative}, nil
}

// answer narrates a reply to a question without touching the world.
func (d TurnDeps) answer(ctx context.Context, s state.SessionState) (state.Patch, error) {
	outcome, err := d.Narrator.Narrate(ctx, s, d.Memory.ContextWindow())
	if err != nil {
		return state.Patch{}, fmt.Errorf("answer: %w", err)
	}
	event := state.EventNode{
		EventID:        d.NewID(),
		TurnNumber:     s.TurnNumber,
		Phase:          "question",
		OutcomeSummary: outcome.Narration,
		SceneContext:   s.PhaseData.Narrative.CurrentScene,
		Timestamp:      d.Now().UTC(),
	}
	return state.Patch{
		LastOutcome: &outcome,
		TurnEvents:  []state.EventNode{event},
	}, nil
}

// exitCheck is the safe terminal for exits and input the classifier could
// not place. It narrates a stopping point and changes nothing else.
func (d TurnDeps) exitCheck(_ context.Context, s state.SessionState) (state.Patch, error) {
	outcome := state.TurnOutcome{
		Success:   true,
		Narration: "The story pauses at a safe moment. Your progress is saved.",
	}
	event := state.EventNode{
		EventID:        d.NewID(),
		TurnNumber:     s.TurnNumber,
		Phase:          "exit_check",
		OutcomeSummary: outcome.Narration,
		SceneContext:   s.PhaseData.Narrative.CurrentScene,
		Timestamp:      d.Now().UTC(),
	}
	return state.Patch{
		LastOutcome: &outcome,
		TurnEvents:  []state.EventNode{event},
		Suggestions: []string{"continue the story", "end the session"},
	}, nil
}

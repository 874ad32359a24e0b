package stages

import (
	"context"
	"testing"
	"time"

	"github.com/wyrdlabs/wyrd/internal/engine/intent"
	"github.com/wyrdlabs/wyrd/internal/engine/pacing"
	"github.com/wyrdlabs/wyrd/internal/engine/state"
)

var testTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newSessionState(t *testing.T) state.SessionState {
	t.Helper()
	s, err := state.New("sess_1", "camp_1", 42, testTime)
	if err != nil {
		t.Fatalf("state.New returned error: %v", err)
	}
	s.PhaseData.Players = append(s.PhaseData.Players, state.Player{
		ID:         "pc_1",
		Name:       "Iris",
		Class:      "warrior",
		Level:      1,
		Stats:      state.Stats{Strength: 16, Dexterity: 12, Constitution: 14, Intelligence: 10, Wisdom: 11, Charisma: 9},
		CurrentHP:  8,
		MaxHP:      12,
		LocationID: StartingLocationID,
	})
	return s
}

func testResolver() *RulesResolver {
	ids := 0
	return &RulesResolver{
		NewID: func() string { ids++; return "act_" + string(rune('a'+ids-1)) },
		Now:   func() time.Time { return testTime },
	}
}

func TestResolveActionAttackIsConsistent(t *testing.T) {
	s := newSessionState(t)
	resolver := testResolver()

	token, err := resolver.ResolveAction(context.Background(), s, state.PlayerAction{
		PerformerID: "pc_1",
		Description: "attack the bandit leader",
	}, "")
	if err != nil {
		t.Fatalf("ResolveAction returned error: %v", err)
	}
	if token.Intent != intent.TypeAttack {
		t.Fatalf("intent = %s, want attack", token.Intent)
	}
	if token.DifficultyClass != 12 {
		t.Fatalf("DC = %d, want 12", token.DifficultyClass)
	}
	if token.Roll.Modifier != 3 {
		t.Fatalf("modifier = %d, want 3 for strength 16", token.Roll.Modifier)
	}
	if token.MeetsDC != (token.Roll.Total >= token.DifficultyClass) {
		t.Fatalf("MeetsDC inconsistent with roll: %+v", token)
	}
	if token.MeetsDC && token.DamageDealt != token.Roll.Total-12+1 {
		t.Fatalf("damage = %d, want %d", token.DamageDealt, token.Roll.Total-12+1)
	}
	if !token.MeetsDC && token.DamageDealt != 0 {
		t.Fatalf("failed attack must deal no damage, got %d", token.DamageDealt)
	}
	if len(token.RuleViolations) != 0 {
		t.Fatalf("unexpected violations: %v", token.RuleViolations)
	}
}

func TestResolveActionIsDeterministic(t *testing.T) {
	s := newSessionState(t)
	action := state.PlayerAction{PerformerID: "pc_1", Description: "search the ruins"}

	first, err := testResolver().ResolveAction(context.Background(), s, action, "")
	if err != nil {
		t.Fatalf("ResolveAction returned error: %v", err)
	}
	second, err := testResolver().ResolveAction(context.Background(), s, action, "")
	if err != nil {
		t.Fatalf("ResolveAction returned error: %v", err)
	}
	if first.Roll.Total != second.Roll.Total || first.MeetsDC != second.MeetsDC {
		t.Fatalf("same session and turn produced different rolls: %+v vs %+v", first.Roll, second.Roll)
	}
}

func TestResolveActionRetryRerolls(t *testing.T) {
	s := newSessionState(t)
	action := state.PlayerAction{PerformerID: "pc_1", Description: "attack the bandit"}
	resolver := testResolver()

	first, err := resolver.ResolveAction(context.Background(), s, action, "")
	if err != nil {
		t.Fatalf("ResolveAction returned error: %v", err)
	}
	retried, err := resolver.ResolveAction(context.Background(), s, action, "respect the locked gate")
	if err != nil {
		t.Fatalf("ResolveAction returned error: %v", err)
	}
	if first.Roll.Seed == retried.Roll.Seed {
		t.Fatal("retry must reroll with a different seed")
	}
}

func TestResolveActionFlagsUnknownPerformer(t *testing.T) {
	s := newSessionState(t)
	token, err := testResolver().ResolveAction(context.Background(), s, state.PlayerAction{
		PerformerID: "pc_ghost",
		Description: "attack the shadows",
	}, "")
	if err != nil {
		t.Fatalf("ResolveAction returned error: %v", err)
	}
	if len(token.RuleViolations) != 1 {
		t.Fatalf("expected one violation, got %v", token.RuleViolations)
	}
}

func TestJudgeRejectsViolations(t *testing.T) {
	judge := ConsistencyJudge{}

	verdict, err := judge.Review(context.Background(), newSessionState(t), state.ActionOutcomeToken{
		RuleViolations: []string{"performer pc_ghost is not in the party roster"},
	})
	if err != nil {
		t.Fatalf("Review returned error: %v", err)
	}
	if verdict.IsValid {
		t.Fatal("expected invalid verdict for rule violation")
	}
	if verdict.CorrectionSuggestion == "" {
		t.Fatal("invalid verdict must carry a correction")
	}

	clean, err := judge.Review(context.Background(), newSessionState(t), state.ActionOutcomeToken{})
	if err != nil {
		t.Fatalf("Review returned error: %v", err)
	}
	if !clean.IsValid || clean.RuleAdherence != 1 {
		t.Fatalf("expected valid verdict, got %+v", clean)
	}
}

func TestNarratorSummarizesTokens(t *testing.T) {
	s := newSessionState(t)
	s.PhaseData.OutcomeTokens = []state.ActionOutcomeToken{
		{MechanicalSummary: "Iris succeeds an attack check: rolled 15 against DC 12", MeetsDC: true},
	}

	outcome, err := TemplateNarrator{}.Narrate(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("Narrate returned error: %v", err)
	}
	if !outcome.Success {
		t.Fatal("expected successful outcome when every token meets its DC")
	}
	if outcome.Narration == "" {
		t.Fatal("expected non-empty narration")
	}

	s.PhaseData.OutcomeTokens = append(s.PhaseData.OutcomeTokens,
		state.ActionOutcomeToken{MechanicalSummary: "Iris fails a move check", MeetsDC: false})
	mixed, err := TemplateNarrator{}.Narrate(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("Narrate returned error: %v", err)
	}
	if mixed.Success {
		t.Fatal("a failed token must mark the turn unsuccessful")
	}
}

func TestDirectorRaisesTensionForCombat(t *testing.T) {
	s := newSessionState(t)
	s.PhaseData.OutcomeTokens = []state.ActionOutcomeToken{{Intent: intent.TypeAttack}}

	directive, err := TensionDirector{}.Assess(context.Background(), s)
	if err != nil {
		t.Fatalf("Assess returned error: %v", err)
	}
	if directive.TensionDelta <= 0 {
		t.Fatalf("attack must raise tension, got %f", directive.TensionDelta)
	}
	if directive.Category != pacing.CategoryCombat {
		t.Fatalf("category = %s, want combat", directive.Category)
	}
	if len(directive.Suggestions) == 0 {
		t.Fatal("expected pacing suggestions")
	}
}

func TestDirectorLowersTensionForDialogue(t *testing.T) {
	s := newSessionState(t)
	s.PhaseData.OutcomeTokens = []state.ActionOutcomeToken{{Intent: intent.TypeDialogue}}

	directive, err := TensionDirector{}.Assess(context.Background(), s)
	if err != nil {
		t.Fatalf("Assess returned error: %v", err)
	}
	if directive.TensionDelta >= 0 {
		t.Fatalf("dialogue must ease tension, got %f", directive.TensionDelta)
	}
	if directive.Category != pacing.CategoryDialogue {
		t.Fatalf("category = %s, want dialogue", directive.Category)
	}
}

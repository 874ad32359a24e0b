package state

import (
	"errors"
	"testing"
	"time"

	"github.com/wyrdlabs/wyrd/internal/engine/intent"
)

var testTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestNewInitializesSubStructures(t *testing.T) {
	s, err := New("sess_1", "camp_1", 42, testTime)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("fresh state failed validation: %v", err)
	}
	if s.ResponseType != intent.ResponseUnset {
		t.Fatalf("expected unset response type, got %q", s.ResponseType)
	}
	if s.TurnNumber != 0 {
		t.Fatalf("expected turn zero, got %d", s.TurnNumber)
	}
	if s.Pacing.CurrentTension != 0.5 {
		t.Fatalf("expected neutral tension, got %f", s.Pacing.CurrentTension)
	}
}

func TestNewRequiresIdentifiers(t *testing.T) {
	if _, err := New("", "camp_1", 1, testTime); !errors.Is(err, ErrSessionIDRequired) {
		t.Fatalf("error = %v, want %v", err, ErrSessionIDRequired)
	}
	if _, err := New("sess_1", "", 1, testTime); !errors.Is(err, ErrCampaignIDRequired) {
		t.Fatalf("error = %v, want %v", err, ErrCampaignIDRequired)
	}
}

func TestValidateRejectsMissingSubStructures(t *testing.T) {
	s, err := New("sess_1", "camp_1", 1, testTime)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	s.PhaseData.TurnEvents = nil
	if err := s.Validate(); !errors.Is(err, ErrUninitializedState) {
		t.Fatalf("error = %v, want %v", err, ErrUninitializedState)
	}
}

func TestResetForTurnClearsRoutingAndWorkingFields(t *testing.T) {
	s, err := New("sess_1", "camp_1", 1, testTime)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	s.ResponseType = intent.ResponseAction
	s.RetryCount = 2
	s.PhaseData.LastVerdict = &JudgeVerdict{IsValid: false}
	s.PhaseData.OutcomeTokens = append(s.PhaseData.OutcomeTokens, ActionOutcomeToken{ActionID: "act_1"})
	s.PhaseData.WorldChanges = append(s.PhaseData.WorldChanges, WorldStateChange{ChangeType: "hp"})
	s.PhaseData.TurnEvents = append(s.PhaseData.TurnEvents, EventNode{EventID: "evt_1"})
	s.PhaseData.Players = append(s.PhaseData.Players, Player{ID: "pc_1"})

	reset := s.ResetForTurn()
	if reset.ResponseType != intent.ResponseUnset {
		t.Fatalf("expected unset response type, got %q", reset.ResponseType)
	}
	if reset.RetryCount != 0 {
		t.Fatalf("expected retry count cleared, got %d", reset.RetryCount)
	}
	if reset.PhaseData.LastVerdict != nil {
		t.Fatal("expected verdict cleared")
	}
	if len(reset.PhaseData.OutcomeTokens) != 0 || len(reset.PhaseData.WorldChanges) != 0 || len(reset.PhaseData.TurnEvents) != 0 {
		t.Fatal("expected per-turn lists cleared")
	}
	if len(reset.PhaseData.Players) != 1 {
		t.Fatal("roster must survive a turn reset")
	}
	if err := reset.Validate(); err != nil {
		t.Fatalf("reset state failed validation: %v", err)
	}
}

func TestApplySetsAndAppends(t *testing.T) {
	s, err := New("sess_1", "camp_1", 1, testTime)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	s = Apply(s, SetResponse(intent.ResponseAction))
	if s.ResponseType != intent.ResponseAction {
		t.Fatalf("expected action response, got %q", s.ResponseType)
	}

	s = Apply(s, Patch{Players: []Player{{ID: "pc_1"}}})
	s = Apply(s, Patch{Players: []Player{{ID: "pc_2"}}})
	if len(s.PhaseData.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(s.PhaseData.Players))
	}
	if s.PhaseData.Players[0].ID != "pc_1" || s.PhaseData.Players[1].ID != "pc_2" {
		t.Fatalf("append order violated: %+v", s.PhaseData.Players)
	}

	s = Apply(s, Patch{PlayerUpdates: []Player{{ID: "pc_1", CurrentHP: 4}}})
	if s.PhaseData.Players[0].CurrentHP != 4 {
		t.Fatalf("player update not applied: %+v", s.PhaseData.Players[0])
	}
	if len(s.PhaseData.Players) != 2 {
		t.Fatalf("player update must not append, got %d players", len(s.PhaseData.Players))
	}

	s = Apply(s, Patch{Suggestions: []string{"press on"}})
	s = Apply(s, Patch{Suggestions: []string{"rest", "scout"}})
	if len(s.PhaseData.Suggestions) != 2 {
		t.Fatalf("suggestions must replace, not append: %v", s.PhaseData.Suggestions)
	}

	s = Apply(s, Patch{LastVerdict: &JudgeVerdict{IsValid: false}})
	s = Apply(s, Patch{ClearVerdict: true})
	if s.PhaseData.LastVerdict != nil {
		t.Fatal("expected verdict cleared by patch")
	}
}

func TestApplyZeroPatchIsNoOp(t *testing.T) {
	s, err := New("sess_1", "camp_1", 1, testTime)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	s.PhaseData.Players = append(s.PhaseData.Players, Player{ID: "pc_1"})
	after := Apply(s, Patch{})
	if len(after.PhaseData.Players) != 1 || after.ResponseType != s.ResponseType {
		t.Fatal("zero patch changed state")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s, err := New("sess_1", "camp_1", 1, testTime)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	s.PhaseData.Players = append(s.PhaseData.Players, Player{ID: "pc_1", Inventory: []string{"rope"}})
	s.PhaseData.World.Flags["gate"] = "closed"
	s.PhaseData.CurrentAction = &PlayerAction{PerformerID: "pc_1", Description: "attack"}

	cloned := Clone(s)
	cloned.PhaseData.Players[0].Inventory[0] = "sword"
	cloned.PhaseData.World.Flags["gate"] = "open"
	cloned.PhaseData.CurrentAction.Description = "flee"

	if s.PhaseData.Players[0].Inventory[0] != "rope" {
		t.Fatal("player inventory aliased between clone and source")
	}
	if s.PhaseData.World.Flags["gate"] != "closed" {
		t.Fatal("world flags aliased between clone and source")
	}
	if s.PhaseData.CurrentAction.Description != "attack" {
		t.Fatal("current action aliased between clone and source")
	}
}

func TestStatsScoreMapsAttributes(t *testing.T) {
	stats := Stats{Strength: 16, Dexterity: 14, Constitution: 13, Intelligence: 12, Wisdom: 11, Charisma: 10}
	tcs := []struct {
		attribute intent.Attribute
		want      int
	}{
		{intent.AttributeStrength, 16},
		{intent.AttributeDexterity, 14},
		{intent.AttributeIntelligence, 12},
		{intent.AttributeWisdom, 11},
		{intent.AttributeCharisma, 10},
	}
	for _, tc := range tcs {
		if got := stats.Score(tc.attribute); got != tc.want {
			t.Fatalf("Score(%s) = %d, want %d", tc.attribute, got, tc.want)
		}
	}
}

// Package state defines the versioned session record threaded through
// every stage, and the partial-update patches stages return.
//
// SessionState is immutable by convention: stages receive a value copy and
// return a Patch; the graph runner owns the merge. Every declared
// sub-structure is always present. A stage reading a missing sub-structure
// is a programming error, not a recoverable runtime condition.
package state

import (
	"errors"
	"time"

	"github.com/wyrdlabs/wyrd/internal/engine/intent"
	"github.com/wyrdlabs/wyrd/internal/engine/pacing"
)

var (
	// ErrSessionIDRequired indicates a missing session id.
	ErrSessionIDRequired = errors.New("session id is required")
	// ErrCampaignIDRequired indicates a missing campaign id.
	ErrCampaignIDRequired = errors.New("campaign id is required")
	// ErrUninitializedState indicates a session state with absent
	// sub-structures, which only a construction bug can produce.
	ErrUninitializedState = errors.New("session state is missing declared sub-structures")
)

// PhaseData groups the named sub-structures owned by the stage families.
// Each sub-structure has exactly one writing family; all stages may read.
type PhaseData struct {
	Narrative     NarrativeState       `json:"narrative"`
	World         WorldState           `json:"world"`
	Players       []Player             `json:"players"`
	CurrentAction *PlayerAction        `json:"current_action,omitempty"`
	LastOutcome   *TurnOutcome         `json:"last_outcome,omitempty"`
	LastVerdict   *JudgeVerdict        `json:"last_verdict,omitempty"`
	OutcomeTokens []ActionOutcomeToken `json:"outcome_tokens"`
	WorldChanges  []WorldStateChange   `json:"world_changes"`
	TurnEvents    []EventNode          `json:"turn_events"`
	Suggestions   []string             `json:"suggestions"`
}

// SessionState is the single record passed between every stage.
type SessionState struct {
	SessionID    string          `json:"session_id"`
	CampaignID   string          `json:"campaign_id"`
	TurnNumber   int             `json:"turn_number"`
	ResponseType intent.Response `json:"response_type"`
	RetryCount   int             `json:"retry_count"`
	Seed         int64           `json:"seed"`
	Pacing       pacing.Metrics  `json:"pacing"`
	PhaseData    PhaseData       `json:"phase_data"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// New constructs a fully initialized session state. All list-valued fields
// are non-nil so fan-in reducers can append without nil checks.
func New(sessionID, campaignID string, seed int64, now time.Time) (SessionState, error) {
	if sessionID == "" {
		return SessionState{}, ErrSessionIDRequired
	}
	if campaignID == "" {
		return SessionState{}, ErrCampaignIDRequired
	}
	return SessionState{
		SessionID:    sessionID,
		CampaignID:   campaignID,
		TurnNumber:   0,
		ResponseType: intent.ResponseUnset,
		Seed:         seed,
		Pacing:       pacing.NewMetrics(),
		PhaseData: PhaseData{
			World:         WorldState{Locations: []Location{}, Factions: []string{}, Flags: map[string]string{}},
			Narrative:     NarrativeState{Beats: []string{}},
			Players:       []Player{},
			OutcomeTokens: []ActionOutcomeToken{},
			WorldChanges:  []WorldStateChange{},
			TurnEvents:    []EventNode{},
			Suggestions:   []string{},
		},
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Validate checks the always-present invariant on the declared
// sub-structures.
func (s SessionState) Validate() error {
	if s.SessionID == "" {
		return ErrSessionIDRequired
	}
	if s.CampaignID == "" {
		return ErrCampaignIDRequired
	}
	if s.PhaseData.Players == nil ||
		s.PhaseData.OutcomeTokens == nil ||
		s.PhaseData.WorldChanges == nil ||
		s.PhaseData.TurnEvents == nil ||
		s.PhaseData.World.Flags == nil {
		return ErrUninitializedState
	}
	return nil
}

// ResetForTurn clears the per-turn routing and working fields so a stale
// classification, retry count, or verdict from the previous turn can
// never leak into the new one.
func (s SessionState) ResetForTurn() SessionState {
	s.ResponseType = intent.ResponseUnset
	s.RetryCount = 0
	s.PhaseData.LastVerdict = nil
	s.PhaseData.OutcomeTokens = []ActionOutcomeToken{}
	s.PhaseData.WorldChanges = []WorldStateChange{}
	s.PhaseData.TurnEvents = []EventNode{}
	return s
}

// Clone returns a deep copy; checkpoint stores use it so a caller mutating
// the returned state cannot corrupt the stored snapshot.
func Clone(source SessionState) SessionState {
	cloned := source
	cloned.Pacing.TensionTrajectory = append([]float64(nil), source.Pacing.TensionTrajectory...)
	cloned.PhaseData.Players = clonePlayers(source.PhaseData.Players)
	cloned.PhaseData.OutcomeTokens = cloneTokens(source.PhaseData.OutcomeTokens)
	cloned.PhaseData.WorldChanges = append([]WorldStateChange(nil), source.PhaseData.WorldChanges...)
	cloned.PhaseData.TurnEvents = cloneEvents(source.PhaseData.TurnEvents)
	cloned.PhaseData.Suggestions = append([]string(nil), source.PhaseData.Suggestions...)
	cloned.PhaseData.Narrative.Beats = append([]string(nil), source.PhaseData.Narrative.Beats...)
	cloned.PhaseData.World = cloneWorld(source.PhaseData.World)
	if source.PhaseData.CurrentAction != nil {
		action := *source.PhaseData.CurrentAction
		cloned.PhaseData.CurrentAction = &action
	}
	if source.PhaseData.LastOutcome != nil {
		outcome := *source.PhaseData.LastOutcome
		cloned.PhaseData.LastOutcome = &outcome
	}
	if source.PhaseData.LastVerdict != nil {
		verdict := *source.PhaseData.LastVerdict
		cloned.PhaseData.LastVerdict = &verdict
	}
	return cloned
}

func clonePlayers(source []Player) []Player {
	if source == nil {
		return nil
	}
	cloned := make([]Player, len(source))
	for i, player := range source {
		player.Inventory = append([]string(nil), player.Inventory...)
		cloned[i] = player
	}
	return cloned
}

func cloneTokens(source []ActionOutcomeToken) []ActionOutcomeToken {
	if source == nil {
		return nil
	}
	cloned := make([]ActionOutcomeToken, len(source))
	for i, token := range source {
		token.Roll.Values = append([]int(nil), token.Roll.Values...)
		token.RuleViolations = append([]string(nil), token.RuleViolations...)
		cloned[i] = token
	}
	return cloned
}

func cloneEvents(source []EventNode) []EventNode {
	if source == nil {
		return nil
	}
	cloned := make([]EventNode, len(source))
	for i, event := range source {
		event.StateChanges = append([]WorldStateChange(nil), event.StateChanges...)
		cloned[i] = event
	}
	return cloned
}

func cloneWorld(source WorldState) WorldState {
	cloned := source
	cloned.Factions = append([]string(nil), source.Factions...)
	if source.Locations != nil {
		cloned.Locations = make([]Location, len(source.Locations))
		for i, location := range source.Locations {
			location.NPCs = append([]string(nil), location.NPCs...)
			location.Connections = append([]string(nil), location.Connections...)
			cloned.Locations[i] = location
		}
	}
	if source.Flags != nil {
		cloned.Flags = make(map[string]string, len(source.Flags))
		for key, value := range source.Flags {
			cloned.Flags[key] = value
		}
	}
	return cloned
}

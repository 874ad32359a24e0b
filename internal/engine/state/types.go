package state

import (
	"time"

	"github.com/wyrdlabs/wyrd/internal/engine/dice"
	"github.com/wyrdlabs/wyrd/internal/engine/intent"
)

// Stats holds a player character's ability scores.
type Stats struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// Score returns the ability score backing the given attribute.
func (s Stats) Score(attribute intent.Attribute) int {
	switch attribute {
	case intent.AttributeStrength:
		return s.Strength
	case intent.AttributeDexterity:
		return s.Dexterity
	case intent.AttributeIntelligence:
		return s.Intelligence
	case intent.AttributeCharisma:
		return s.Charisma
	case intent.AttributeWisdom:
		return s.Wisdom
	default:
		return 10
	}
}

// Player is one member of the party roster.
type Player struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Class        string   `json:"class"`
	Level        int      `json:"level"`
	ConceptIndex int      `json:"concept_index"`
	Stats        Stats    `json:"stats"`
	Inventory    []string `json:"inventory"`
	CurrentHP    int      `json:"current_hp"`
	MaxHP        int      `json:"max_hp"`
	LocationID   string   `json:"location_id"`
}

// Location is one place in the instantiated world.
type Location struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	NPCs        []string `json:"npcs"`
	Connections []string `json:"connections"`
}

// WorldState is the sub-structure owned by the world stage family.
type WorldState struct {
	Overview  string            `json:"overview"`
	Locations []Location        `json:"locations"`
	Factions  []string          `json:"factions"`
	Flags     map[string]string `json:"flags"`
}

// NarrativeState is the sub-structure owned by the narrative stage family.
type NarrativeState struct {
	Title        string   `json:"title"`
	Tagline      string   `json:"tagline"`
	ArcSummary   string   `json:"arc_summary"`
	CurrentScene string   `json:"current_scene"`
	Beats        []string `json:"beats"`
}

// PlayerAction is the raw submitted action for the current turn.
type PlayerAction struct {
	PerformerID string    `json:"performer_id"`
	Description string    `json:"description"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ActionOutcomeToken is the immutable result of mechanically resolving one
// player action. Created once per resolved action per turn; consumed by
// the world-update and narration phases.
type ActionOutcomeToken struct {
	ActionID          string           `json:"action_id"`
	PerformerID       string           `json:"performer_id"`
	Intent            intent.Type      `json:"intent"`
	Roll              dice.RollResult  `json:"roll"`
	DifficultyClass   int              `json:"difficulty_class"`
	MeetsDC           bool             `json:"meets_dc"`
	Effectiveness     float64          `json:"effectiveness"`
	DamageDealt       int              `json:"damage_dealt"`
	HealingReceived   int              `json:"healing_received"`
	RuleViolations    []string         `json:"rule_violations,omitempty"`
	MechanicalSummary string           `json:"mechanical_summary"`
	ResolvedAt        time.Time        `json:"resolved_at"`
}

// WorldStateChange is one atomic audit record produced by the world-update
// phase. Append-only.
type WorldStateChange struct {
	ChangeType string    `json:"change_type"`
	TargetID   string    `json:"target_id"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	Reason     string    `json:"reason"`
	ActionID   string    `json:"action_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// JudgeVerdict is the quality-gate assessment of one resolution attempt.
// Consumed by the retry router, then discarded apart from a chronicle
// summary line.
type JudgeVerdict struct {
	IsValid              bool    `json:"is_valid"`
	Consistency          float64 `json:"consistency"`
	Agency               float64 `json:"agency"`
	RuleAdherence        float64 `json:"rule_adherence"`
	Safety               float64 `json:"safety"`
	Feedback             string  `json:"feedback"`
	CorrectionSuggestion string  `json:"correction_suggestion,omitempty"`
}

// TurnOutcome is the narration collaborator's product for one turn.
type TurnOutcome struct {
	Success   bool   `json:"success"`
	Narration string `json:"narration"`
}

// EventNode is one chronicle entry. Never mutated after creation.
type EventNode struct {
	EventID        string             `json:"event_id"`
	TurnNumber     int                `json:"turn_number"`
	Phase          string             `json:"phase"`
	PerformerID    string             `json:"performer_id,omitempty"`
	Intent         intent.Type        `json:"intent,omitempty"`
	OutcomeSummary string             `json:"outcome_summary,omitempty"`
	StateChanges   []WorldStateChange `json:"state_changes,omitempty"`
	SceneContext   string             `json:"scene_context,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Package pacing tracks narrative rhythm for the director oversight phase.
//
// Pacing is advisory: out-of-range tension values are clamped rather than
// rejected, and the scene-transition heuristic never fails a turn.
package pacing

// Category groups intents for the per-scene turn counters.
type Category string

const (
	CategoryCombat      Category = "combat"
	CategoryDialogue    Category = "dialogue"
	CategoryExploration Category = "exploration"
)

// DefaultMaxTurnsPerScene bounds how long a scene runs before the
// transition check fires unconditionally.
const DefaultMaxTurnsPerScene = 10

// Metrics tracks per-scene turn counts and the tension scalar.
type Metrics struct {
	TurnsInScene      int       `json:"turns_in_scene"`
	MaxTurnsPerScene  int       `json:"max_turns_per_scene"`
	CurrentTension    float64   `json:"current_tension"`
	TensionTrajectory []float64 `json:"tension_trajectory"`
	CombatTurns       int       `json:"combat_turns"`
	DialogueTurns     int       `json:"dialogue_turns"`
	ExplorationTurns  int       `json:"exploration_turns"`
}

// NewMetrics returns metrics with the default scene bound and a neutral
// starting tension.
func NewMetrics() Metrics {
	return Metrics{
		MaxTurnsPerScene:  DefaultMaxTurnsPerScene,
		CurrentTension:    0.5,
		TensionTrajectory: []float64{},
	}
}

// RecordTurn increments the scene counter and the counter for the turn's
// dominant category.
func (m *Metrics) RecordTurn(category Category) {
	m.TurnsInScene++
	switch category {
	case CategoryCombat:
		m.CombatTurns++
	case CategoryDialogue:
		m.DialogueTurns++
	case CategoryExploration:
		m.ExplorationTurns++
	}
}

// ApplyTensionDelta shifts tension by delta, clamps the result to [0, 1],
// and appends it to the trajectory. Adversarial deltas are clamped, never
// rejected.
func (m *Metrics) ApplyTensionDelta(delta float64) {
	m.CurrentTension = clamp(m.CurrentTension + delta)
	m.TensionTrajectory = append(m.TensionTrajectory, m.CurrentTension)
}

// ShouldTransitionScene reports whether the scene has run its course:
// either the hard per-scene turn bound is reached, or the scene has gone
// on for more than five turns with tension below 0.2.
func (m *Metrics) ShouldTransitionScene() bool {
	maxTurns := m.MaxTurnsPerScene
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurnsPerScene
	}
	if m.TurnsInScene >= maxTurns {
		return true
	}
	return m.TurnsInScene > 5 && m.CurrentTension < 0.2
}

// ResetScene zeroes the per-scene counter after a transition. The tension
// trajectory and category counters carry across scenes.
func (m *Metrics) ResetScene() {
	m.TurnsInScene = 0
}

// RecommendedPacing bands the current tension into a directive label for
// the director collaborator.
func (m *Metrics) RecommendedPacing() string {
	switch {
	case m.CurrentTension > 0.8:
		return "HIGH_INTENSITY"
	case m.CurrentTension > 0.6:
		return "ESCALATING"
	case m.CurrentTension > 0.4:
		return "NORMAL"
	case m.CurrentTension > 0.2:
		return "DESCENDING"
	default:
		return "LOW_INTENSITY"
	}
}

func clamp(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

package stages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/wyrdlabs/wyrd/internal/engine/dice"
	"github.com/wyrdlabs/wyrd/internal/engine/graph"
	"github.com/wyrdlabs/wyrd/internal/engine/intent"
	"github.com/wyrdlabs/wyrd/internal/engine/state"
)

// ErrNoConcepts indicates session initialization without any character
// concepts to build a party from.
var ErrNoConcepts = errors.New("at least one character concept is required")

// StartingLocationID is where every new party begins.
const StartingLocationID = "loc_crossroads"

// InitDeps carries everything the initialization stages need.
type InitDeps struct {
	Premise  string
	Concepts []string
	NewID    func() string
	Now      func() time.Time
}

// BuildInitGraph wires the linear session-initialization pipeline:
// campaign blueprint, lore, world instantiation, concurrent character
// generation, then the opening narration.
func BuildInitGraph(deps InitDeps) (*graph.Graph, error) {
	g := graph.New()

	if err := g.AddStage("blueprint", deps.blueprint); err != nil {
		return nil, fmt.Errorf("add stage blueprint: %w", err)
	}
	if err := g.AddStage("lore", deps.lore); err != nil {
		return nil, fmt.Errorf("add stage lore: %w", err)
	}
	if err := g.AddStage("world", deps.world); err != nil {
		return nil, fmt.Errorf("add stage world: %w", err)
	}
	if err := g.AddFanOut("characters", deps.routeConcepts, deps.generateCharacter); err != nil {
		return nil, fmt.Errorf("add stage characters: %w", err)
	}
	if err := g.AddStage("opening", deps.opening); err != nil {
		return nil, fmt.Errorf("add stage opening: %w", err)
	}

	edges := [][2]string{
		{"blueprint", "lore"},
		{"lore", "world"},
		{"world", "characters"},
		{"characters", "opening"},
	}
	for _, edge := range edges {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("wire %s: %w", edge[0], err)
		}
	}
	if err := g.SetTerminal("opening"); err != nil {
		return nil, fmt.Errorf("mark terminal opening: %w", err)
	}
	return g, nil
}

// blueprint lays down the campaign frame from the premise.
func (d InitDeps) blueprint(_ context.Context, s state.SessionState) (state.Patch, error) {
	premise := strings.TrimSpace(d.Premise)
	if premise == "" {
		premise = "An unwritten tale in a land between maps"
	}
	narrative := s.PhaseData.Narrative
	narrative.Title = titleCase(firstClause(premise))
	narrative.Tagline = premise
	narrative.ArcSummary = fmt.Sprintf("A party is drawn together by a shared thread: %s.", lowerFirst(premise))
	return state.Patch{Narrative: &narrative}, nil
}

// lore seeds the campaign's factions and opening beats.
func (d InitDeps) lore(_ context.Context, s state.SessionState) (state.Patch, error) {
	world := s.PhaseData.World
	world.Factions = append(append([]string(nil), world.Factions...),
		"The Wardens of the Old Road",
		"The Gloaming Court",
	)
	narrative := s.PhaseData.Narrative
	narrative.Beats = append(append([]string(nil), narrative.Beats...),
		"Rumors gather at the crossroads",
	)
	return state.Patch{World: &world, Narrative: &narrative}, nil
}

// world instantiates the starting map and baseline flags.
func (d InitDeps) world(_ context.Context, s state.SessionState) (state.Patch, error) {
	world := s.PhaseData.World
	world.Overview = fmt.Sprintf("The tale begins where the roads meet. %s", strings.TrimSpace(d.Premise))
	world.Locations = []state.Location{
		{
			ID:          StartingLocationID,
			Name:        "The Crossroads",
			Description: "A weathered signpost marks the meeting of four roads.",
			NPCs:        []string{"wandering peddler"},
			Connections: []string{"loc_settlement", "loc_wilds"},
		},
		{
			ID:          "loc_settlement",
			Name:        "Hearthstead",
			Description: "A palisaded settlement with smoke rising from its common hall.",
			NPCs:        []string{"hearthkeeper", "gate warden"},
			Connections: []string{StartingLocationID},
		},
		{
			ID:          "loc_wilds",
			Name:        "The Tangled Wilds",
			Description: "Old forest where the road narrows to a deer track.",
			NPCs:        []string{},
			Connections: []string{StartingLocationID},
		},
	}
	flags := make(map[string]string, len(world.Flags)+1)
	for key, value := range world.Flags {
		flags[key] = value
	}
	flags[EncounterHPFlag] = strconv.Itoa(DefaultEncounterHP)
	world.Flags = flags
	return state.Patch{World: &world}, nil
}

// routeConcepts expands character generation into one task per concept.
func (d InitDeps) routeConcepts(_ state.SessionState) ([]graph.Task, error) {
	if len(d.Concepts) == 0 {
		return nil, ErrNoConcepts
	}
	tasks := make([]graph.Task, len(d.Concepts))
	for i, concept := range d.Concepts {
		tasks[i] = graph.Task{
			ID: fmt.Sprintf("concept_%d", i),
			Params: map[string]string{
				"concept": concept,
				"index":   strconv.Itoa(i),
			},
		}
	}
	return tasks, nil
}

// generateCharacter builds one party member from a concept. Stats come
// from seeded 3d6 rolls keyed by session seed and concept index, so the
// same session request always produces the same party.
func (d InitDeps) generateCharacter(_ context.Context, s state.SessionState, task graph.Task) (state.Patch, error) {
	concept := task.Params["concept"]
	index, err := strconv.Atoi(task.Params["index"])
	if err != nil {
		return state.Patch{}, fmt.Errorf("bad concept index %q: %w", task.Params["index"], err)
	}

	stats, err := rollStats(s.Seed + int64(index)*7919)
	if err != nil {
		return state.Patch{}, fmt.Errorf("roll stats: %w", err)
	}

	class := classFor(concept)
	maxHP := 8 + intent.Modifier(stats.Constitution) + hitDieFor(class)
	if maxHP < 1 {
		maxHP = 1
	}

	player := state.Player{
		ID:           d.NewID(),
		Name:         titleCase(firstClause(concept)),
		Class:        class,
		Level:        1,
		ConceptIndex: index,
		Stats:        stats,
		Inventory:    inventoryFor(class),
		CurrentHP:    maxHP,
		MaxHP:        maxHP,
		LocationID:   StartingLocationID,
	}
	return state.Patch{Players: []state.Player{player}}, nil
}

func rollStats(seed int64) (state.Stats, error) {
	scores := make([]int, 6)
	for i := range scores {
		roll, err := dice.Roll(dice.RollRequest{Sides: 6, Count: 3, Seed: seed + int64(i)})
		if err != nil {
			return state.Stats{}, err
		}
		scores[i] = roll.Total
	}
	return state.Stats{
		Strength:     scores[0],
		Dexterity:    scores[1],
		Constitution: scores[2],
		Intelligence: scores[3],
		Wisdom:       scores[4],
		Charisma:     scores[5],
	}, nil
}

func classFor(concept string) string {
	lowered := strings.ToLower(concept)
	switch {
	case containsAny(lowered, "wizard", "mage", "sorcer", "warlock"):
		return "mage"
	case containsAny(lowered, "rogue", "thief", "scout", "spy"):
		return "rogue"
	case containsAny(lowered, "warrior", "fighter", "knight", "soldier"):
		return "warrior"
	case containsAny(lowered, "ranger", "hunter", "tracker"):
		return "ranger"
	case containsAny(lowered, "cleric", "priest", "healer"):
		return "cleric"
	default:
		return "adventurer"
	}
}

func hitDieFor(class string) int {
	switch class {
	case "warrior":
		return 4
	case "ranger", "rogue", "cleric":
		return 2
	default:
		return 0
	}
}

func inventoryFor(class string) []string {
	switch class {
	case "mage":
		return []string{"spellbook", "component pouch"}
	case "rogue":
		return []string{"daggers", "thieves' tools"}
	case "warrior":
		return []string{"longsword", "shield"}
	case "ranger":
		return []string{"longbow", "quiver"}
	case "cleric":
		return []string{"mace", "holy symbol"}
	default:
		return []string{"traveling pack"}
	}
}

// opening narrates the first scene with the generated party assembled.
func (d InitDeps) opening(_ context.Context, s state.SessionState) (state.Patch, error) {
	// Players arrive in fan-out completion order; present them in
	// concept order so the same request always reads the same.
	roster := append([]state.Player(nil), s.PhaseData.Players...)
	sort.Slice(roster, func(i, j int) bool {
		return roster[i].ConceptIndex < roster[j].ConceptIndex
	})
	names := make([]string, len(roster))
	for i, player := range roster {
		names[i] = player.Name
	}

	narrative := s.PhaseData.Narrative
	narrative.CurrentScene = fmt.Sprintf(
		"At the crossroads beneath a weathered signpost, %s take stock of the road ahead.",
		joinNames(names))

	event := state.EventNode{
		EventID:        d.NewID(),
		TurnNumber:     s.TurnNumber,
		Phase:          "opening",
		OutcomeSummary: narrative.CurrentScene,
		SceneContext:   narrative.CurrentScene,
		Timestamp:      d.Now().UTC(),
	}
	return state.Patch{
		Narrative:  &narrative,
		TurnEvents: []state.EventNode{event},
	}, nil
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func firstClause(text string) string {
	for _, sep := range []string{".", ",", ";"} {
		if i := strings.Index(text, sep); i > 0 {
			return text[:i]
		}
	}
	return text
}

func titleCase(text string) string {
	words := strings.Fields(strings.TrimSpace(text))
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func lowerFirst(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return text
	}
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return "a lone traveler"
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}

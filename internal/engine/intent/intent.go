// Package intent classifies raw player input into mechanical intent
// categories and assigns the difficulty each category rolls against.
package intent

import "strings"

// Type is the classified category of a player's action.
type Type string

const (
	TypeAttack      Type = "attack"
	TypeDefend      Type = "defend"
	TypeCastSpell   Type = "cast_spell"
	TypeDialogue    Type = "dialogue"
	TypeInvestigate Type = "investigate"
	TypeMove        Type = "move"
	TypeSkillCheck  Type = "skill_check"
	TypeUnknown     Type = "unknown"
)

// Keyword tables for the deterministic classifier. First match wins, in
// the order attack, cast, dialogue, investigate, move, defend.
var (
	attackWords      = []string{"attack", "hit", "strike", "swing"}
	castWords        = []string{"cast", "spell", "magic"}
	dialogueWords    = []string{"talk", "say", "ask", "negotiate"}
	investigateWords = []string{"check", "search", "look", "examine", "investigate"}
	moveWords        = []string{"move", "go", "walk", "run"}
	defendWords      = []string{"defend", "block", "shield"}
)

// Classify maps a free-form action description to an intent type. Input
// that matches no keyword table classifies as TypeUnknown.
func Classify(description string) Type {
	desc := strings.ToLower(description)
	switch {
	case containsAny(desc, attackWords):
		return TypeAttack
	case containsAny(desc, castWords):
		return TypeCastSpell
	case containsAny(desc, dialogueWords):
		return TypeDialogue
	case containsAny(desc, investigateWords):
		return TypeInvestigate
	case containsAny(desc, moveWords):
		return TypeMove
	case containsAny(desc, defendWords):
		return TypeDefend
	default:
		return TypeUnknown
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

// DifficultyClass returns the default threshold a roll for the intent
// must meet.
func DifficultyClass(t Type) int {
	switch t {
	case TypeAttack:
		return 12
	case TypeCastSpell:
		return 13
	case TypeDialogue:
		return 11
	case TypeInvestigate:
		return 10
	case TypeDefend:
		return 10
	case TypeMove:
		return 8
	default:
		return 10
	}
}

// Attribute identifies the ability score backing an intent's roll modifier.
type Attribute string

const (
	AttributeStrength     Attribute = "strength"
	AttributeIntelligence Attribute = "intelligence"
	AttributeCharisma     Attribute = "charisma"
	AttributeWisdom       Attribute = "wisdom"
	AttributeDexterity    Attribute = "dexterity"
)

// RelevantAttribute returns the ability score consulted for the intent's
// roll modifier.
func RelevantAttribute(t Type) Attribute {
	switch t {
	case TypeAttack:
		return AttributeStrength
	case TypeCastSpell:
		return AttributeIntelligence
	case TypeDialogue:
		return AttributeCharisma
	case TypeInvestigate, TypeSkillCheck:
		return AttributeWisdom
	case TypeMove, TypeDefend:
		return AttributeDexterity
	default:
		return AttributeWisdom
	}
}

// Modifier converts an ability score to its roll modifier.
func Modifier(score int) int {
	if score-10 < 0 {
		// Integer division truncates toward zero; ability modifiers
		// round down instead.
		return -((10 - score + 1) / 2)
	}
	return (score - 10) / 2
}

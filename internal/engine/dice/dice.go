// Package dice implements the seeded dice rolls backing action resolution.
package dice

import (
	"errors"
	"math/rand"
)

// ErrInvalidSides indicates a die with a non-positive number of sides.
var ErrInvalidSides = errors.New("dice must have positive sides")

// ErrInvalidCount indicates a roll request for zero or negative dice.
var ErrInvalidCount = errors.New("at least one die must be rolled")

// ErrInvalidDifficulty indicates a non-positive difficulty class.
var ErrInvalidDifficulty = errors.New("difficulty class must be positive")

// RollRequest describes a request to roll count dice of the same kind.
type RollRequest struct {
	Sides    int
	Count    int
	Modifier int
	Seed     int64
}

// RollResult captures the values rolled plus the applied modifier. The
// seed is recorded so a roll can be audited and replayed.
type RollResult struct {
	Sides    int   `json:"sides"`
	Values   []int `json:"values"`
	Modifier int   `json:"modifier"`
	Total    int   `json:"total"`
	Seed     int64 `json:"seed"`
}

// Roll rolls dice deterministically with respect to the request seed: the
// same seed and spec always produce the same result.
func Roll(request RollRequest) (RollResult, error) {
	if request.Sides <= 0 {
		return RollResult{}, ErrInvalidSides
	}
	if request.Count <= 0 {
		return RollResult{}, ErrInvalidCount
	}

	rng := rand.New(rand.NewSource(request.Seed))
	values := make([]int, request.Count)
	total := request.Modifier
	for i := range values {
		values[i] = rng.Intn(request.Sides) + 1
		total += values[i]
	}

	return RollResult{
		Sides:    request.Sides,
		Values:   values,
		Modifier: request.Modifier,
		Total:    total,
		Seed:     request.Seed,
	}, nil
}

// CheckResult captures a roll evaluated against a difficulty class.
type CheckResult struct {
	Roll          RollResult `json:"roll"`
	Difficulty    int        `json:"difficulty"`
	Meets         bool       `json:"meets"`
	Effectiveness float64    `json:"effectiveness"`
}

// EvaluateCheck compares a roll total against a difficulty class and
// derives an effectiveness score in [0, 1].
func EvaluateCheck(roll RollResult, difficulty int) (CheckResult, error) {
	if difficulty <= 0 {
		return CheckResult{}, ErrInvalidDifficulty
	}

	effectiveness := float64(roll.Total) / float64(difficulty)
	if effectiveness < 0 {
		effectiveness = 0
	}
	if effectiveness > 1 {
		effectiveness = 1
	}

	return CheckResult{
		Roll:          roll,
		Difficulty:    difficulty,
		Meets:         roll.Total >= difficulty,
		Effectiveness: effectiveness,
	}, nil
}

// Check rolls a single d20 with the given modifier and evaluates it
// against the difficulty class.
func Check(modifier int, difficulty int, seed int64) (CheckResult, error) {
	roll, err := Roll(RollRequest{Sides: 20, Count: 1, Modifier: modifier, Seed: seed})
	if err != nil {
		return CheckResult{}, err
	}
	return EvaluateCheck(roll, difficulty)
}

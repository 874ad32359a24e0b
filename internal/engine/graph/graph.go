// Package graph executes directed stage graphs over session state. Stages
// return patches; the runner owns the merge, routing, and the fan-out
// barrier, so stage code stays free of concurrency.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyrdlabs/wyrd/internal/engine/state"
)

var (
	// ErrStageExists indicates a duplicate stage name.
	ErrStageExists = errors.New("stage already registered")
	// ErrStageNotFound indicates an edge or entry naming an unknown stage.
	ErrStageNotFound = errors.New("stage not found")
	// ErrNoEntry indicates a graph built without an entry stage.
	ErrNoEntry = errors.New("graph has no entry stage")
	// ErrDeadEnd indicates a non-terminal stage with no outgoing edge.
	ErrDeadEnd = errors.New("non-terminal stage has no outgoing edge")
	// ErrNoTasks indicates a fan-out router that produced no work.
	ErrNoTasks = errors.New("fan-out produced no tasks")
)

// StageFunc transforms session state into a patch. Stages must not mutate
// the state they receive.
type StageFunc func(ctx context.Context, s state.SessionState) (state.Patch, error)

// Predicate inspects state and names the route to take out of a
// conditional stage.
type Predicate func(s state.SessionState) string

// Task is one unit of fan-out work.
type Task struct {
	ID     string
	Params map[string]string
}

// RouterFunc expands a fan-out stage into its tasks.
type RouterFunc func(s state.SessionState) ([]Task, error)

// TaskFunc executes one fan-out task against a snapshot of session state.
type TaskFunc func(ctx context.Context, s state.SessionState, task Task) (state.Patch, error)

type stageKind int

const (
	kindSimple stageKind = iota
	kindFanOut
)

type stage struct {
	name   string
	kind   stageKind
	fn     StageFunc
	router RouterFunc
	worker TaskFunc
}

type conditional struct {
	predicate Predicate
	routes    map[string]string
}

// Graph is a built stage graph. Construct with the Add methods, then run
// it with a Runner. Not safe to modify while running.
type Graph struct {
	stages       map[string]*stage
	edges        map[string]string
	conditionals map[string]conditional
	terminals    map[string]bool
	entry        string
	fallback     string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		stages:       make(map[string]*stage),
		edges:        make(map[string]string),
		conditionals: make(map[string]conditional),
		terminals:    make(map[string]bool),
	}
}

// AddStage registers a simple stage. The first stage added becomes the
// entry unless SetEntry overrides it.
func (g *Graph) AddStage(name string, fn StageFunc) error {
	return g.add(&stage{name: name, kind: kindSimple, fn: fn})
}

// AddFanOut registers a fan-out stage: router expands the work, worker
// runs each task concurrently, and the runner merges patches in
// completion order.
func (g *Graph) AddFanOut(name string, router RouterFunc, worker TaskFunc) error {
	return g.add(&stage{name: name, kind: kindFanOut, router: router, worker: worker})
}

func (g *Graph) add(s *stage) error {
	if _, ok := g.stages[s.name]; ok {
		return fmt.Errorf("%w: %s", ErrStageExists, s.name)
	}
	g.stages[s.name] = s
	if g.entry == "" {
		g.entry = s.name
	}
	return nil
}

// SetEntry overrides the entry stage.
func (g *Graph) SetEntry(name string) error {
	if _, ok := g.stages[name]; !ok {
		return fmt.Errorf("%w: %s", ErrStageNotFound, name)
	}
	g.entry = name
	return nil
}

// AddEdge wires an unconditional transition.
func (g *Graph) AddEdge(from, to string) error {
	if err := g.require(from, to); err != nil {
		return err
	}
	g.edges[from] = to
	return nil
}

// AddConditionalEdge wires a predicate-routed transition. Every stage the
// routes map names must exist; predicate results outside the map fall back
// to the graph's fallback stage.
func (g *Graph) AddConditionalEdge(from string, predicate Predicate, routes map[string]string) error {
	if _, ok := g.stages[from]; !ok {
		return fmt.Errorf("%w: %s", ErrStageNotFound, from)
	}
	for _, to := range routes {
		if _, ok := g.stages[to]; !ok {
			return fmt.Errorf("%w: %s", ErrStageNotFound, to)
		}
	}
	g.conditionals[from] = conditional{predicate: predicate, routes: routes}
	return nil
}

// SetTerminal marks a stage as an end of execution.
func (g *Graph) SetTerminal(name string) error {
	if _, ok := g.stages[name]; !ok {
		return fmt.Errorf("%w: %s", ErrStageNotFound, name)
	}
	g.terminals[name] = true
	return nil
}

// SetFallback names the terminal stage that receives control whenever a
// predicate returns a route the graph does not define. It must be a
// terminal so an unclassified state can never loop.
func (g *Graph) SetFallback(name string) error {
	if _, ok := g.stages[name]; !ok {
		return fmt.Errorf("%w: %s", ErrStageNotFound, name)
	}
	g.fallback = name
	return nil
}

// Validate checks that the graph can run: it has an entry and every
// non-terminal stage has some outgoing edge.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return ErrNoEntry
	}
	for name := range g.stages {
		if g.terminals[name] {
			continue
		}
		_, hasEdge := g.edges[name]
		_, hasConditional := g.conditionals[name]
		if !hasEdge && !hasConditional {
			return fmt.Errorf("%w: %s", ErrDeadEnd, name)
		}
	}
	return nil
}

func (g *Graph) require(names ...string) error {
	for _, name := range names {
		if _, ok := g.stages[name]; !ok {
			return fmt.Errorf("%w: %s", ErrStageNotFound, name)
		}
	}
	return nil
}

package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyrdlabs/wyrd/internal/engine/state"
)

var (
	// ErrMaxSteps indicates the runner aborted a graph that exceeded its
	// step bound. A correct graph never hits it; it exists so a routing
	// bug halts instead of spinning.
	ErrMaxSteps = errors.New("graph exceeded max steps")
	// ErrUndefinedRoute indicates a predicate result with no matching
	// route and no fallback configured.
	ErrUndefinedRoute = errors.New("undefined route")
)

// DefaultMaxSteps bounds a single run. Turn graphs are a handful of stages
// long; the bound only matters when routing is broken.
const DefaultMaxSteps = 64

// DefaultFanOutLimit caps concurrent fan-out workers.
const DefaultFanOutLimit = 4

// Observer receives a notification after each executed stage.
type Observer func(stageName string, elapsed time.Duration, err error)

// Runner executes a graph to a terminal stage.
type Runner struct {
	// MaxSteps overrides DefaultMaxSteps when positive.
	MaxSteps int
	// FanOutLimit overrides DefaultFanOutLimit when positive.
	FanOutLimit int
	// Observe, when set, is called after every stage execution.
	Observe Observer
}

// Run executes g from its entry stage until a terminal stage completes,
// returning the final state. The input state is never mutated.
func (r *Runner) Run(ctx context.Context, g *Graph, s state.SessionState) (state.SessionState, error) {
	if err := g.Validate(); err != nil {
		return s, fmt.Errorf("validate graph: %w", err)
	}

	maxSteps := r.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	current := g.entry
	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		node := g.stages[current]

		started := time.Now()
		next, err := r.execute(ctx, g, node, &s)
		if r.Observe != nil {
			r.Observe(current, time.Since(started), err)
		}
		if err != nil {
			return s, fmt.Errorf("stage %s: %w", current, err)
		}

		if g.terminals[current] {
			return s, nil
		}
		current = next
	}
	return s, fmt.Errorf("%w after %d steps", ErrMaxSteps, maxSteps)
}

// execute runs one stage, merges its patches into state, and resolves the
// next stage name.
func (r *Runner) execute(ctx context.Context, g *Graph, node *stage, s *state.SessionState) (string, error) {
	switch node.kind {
	case kindFanOut:
		if err := r.runFanOut(ctx, node, s); err != nil {
			return "", err
		}
	default:
		patch, err := node.fn(ctx, *s)
		if err != nil {
			return "", err
		}
		*s = state.Apply(*s, patch)
	}
	return r.route(g, node.name, *s)
}

func (r *Runner) route(g *Graph, from string, s state.SessionState) (string, error) {
	if g.terminals[from] {
		return "", nil
	}
	if next, ok := g.edges[from]; ok {
		return next, nil
	}
	cond := g.conditionals[from]
	key := cond.predicate(s)
	if next, ok := cond.routes[key]; ok {
		return next, nil
	}
	if g.fallback != "" {
		return g.fallback, nil
	}
	return "", fmt.Errorf("%w: %s -> %q", ErrUndefinedRoute, from, key)
}

// runFanOut expands the stage into tasks and runs them concurrently.
// Patches merge in completion order; any task failure fails the whole
// stage and no partial merge is kept.
func (r *Runner) runFanOut(ctx context.Context, node *stage, s *state.SessionState) error {
	tasks, err := node.router(*s)
	if err != nil {
		return fmt.Errorf("route tasks: %w", err)
	}
	if len(tasks) == 0 {
		return ErrNoTasks
	}

	limit := r.FanOutLimit
	if limit <= 0 {
		limit = DefaultFanOutLimit
	}

	var mu sync.Mutex
	var patches []state.Patch

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for _, task := range tasks {
		task := task
		snapshot := state.Clone(*s)
		group.Go(func() error {
			patch, err := node.worker(groupCtx, snapshot, task)
			if err != nil {
				return fmt.Errorf("task %s: %w", task.ID, err)
			}
			mu.Lock()
			patches = append(patches, patch)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for _, patch := range patches {
		*s = state.Apply(*s, patch)
	}
	return nil
}

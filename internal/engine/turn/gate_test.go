package turn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wyrdlabs/wyrd/internal/engine/state"
	"github.com/wyrdlabs/wyrd/internal/telemetry"
)

type scriptedResolver struct {
	calls       int
	corrections []string
	err         error
}

func (r *scriptedResolver) ResolveAction(_ context.Context, _ state.SessionState, action state.PlayerAction, correction string) (state.ActionOutcomeToken, error) {
	if r.err != nil {
		return state.ActionOutcomeToken{}, r.err
	}
	r.calls++
	r.corrections = append(r.corrections, correction)
	return state.ActionOutcomeToken{ActionID: "act_1", PerformerID: action.PerformerID}, nil
}

type scriptedJudge struct {
	invalidAttempts int
	reviews         int
}

func (j *scriptedJudge) Review(_ context.Context, _ state.SessionState, _ state.ActionOutcomeToken) (state.JudgeVerdict, error) {
	j.reviews++
	if j.reviews <= j.invalidAttempts {
		return state.JudgeVerdict{
			IsValid:              false,
			Feedback:             "outcome contradicts the scene",
			CorrectionSuggestion: "respect the locked gate",
		}, nil
	}
	return state.JudgeVerdict{IsValid: true}, nil
}

type gateTelemetryStore struct {
	events []telemetry.Event
}

func (s *gateTelemetryStore) AppendTelemetryEvent(_ context.Context, event telemetry.Event) error {
	s.events = append(s.events, event)
	return nil
}

func gateTestState(t *testing.T) state.SessionState {
	t.Helper()
	s, err := state.New("sess_1", "camp_1", 7, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("state.New returned error: %v", err)
	}
	return s
}

func TestGatePassesOnFirstValidVerdict(t *testing.T) {
	resolver := &scriptedResolver{}
	gate := QualityGate{Resolver: resolver, Judge: &scriptedJudge{}}

	result, err := gate.Resolve(context.Background(), gateTestState(t), state.PlayerAction{PerformerID: "pc_1"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if result.Retries != 0 || result.Overridden {
		t.Fatalf("unexpected gate result: %+v", result)
	}
	if resolver.calls != 1 {
		t.Fatalf("expected single resolution, got %d", resolver.calls)
	}
}

func TestGateRetriesWithCorrection(t *testing.T) {
	resolver := &scriptedResolver{}
	gate := QualityGate{Resolver: resolver, Judge: &scriptedJudge{invalidAttempts: 1}}

	result, err := gate.Resolve(context.Background(), gateTestState(t), state.PlayerAction{PerformerID: "pc_1"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if result.Retries != 1 || result.Overridden {
		t.Fatalf("unexpected gate result: %+v", result)
	}
	if len(resolver.corrections) != 2 || resolver.corrections[0] != "" || resolver.corrections[1] != "respect the locked gate" {
		t.Fatalf("correction not threaded into retry: %v", resolver.corrections)
	}
}

func TestGateOverridesAfterMaxRetries(t *testing.T) {
	resolver := &scriptedResolver{}
	store := &gateTelemetryStore{}
	gate := QualityGate{
		Resolver:  resolver,
		Judge:     &scriptedJudge{invalidAttempts: 10},
		Telemetry: telemetry.NewEmitter(store),
	}

	result, err := gate.Resolve(context.Background(), gateTestState(t), state.PlayerAction{PerformerID: "pc_1"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !result.Overridden {
		t.Fatal("expected override after exhausting retries")
	}
	if result.Retries != DefaultMaxRetries {
		t.Fatalf("expected %d retries, got %d", DefaultMaxRetries, result.Retries)
	}
	if resolver.calls != DefaultMaxRetries+1 {
		t.Fatalf("expected %d resolutions, got %d", DefaultMaxRetries+1, resolver.calls)
	}
	if len(store.events) != 1 || store.events[0].Kind != "quality_gate_override" {
		t.Fatalf("expected override telemetry, got %+v", store.events)
	}
	if store.events[0].Severity != telemetry.SeverityWarning {
		t.Fatalf("expected warning severity, got %s", store.events[0].Severity)
	}
}

func TestGatePropagatesResolverErrors(t *testing.T) {
	wantErr := errors.New("resolver offline")
	gate := QualityGate{Resolver: &scriptedResolver{err: wantErr}, Judge: &scriptedJudge{}}

	if _, err := gate.Resolve(context.Background(), gateTestState(t), state.PlayerAction{}); !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
}

// Package session exposes the engine's public surface: creating sessions,
// resuming them from their checkpoints, and executing turns against them.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wyrdlabs/wyrd/internal/engine/blackboard"
	"github.com/wyrdlabs/wyrd/internal/engine/checkpoint"
	"github.com/wyrdlabs/wyrd/internal/engine/graph"
	"github.com/wyrdlabs/wyrd/internal/engine/intent"
	"github.com/wyrdlabs/wyrd/internal/engine/memory"
	"github.com/wyrdlabs/wyrd/internal/engine/state"
	"github.com/wyrdlabs/wyrd/internal/engine/turn"
	"github.com/wyrdlabs/wyrd/internal/platform/id"
	"github.com/wyrdlabs/wyrd/internal/random"
	"github.com/wyrdlabs/wyrd/internal/stages"
	"github.com/wyrdlabs/wyrd/internal/telemetry"
)

var (
	// ErrNotFound indicates an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrNotReady indicates a turn submitted before initialization
	// produced a party and a world.
	ErrNotReady = errors.New("session is not ready for turns")
	// ErrCompleted indicates a turn submitted to a completed session.
	ErrCompleted = errors.New("session is completed")
	// ErrTitleRequired indicates a new-session request without a title.
	ErrTitleRequired = errors.New("session title is required")
)

// Session statuses recorded in metadata.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Metadata is the listing record for one session.
type Metadata struct {
	SessionID  string    `json:"session_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	LastPlayed time.Time `json:"last_played"`
	TurnCount  int       `json:"turn_count"`
	Status     string    `json:"status"`
}

// MetadataStore persists session listing records. GetSession,
// TouchSession, and CompleteSession return an error wrapping ErrNotFound
// for unknown ids. ListSessions orders by last played, newest first.
type MetadataStore interface {
	CreateSession(ctx context.Context, meta Metadata) error
	TouchSession(ctx context.Context, sessionID string, lastPlayed time.Time, turnCount int) error
	CompleteSession(ctx context.Context, sessionID string, when time.Time) error
	GetSession(ctx context.Context, sessionID string) (Metadata, error)
	ListSessions(ctx context.Context) ([]Metadata, error)
}

// ChronicleStore persists the append-only event history.
type ChronicleStore interface {
	AppendEvents(ctx context.Context, sessionID string, events []state.EventNode) error
	ListEvents(ctx context.Context, sessionID string) ([]state.EventNode, error)
}

// Config assembles a Manager. Checkpoints, Chronicle, and Metadata are
// required; collaborators default to the built-in rules engines.
type Config struct {
	Checkpoints checkpoint.Store
	Chronicle   ChronicleStore
	Metadata    MetadataStore
	Telemetry   *telemetry.Emitter

	Resolver turn.Resolver
	Judge    turn.Judge
	Narrator turn.Narrator
	Director turn.Director

	NewID   func() string
	NewSeed func() int64
	Now     func() time.Time
}

// defaultNewID adapts id.NewID to the injectable signature. The only
// failure mode is a broken platform entropy source, which nothing at this
// layer can recover from.
func defaultNewID() string {
	value, err := id.NewID()
	if err != nil {
		panic(fmt.Sprintf("generate id: %v", err))
	}
	return value
}

func defaultNewSeed() int64 {
	seed, err := random.NewSeed()
	if err != nil {
		panic(fmt.Sprintf("generate seed: %v", err))
	}
	return seed
}

// Manager owns the running sessions. Each session executes at most one
// turn at a time; distinct sessions run independently.
type Manager struct {
	cfg Config

	mu   sync.Mutex
	live map[string]*liveSession
}

type liveSession struct {
	mu       sync.Mutex
	state    state.SessionState
	memory   *memory.SessionMemory
	board    *blackboard.Board
	entities *blackboard.Graph
	graph    *graph.Graph
}

// newLiveSession builds the per-session working set: event memory, the
// collaborator board, and the entity graph seeded from the roster and map.
func newLiveSession(s state.SessionState, chronicle []state.EventNode) *liveSession {
	live := &liveSession{
		state:    s,
		memory:   memory.Rebuild(chronicle),
		board:    blackboard.NewBoard(),
		entities: blackboard.NewGraph(),
	}
	live.registerEntities()
	return live
}

// registerEntities records the roster and map in the entity graph.
// Re-registering an existing entity only fails with ErrEntityExists,
// which is the no-op this wants.
func (l *liveSession) registerEntities() {
	for _, location := range l.state.PhaseData.World.Locations {
		_ = l.entities.AddEntity(blackboard.Entity{ID: location.ID, Kind: "location", Name: location.Name})
	}
	for _, player := range l.state.PhaseData.Players {
		_ = l.entities.AddEntity(blackboard.Entity{ID: player.ID, Kind: "player", Name: player.Name})
		if player.LocationID != "" {
			_ = l.entities.AddLink(player.ID, player.LocationID, "at")
		}
	}
}

// NewManager validates the config, fills in defaults, and returns a
// manager with no live sessions.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Checkpoints == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if cfg.Chronicle == nil {
		return nil, errors.New("chronicle store is required")
	}
	if cfg.Metadata == nil {
		return nil, errors.New("metadata store is required")
	}
	if cfg.NewID == nil {
		cfg.NewID = defaultNewID
	}
	if cfg.NewSeed == nil {
		cfg.NewSeed = defaultNewSeed
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Resolver == nil {
		cfg.Resolver = &stages.RulesResolver{NewID: cfg.NewID, Now: cfg.Now}
	}
	if cfg.Judge == nil {
		cfg.Judge = stages.ConsistencyJudge{}
	}
	if cfg.Narrator == nil {
		cfg.Narrator = stages.TemplateNarrator{}
	}
	if cfg.Director == nil {
		cfg.Director = stages.TensionDirector{}
	}
	return &Manager{cfg: cfg, live: make(map[string]*liveSession)}, nil
}

// NewSessionRequest describes a session to create.
type NewSessionRequest struct {
	Title    string
	Premise  string
	Concepts []string
}

// View is the caller-facing snapshot of a session after an operation.
type View struct {
	SessionID   string
	Title       string
	TurnNumber  int
	Scene       string
	Narration   string
	Suggestions []string
	Players     []state.Player
}

// NewSession creates, initializes, and persists a session. Any
// initialization failure fails the whole request; no half-built session
// is ever persisted.
func (m *Manager) NewSession(ctx context.Context, req NewSessionRequest) (View, error) {
	if req.Title == "" {
		return View{}, ErrTitleRequired
	}

	sessionID := "sess_" + m.cfg.NewID()
	campaignID := "camp_" + m.cfg.NewID()
	seed := m.cfg.NewSeed()
	now := m.cfg.Now()

	initial, err := state.New(sessionID, campaignID, seed, now)
	if err != nil {
		return View{}, fmt.Errorf("new session state: %w", err)
	}

	initGraph, err := stages.BuildInitGraph(stages.InitDeps{
		Premise:  req.Premise,
		Concepts: req.Concepts,
		NewID:    m.cfg.NewID,
		Now:      m.cfg.Now,
	})
	if err != nil {
		return View{}, fmt.Errorf("build init graph: %w", err)
	}

	var runner graph.Runner
	initialized, err := runner.Run(ctx, initGraph, initial)
	if err != nil {
		return View{}, fmt.Errorf("initialize session: %w", err)
	}

	if err := m.cfg.Chronicle.AppendEvents(ctx, sessionID, initialized.PhaseData.TurnEvents); err != nil {
		return View{}, fmt.Errorf("chronicle opening: %w", err)
	}
	if err := m.cfg.Checkpoints.Put(ctx, sessionID, initialized); err != nil {
		return View{}, fmt.Errorf("checkpoint session: %w", err)
	}
	if err := m.cfg.Metadata.CreateSession(ctx, Metadata{
		SessionID:  sessionID,
		Title:      req.Title,
		CreatedAt:  now.UTC(),
		LastPlayed: now.UTC(),
		Status:     StatusActive,
	}); err != nil {
		return View{}, fmt.Errorf("record session metadata: %w", err)
	}

	live := newLiveSession(initialized, initialized.PhaseData.TurnEvents)
	if live.graph, err = m.buildTurnGraph(live); err != nil {
		return View{}, err
	}

	m.mu.Lock()
	m.live[sessionID] = live
	m.mu.Unlock()

	m.cfg.Telemetry.Emit(ctx, sessionID, 0, "session_created", telemetry.SeverityInfo, req.Title)
	return m.view(initialized, req.Title), nil
}

// ResumeSession loads a session from its checkpoint and rebuilds its
// event memory from the chronicle. Resuming a live session is a no-op
// returning the current view.
func (m *Manager) ResumeSession(ctx context.Context, sessionID string) (View, error) {
	meta, err := m.cfg.Metadata.GetSession(ctx, sessionID)
	if err != nil {
		return View{}, err
	}

	m.mu.Lock()
	if live, ok := m.live[sessionID]; ok {
		m.mu.Unlock()
		live.mu.Lock()
		defer live.mu.Unlock()
		return m.view(live.state, meta.Title), nil
	}
	m.mu.Unlock()

	snapshot, err := m.cfg.Checkpoints.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return View{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return View{}, fmt.Errorf("load checkpoint: %w", err)
	}

	chronicle, err := m.cfg.Chronicle.ListEvents(ctx, sessionID)
	if err != nil {
		return View{}, fmt.Errorf("load chronicle: %w", err)
	}

	live := newLiveSession(snapshot, chronicle)
	if live.graph, err = m.buildTurnGraph(live); err != nil {
		return View{}, err
	}

	m.mu.Lock()
	m.live[sessionID] = live
	m.mu.Unlock()

	return m.view(snapshot, meta.Title), nil
}

// TurnResult is the outcome of one executed turn.
type TurnResult struct {
	SessionID   string
	TurnNumber  int
	Success     bool
	Narration   string
	Suggestions []string
	Exited      bool
	Metrics     turn.Metrics
}

// ExecuteTurn runs one turn for the submitted input. The session must be
// active and fully initialized; concurrent submissions to the same
// session serialize.
func (m *Manager) ExecuteTurn(ctx context.Context, sessionID, performerID, input string) (TurnResult, error) {
	meta, err := m.cfg.Metadata.GetSession(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	if meta.Status == StatusCompleted {
		return TurnResult{}, fmt.Errorf("%w: %s", ErrCompleted, sessionID)
	}

	if _, err := m.ResumeSession(ctx, sessionID); err != nil {
		return TurnResult{}, err
	}
	m.mu.Lock()
	live := m.live[sessionID]
	m.mu.Unlock()

	live.mu.Lock()
	defer live.mu.Unlock()

	if len(live.state.PhaseData.Players) == 0 || len(live.state.PhaseData.World.Locations) == 0 {
		return TurnResult{}, fmt.Errorf("%w: %s", ErrNotReady, sessionID)
	}

	working := live.state
	if strings.TrimSpace(input) == "" {
		// No input this turn: clear any prior action so intake
		// synthesizes a default observe action instead of replaying it.
		working.PhaseData.CurrentAction = nil
	} else {
		working.PhaseData.CurrentAction = &state.PlayerAction{
			PerformerID: performerID,
			Description: input,
			SubmittedAt: m.cfg.Now().UTC(),
		}
	}

	executor := turn.Executor{
		Checkpoints: m.cfg.Checkpoints,
		Chronicle:   m.cfg.Chronicle,
		Telemetry:   m.cfg.Telemetry,
		Now:         m.cfg.Now,
	}
	final, metrics, err := executor.ExecuteTurn(ctx, live.graph, working, live.memory)
	if err != nil {
		return TurnResult{}, err
	}
	live.state = final
	live.registerEntities()
	if broken := live.entities.CheckConsistency(); len(broken) > 0 {
		m.cfg.Telemetry.Emit(ctx, sessionID, final.TurnNumber, "world_inconsistency",
			telemetry.SeverityWarning, fmt.Sprintf("%d dangling entity relations", len(broken)))
	}

	if err := m.cfg.Metadata.TouchSession(ctx, sessionID, m.cfg.Now().UTC(), final.TurnNumber); err != nil {
		return TurnResult{}, fmt.Errorf("touch session metadata: %w", err)
	}

	result := TurnResult{
		SessionID:   sessionID,
		TurnNumber:  final.TurnNumber,
		Suggestions: final.PhaseData.Suggestions,
		Exited:      final.ResponseType == intent.ResponseExit,
		Metrics:     metrics,
	}
	if final.PhaseData.LastOutcome != nil {
		result.Success = final.PhaseData.LastOutcome.Success
		result.Narration = final.PhaseData.LastOutcome.Narration
	}
	return result, nil
}

// ListSessions returns the session listing, most recently played first.
func (m *Manager) ListSessions(ctx context.Context) ([]Metadata, error) {
	return m.cfg.Metadata.ListSessions(ctx)
}

// CompleteSession marks a session finished and evicts it from the live
// cache. Its checkpoint and chronicle remain readable.
func (m *Manager) CompleteSession(ctx context.Context, sessionID string) error {
	if err := m.cfg.Metadata.CompleteSession(ctx, sessionID, m.cfg.Now().UTC()); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.live, sessionID)
	m.mu.Unlock()
	m.cfg.Telemetry.Emit(ctx, sessionID, 0, "session_completed", telemetry.SeverityInfo, "")
	return nil
}

func (m *Manager) buildTurnGraph(live *liveSession) (*graph.Graph, error) {
	g, err := stages.BuildTurnGraph(stages.TurnDeps{
		Gate: &turn.QualityGate{
			Resolver:  m.cfg.Resolver,
			Judge:     m.cfg.Judge,
			Telemetry: m.cfg.Telemetry,
		},
		Narrator:  m.cfg.Narrator,
		Director:  m.cfg.Director,
		Memory:    live.memory,
		Board:     live.board,
		Telemetry: m.cfg.Telemetry,
		NewID:     m.cfg.NewID,
		Now:       m.cfg.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("build turn graph: %w", err)
	}
	return g, nil
}

func (m *Manager) view(s state.SessionState, title string) View {
	view := View{
		SessionID:   s.SessionID,
		Title:       title,
		TurnNumber:  s.TurnNumber,
		Scene:       s.PhaseData.Narrative.CurrentScene,
		Suggestions: s.PhaseData.Suggestions,
		Players:     append([]state.Player(nil), s.PhaseData.Players...),
	}
	if s.PhaseData.LastOutcome != nil {
		view.Narration = s.PhaseData.LastOutcome.Narration
	} else {
		view.Narration = view.Scene
	}
	return view
}

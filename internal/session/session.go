// Package session is the Game Service façade: it owns every entity and
// subsystem of one running game, routes their events through the bus,
// publishes state to observers, and records the run into the replay log.
// All mutation flows through this package; the engine is single-threaded
// by discipline, so no locks are needed.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/emberforge/wayfarer/internal/action"
	"github.com/emberforge/wayfarer/internal/clock"
	"github.com/emberforge/wayfarer/internal/combat"
	"github.com/emberforge/wayfarer/internal/content"
	"github.com/emberforge/wayfarer/internal/decider"
	"github.com/emberforge/wayfarer/internal/dialogue"
	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/llm"
	"github.com/emberforge/wayfarer/internal/publisher"
	"github.com/emberforge/wayfarer/internal/quest"
	"github.com/emberforge/wayfarer/internal/replay"
	"github.com/emberforge/wayfarer/internal/resilience"
	"github.com/emberforge/wayfarer/internal/rng"
	"github.com/emberforge/wayfarer/internal/world"
	provider "github.com/emberforge/wayfarer/pkg/provider/llm"
)

// defaultCheckpointEvery is how many frames pass between replay
// checkpoints.
const defaultCheckpointEvery = 50

// startOfDayMinutes is the in-game time a fresh session begins at: 08:00
// on day one.
const startOfDayMinutes = 8 * 60

// Config selects how a session is built.
type Config struct {
	Seed       int64
	Theme      string
	PlayerName string
	Model      string

	// Backend is the LLM provider; nil runs fully offline on fallback
	// templates.
	Backend provider.Provider

	// Generator authors the initial world. Nil picks the LLM generator
	// when a backend exists, the builtin world otherwise.
	Generator content.Generator

	// ReplayCache answers LLM calls from a recorded replay instead of
	// the backend.
	ReplayCache *llm.ReplayCache

	// CheckpointEvery overrides the checkpoint interval in frames.
	CheckpointEvery int64

	// DisableGroupQuestDetection turns off LLM quest detection during
	// group conversations.
	DisableGroupQuestDetection bool
}

// Session owns one running game.
type Session struct {
	id    string
	seed  int64
	theme string
	model string

	world     *world.World
	clock     *clock.Clock
	rng       *rng.Source
	bus       *eventbus.Bus
	client    *llm.Client
	fallbacks *resilience.FallbackLog

	dialogue *dialogue.Manager
	tracker  *quest.Tracker
	combat   *combat.Engine
	executor *action.Executor
	decider  *decider.Decider

	publisher *publisher.Publisher[StateSnapshot]
	replay    *replay.Logger

	frame      int64
	paused     bool
	safePaused bool
	stopped    bool
	startedAt  time.Time

	conversationsStarted int
	checkpointEvery      int64

	// opCtx is the context of the operation currently executing, used by
	// bus handlers that need to issue LLM calls.
	opCtx context.Context
}

// New builds a session, generates its initial world, and wires all
// subsystems. The session is ready for [Session.Start].
func New(ctx context.Context, cfg Config) (*Session, error) {
	s, err := newShell(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.initializeWorld(ctx, cfg); err != nil {
		return nil, err
	}
	if err := s.replay.SetInitialState(s.GameState()); err != nil {
		return nil, err
	}
	return s, nil
}

// newShell wires a session's subsystems around an empty world.
func newShell(cfg Config) (*Session, error) {
	s := &Session{
		id:              uuid.NewString(),
		seed:            cfg.Seed,
		theme:           cfg.Theme,
		model:           cfg.Model,
		world:           world.NewWorld(),
		rng:             rng.New(cfg.Seed),
		bus:             eventbus.New(),
		publisher:       publisher.New[StateSnapshot](),
		startedAt:       time.Now(),
		checkpointEvery: cfg.CheckpointEvery,
		opCtx:           context.Background(),
	}
	if s.checkpointEvery <= 0 {
		s.checkpointEvery = defaultCheckpointEvery
	}

	s.clock = clock.New(startOfDayMinutes, clock.Clear, s.rng.Stream(rng.StreamWeather))

	s.fallbacks = resilience.NewFallbackLog(func(fb resilience.Fallback) {
		s.emit(eventbus.EventFallbackUsed, "", map[string]any{
			"subsystem": fb.Subsystem,
			"operation": fb.Operation,
			"reason":    fb.Reason,
		})
	})

	logger, err := replay.NewLogger(nil, cfg.Seed, cfg.Model, cfg.Theme)
	if err != nil {
		return nil, err
	}
	s.replay = logger

	opts := []llm.Option{llm.WithRecorder(s.replay.LogLLMCall)}
	if cfg.ReplayCache != nil {
		opts = append(opts, llm.WithReplayCache(cfg.ReplayCache))
	}
	s.client = llm.NewClient(cfg.Backend, cfg.Model, cfg.Seed, s.fallbacks, opts...)

	s.dialogue = dialogue.NewManager(s.world, s.clock, s.client, s.rng.Stream(rng.StreamDialogue), s.emit)
	s.tracker = quest.NewTracker(s.world, s.client, s.emit)
	if cfg.DisableGroupQuestDetection {
		s.tracker.AutoDetectInGroups = false
	}
	s.combat = combat.NewEngine(s.world, s.client, s.rng.Stream(rng.StreamCombat), s.emit)
	s.executor = action.NewExecutor(s.world, s.clock, s.client, s.dialogue, s.combat, s.rng.Stream(rng.StreamEncounter), s.emit)
	s.decider = decider.New(s.world, s.client, s.executor, s.rng.Stream(rng.StreamDecider))

	// Delivery order per event: quest tracking first, then broadcast and
	// replay logging, so observers see tracker-produced events in FIFO
	// order behind their causes.
	s.bus.SubscribeAll(func(ev eventbus.Event) {
		if ev.Type == eventbus.EventDialogueStarted {
			s.conversationsStarted++
		}
		s.tracker.HandleEvent(s.opCtx, ev)
	})
	s.bus.SubscribeAll(func(ev eventbus.Event) {
		s.publisher.Broadcast(ev)
		if err := s.replay.LogEvent(ev); err != nil {
			slog.Error("replay log rejected event", "type", ev.Type, "frame", ev.Frame, "error", err)
		}
	})
	return s, nil
}

// initializeWorld runs the content handshake and installs the generated
// record into the entity maps.
func (s *Session) initializeWorld(ctx context.Context, cfg Config) error {
	gen := cfg.Generator
	if gen == nil {
		// A replay cache counts as a backend here: the recorded
		// generate_world call must flow through the same path it was
		// recorded on.
		if cfg.Backend != nil || cfg.ReplayCache != nil {
			gen = content.NewLLMGenerator(s.client)
		} else {
			gen = content.Builtin{}
		}
	}
	generated, err := gen.GenerateWorld(ctx, content.Params{
		Seed: cfg.Seed, Theme: cfg.Theme, PlayerName: cfg.PlayerName,
	})
	if err != nil {
		return fmt.Errorf("session: world generation: %w", err)
	}
	return s.installWorld(generated)
}

func (s *Session) installWorld(generated *content.World) error {
	for _, loc := range generated.Locations {
		if err := s.world.AddLocation(loc); err != nil {
			return fmt.Errorf("session: install location: %w", err)
		}
	}
	if err := s.world.AddCharacter(generated.Protagonist); err != nil {
		return fmt.Errorf("session: install protagonist: %w", err)
	}
	for _, npc := range generated.NPCs {
		if err := s.world.AddCharacter(npc); err != nil {
			return fmt.Errorf("session: install npc: %w", err)
		}
	}
	if generated.MainQuest != nil {
		if err := s.world.AddQuest(generated.MainQuest); err != nil {
			return fmt.Errorf("session: install quest: %w", err)
		}
	}
	return s.world.CheckInvariants()
}

// ── Accessors ──

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Seed returns the master seed.
func (s *Session) Seed() int64 { return s.seed }

// Frame returns the current frame number.
func (s *Session) Frame() int64 { return s.frame }

// Paused reports whether the loop is paused, including safe-pause.
func (s *Session) Paused() bool { return s.paused || s.safePaused }

// SafePaused reports whether an invariant violation froze the session.
func (s *Session) SafePaused() bool { return s.safePaused }

// World exposes the entity maps for read-only queries.
func (s *Session) World() *world.World { return s.world }

// Fallbacks exposes the fallback log for inspection.
func (s *Session) Fallbacks() *resilience.FallbackLog { return s.fallbacks }

// History returns the action history log.
func (s *Session) History() []action.HistoryEntry { return s.executor.History() }

// ── Observers ──

// RegisterObserver adds an observer under the given id.
func (s *Session) RegisterObserver(id string, obs publisher.Observer[StateSnapshot]) {
	s.publisher.Register(id, obs)
}

// UnregisterObserver removes an observer.
func (s *Session) UnregisterObserver(id string) { s.publisher.Unregister(id) }

// EventHistory returns the publisher's bounded event history.
func (s *Session) EventHistory() []eventbus.Event { return s.publisher.History() }

// ── Lifecycle ──

// Start logs the initial checkpoint and announces the game. Call once,
// before the first frame.
func (s *Session) Start() {
	snap := s.GameState()
	if err := s.replay.LogCheckpoint(0, snap); err != nil {
		slog.Error("initial checkpoint failed", "error", err)
	}
	s.emit(eventbus.EventGameStarted, "", map[string]any{
		"sessionId": s.id,
		"seed":      s.seed,
		"theme":     s.theme,
		"model":     s.model,
	})
	s.finishOp("game_started", nil)
	slog.Info("session started", "id", s.id, "seed", s.seed, "theme", s.theme)
}

// Stop announces the end of the game. reason is "completed", "death",
// "stopped", or similar.
func (s *Session) Stop(reason string) {
	if s.stopped {
		return
	}
	s.stopped = true
	s.emit(eventbus.EventGameEnded, "", map[string]any{
		"reason": reason,
		"frames": s.frame,
	})
	s.finishOp("game_ended", map[string]any{"reason": reason})
	slog.Info("session stopped", "id", s.id, "reason", reason, "frames", s.frame)
}

// SaveReplay writes the replay log to path.
func (s *Session) SaveReplay(path string) error {
	if err := s.replay.LogCheckpoint(s.frame, s.GameState()); err != nil {
		return err
	}
	return s.replay.Save(path)
}

// Pause stops frame processing. Idempotent.
func (s *Session) Pause() {
	if s.paused {
		return
	}
	s.paused = true
	s.emit(eventbus.EventPauseToggled, "", map[string]any{"paused": true})
	s.finishOp("pause_toggled", nil)
}

// Resume restarts frame processing. A safe-paused session stays frozen
// until the invariant violation is resolved out of band.
func (s *Session) Resume() {
	if !s.paused || s.safePaused {
		return
	}
	s.paused = false
	s.emit(eventbus.EventPauseToggled, "", map[string]any{"paused": false})
	s.finishOp("pause_toggled", nil)
}

// ── Frame processing ──

// Step runs one autonomous frame: the decider picks an action, the
// executor applies it, and a frame_update goes out. Returns false when
// the session cannot continue (protagonist dead or safe-paused).
func (s *Session) Step(ctx context.Context) bool {
	if s.Paused() || s.stopped {
		return !s.safePaused && !s.stopped
	}
	s.opCtx = ctx
	defer func() { s.opCtx = context.Background() }()

	s.frame++
	recent := s.publisher.History()
	act := s.decider.Decide(ctx, s.frame, recent)

	res, err := s.executor.Execute(ctx, s.frame, act)
	if err != nil {
		slog.Warn("action rejected", "frame", s.frame, "action", act.Type, "error", err)
	} else {
		s.emitTimeChanged(res.Clock)
	}

	s.emit(eventbus.EventFrameUpdate, "", map[string]any{
		"frame":     s.frame,
		"action":    act.Type,
		"timeSpent": timeSpent(res),
	})
	s.finishOp("frame_update", map[string]any{"frame": s.frame})

	if s.frame%s.checkpointEvery == 0 {
		if err := s.replay.LogCheckpoint(s.frame, s.GameState()); err != nil {
			slog.Error("checkpoint failed", "frame", s.frame, "error", err)
		}
	}

	hero := s.world.Protagonist()
	if hero == nil || hero.Dead {
		return false
	}
	return !s.safePaused
}

func timeSpent(res *action.Result) int64 {
	if res == nil {
		return 0
	}
	return res.TimeSpent
}

// ── Façade operations ──

// Tick advances the game clock by delta minutes outside of an action,
// emitting time_changed as needed.
func (s *Session) Tick(delta int64) {
	change := s.clock.Advance(delta)
	s.emitTimeChanged(change)
	s.finishOp("time_changed", nil)
}

// ExecuteAction applies one externally-chosen action.
func (s *Session) ExecuteAction(ctx context.Context, act action.Action) (*action.Result, error) {
	s.opCtx = ctx
	defer func() { s.opCtx = context.Background() }()

	res, err := s.executor.Execute(ctx, s.frame, act)
	if err == nil {
		s.emitTimeChanged(res.Clock)
	}
	s.finishOp("action_executed", map[string]any{"actionType": act.Type})
	return res, err
}

// StartConversation opens a conversation between the given participants.
func (s *Session) StartConversation(ctx context.Context, participantIDs []string) (*world.Conversation, error) {
	s.opCtx = ctx
	defer func() { s.opCtx = context.Background() }()

	conv, err := s.dialogue.Start(s.frame, participantIDs)
	if err != nil {
		return nil, err
	}
	s.finishOp("dialogue_started", map[string]any{"conversationId": conv.ID})
	return conv, nil
}

// AddConversationTurn records a caller-authored turn.
func (s *Session) AddConversationTurn(convID, speakerID, text string) error {
	err := s.dialogue.AddTurn(s.frame, convID, speakerID, text)
	if err == nil {
		s.finishOp("dialogue_turn", map[string]any{"conversationId": convID})
	}
	return err
}

// GenerateConversationReply asks the engine to speak for a participant.
func (s *Session) GenerateConversationReply(ctx context.Context, convID, speakerID string) (string, error) {
	s.opCtx = ctx
	defer func() { s.opCtx = context.Background() }()

	text, err := s.dialogue.GenerateReply(ctx, s.frame, convID, speakerID)
	if err == nil {
		s.finishOp("dialogue_turn", map[string]any{"conversationId": convID})
	}
	return text, err
}

// EndConversation closes a conversation and applies its social effects.
func (s *Session) EndConversation(convID string) error {
	err := s.dialogue.End(s.frame, convID)
	if err == nil {
		s.finishOp("dialogue_ended", map[string]any{"conversationId": convID})
	}
	return err
}

// DiscoverLocation reveals a location to the protagonist.
func (s *Session) DiscoverLocation(locationID string) error {
	loc, err := s.world.Location(locationID)
	if err != nil {
		return err
	}
	if loc.Discovered {
		return nil
	}
	loc.Discovered = true
	s.emit(eventbus.EventLocationDiscovered, "", map[string]any{
		"locationId": loc.ID,
		"name":       loc.Name,
	})
	s.finishOp("location_discovered", map[string]any{"locationId": loc.ID})
	return nil
}

// ── Event plumbing ──

// emit is the EmitFunc handed to every subsystem. Events enqueue on the
// bus; finishOp drains them after the mutating operation completes.
func (s *Session) emit(eventType, actor string, payload map[string]any) {
	s.bus.Publish(eventbus.Event{
		Frame:   s.frame,
		Type:    eventType,
		Payload: payload,
		Actor:   actor,
	})
}

func (s *Session) emitTimeChanged(change clock.Change) {
	if change.Delta == 0 && !change.WeatherChanged {
		return
	}
	if !change.BandChanged && !change.DayChanged && !change.SeasonChanged && !change.WeatherChanged {
		return
	}
	s.emit(eventbus.EventTimeChanged, "", map[string]any{
		"gameTime":  s.clock.Minutes(),
		"timeOfDay": string(s.clock.TimeOfDay()),
		"day":       s.clock.Day(),
		"season":    string(s.clock.Season()),
		"weather":   string(s.clock.Weather()),
		"delta":     change.Delta,
	})
}

// finishOp drains the bus, verifies invariants, and publishes the
// post-operation snapshot to state observers.
func (s *Session) finishOp(eventType string, metadata map[string]any) {
	s.bus.Drain()

	if err := s.world.CheckInvariants(); err != nil && !s.safePaused {
		s.safePaused = true
		s.paused = true
		s.emit(eventbus.EventError, "", map[string]any{
			"kind":   "InvariantViolation",
			"detail": err.Error(),
		})
		s.emit(eventbus.EventPauseToggled, "", map[string]any{
			"paused": true,
			"reason": "invariant violation",
		})
		s.bus.Drain()
		slog.Error("invariant violation, safe-paused", "frame", s.frame, "error", err)
	}

	s.publisher.Publish(s.GameState(), eventType, metadata)
}

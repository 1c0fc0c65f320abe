// Package action executes the protagonist's chosen actions: travel,
// investigation, rest, trade, item handling, and conversation openers.
// Each action validates its input, costs in-game minutes, mutates
// entities, and publishes events. Failed actions apply nothing and do
// not advance the clock.
package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/emberforge/wayfarer/internal/clock"
	"github.com/emberforge/wayfarer/internal/combat"
	"github.com/emberforge/wayfarer/internal/dialogue"
	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/llm"
	"github.com/emberforge/wayfarer/internal/rng"
	"github.com/emberforge/wayfarer/internal/world"
)

// Subsystem tags this package's LLM calls and fallback records.
const Subsystem = "ActionExecutor"

// Action kinds accepted by the executor. The decider validates against
// [Kinds] before handing an action over.
const (
	TypeTravel            = "travel"
	TypeInvestigate       = "investigate"
	TypeSearch            = "search"
	TypeRest              = "rest"
	TypeTrade             = "trade"
	TypeUseItem           = "use_item"
	TypeEquip             = "equip"
	TypeUnequip           = "unequip"
	TypeConversation      = "conversation"
	TypeGroupConversation = "group_conversation"
)

// Kinds lists every supported action type in a stable order.
var Kinds = []string{
	TypeTravel, TypeInvestigate, TypeSearch, TypeRest, TypeTrade,
	TypeUseItem, TypeEquip, TypeUnequip, TypeConversation, TypeGroupConversation,
}

// User-input failures. These surface in action_executed metadata with
// success=false; the loop continues.
var (
	ErrUnknownAction  = errors.New("action: unknown action type")
	ErrTargetRequired = errors.New("action: target required")
	ErrTargetNotFound = errors.New("action: target not found")
	ErrNotDiscovered  = errors.New("action: destination not discovered")
	ErrAlreadyThere   = errors.New("action: already at destination")
	ErrNoMerchant     = errors.New("action: no merchant here")
	ErrNotConsumable  = errors.New("action: item is not consumable")
	ErrNoAudience     = errors.New("action: no one here to talk to")
)

// Action is the tagged value the decider (or an external caller) hands to
// the executor. Target is an entity id or a fuzzy display name.
type Action struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`

	// Minutes is the caller-provided duration for rest.
	Minutes int64 `json:"minutes,omitempty"`
}

// Result reports one executed action. TimeSpent is in-game minutes; the
// clock has already advanced by it on success.
type Result struct {
	Success   bool
	TimeSpent int64
	Message   string
	FailedFor string

	// Clock carries what the time advance changed, for the session to
	// turn into a time_changed event.
	Clock clock.Change
}

// HistoryEntry is one line of the action-history log kept for replay.
type HistoryEntry struct {
	Frame     int64  `json:"frame"`
	Action    Action `json:"action"`
	Success   bool   `json:"success"`
	TimeSpent int64  `json:"timeSpent"`
	Error     string `json:"error,omitempty"`
}

// EmitFunc publishes an event on behalf of the executor.
type EmitFunc func(eventType, actor string, payload map[string]any)

// outcome is a validated action waiting to be applied. Validation runs
// before action_executed is emitted; commit runs after, so side-effect
// events follow the action_executed envelope.
type outcome struct {
	cost    int64
	message string
	commit  func(ctx context.Context, frame int64) string
}

type handler func(ctx context.Context, frame int64, act Action) (*outcome, error)

// Executor dispatches actions through a table keyed by action type.
type Executor struct {
	world    *world.World
	clock    *clock.Clock
	client   *llm.Client
	dialogue *dialogue.Manager
	combat   *combat.Engine
	stream   *rng.Stream // encounter stream: travel ambushes, search draws
	emit     EmitFunc

	table   map[string]handler
	history []HistoryEntry
}

// NewExecutor wires the executor to the session's subsystems. client may
// be nil; narration then always uses templates.
func NewExecutor(w *world.World, c *clock.Clock, client *llm.Client, dlg *dialogue.Manager, cmb *combat.Engine, stream *rng.Stream, emit EmitFunc) *Executor {
	e := &Executor{
		world:    w,
		clock:    c,
		client:   client,
		dialogue: dlg,
		combat:   cmb,
		stream:   stream,
		emit:     emit,
	}
	e.table = map[string]handler{
		TypeTravel:            e.travel,
		TypeInvestigate:       e.investigate,
		TypeSearch:            e.investigate,
		TypeRest:              e.rest,
		TypeTrade:             e.trade,
		TypeUseItem:           e.useItem,
		TypeEquip:             e.equip,
		TypeUnequip:           e.unequip,
		TypeConversation:      e.converse,
		TypeGroupConversation: e.groupConverse,
	}
	return e
}

// History returns the action log in execution order.
func (e *Executor) History() []HistoryEntry { return e.history }

// Validate checks an action's preconditions without applying anything:
// the kind must be supported and the target must resolve. The decider
// runs this before committing to an LLM-chosen action.
func (e *Executor) Validate(act Action) error {
	switch act.Type {
	case TypeTravel:
		dest, err := e.resolveLocation(act.Target)
		if err != nil {
			return err
		}
		if dest.ID == e.world.Protagonist().CurrentLocation {
			return ErrAlreadyThere
		}
	case TypeConversation:
		if _, err := e.resolveNPC(act.Target); err != nil {
			return err
		}
	case TypeGroupConversation:
		hero := e.world.Protagonist()
		npcs := 0
		for _, c := range e.world.CharactersAt(hero.CurrentLocation) {
			if c.Role == world.RoleNPC && !c.Dead {
				npcs++
			}
		}
		if npcs < 2 {
			return ErrNoAudience
		}
	case TypeTrade:
		if _, _, err := e.findWare(e.world.Protagonist(), act.Target); err != nil {
			return err
		}
	case TypeUseItem, TypeEquip:
		if _, err := resolveCarried(e.world.Protagonist(), act.Target); err != nil {
			return err
		}
	case TypeInvestigate, TypeSearch, TypeRest, TypeUnequip:
		// No target preconditions.
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, act.Type)
	}
	return nil
}

// Execute validates and applies one action. On success the clock has
// advanced by the returned TimeSpent (at least one minute). On failure
// nothing is applied and the clock stands still; the error is one of the
// user-input kinds above.
func (e *Executor) Execute(ctx context.Context, frame int64, act Action) (*Result, error) {
	h, ok := e.table[act.Type]
	if !ok {
		return e.fail(frame, act, fmt.Errorf("%w: %q", ErrUnknownAction, act.Type))
	}
	out, err := h(ctx, frame, act)
	if err != nil {
		return e.fail(frame, act, err)
	}

	// Zero-cost actions still consume a minute.
	cost := out.cost
	if cost < 1 {
		cost = 1
	}

	hero := e.world.Protagonist()
	e.emit(eventbus.EventActionExecuted, hero.ID, map[string]any{
		"actionType": act.Type,
		"target":     act.Target,
		"success":    true,
		"timeSpent":  cost,
		"reason":     act.Reason,
	})
	change := e.clock.Advance(cost)

	msg := out.message
	if out.commit != nil {
		if m := out.commit(ctx, frame); m != "" {
			msg = m
		}
	}
	e.history = append(e.history, HistoryEntry{Frame: frame, Action: act, Success: true, TimeSpent: cost})
	return &Result{Success: true, TimeSpent: cost, Message: msg, Clock: change}, nil
}

func (e *Executor) fail(frame int64, act Action, err error) (*Result, error) {
	hero := e.world.Protagonist()
	actor := ""
	if hero != nil {
		actor = hero.ID
	}
	e.emit(eventbus.EventActionExecuted, actor, map[string]any{
		"actionType": act.Type,
		"target":     act.Target,
		"success":    false,
		"reason":     err.Error(),
	})
	e.history = append(e.history, HistoryEntry{Frame: frame, Action: act, Error: err.Error()})
	return &Result{FailedFor: err.Error()}, err
}

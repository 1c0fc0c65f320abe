// Package decider picks the protagonist's next action. Each iteration it
// assembles a decision context, asks the LLM for a strict
// {actionType, target, reason} choice, validates it against the
// executor's preconditions, and falls back to a small deterministic
// heuristic when the model cannot produce a usable action.
package decider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/emberforge/wayfarer/internal/action"
	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/llm"
	"github.com/emberforge/wayfarer/internal/rng"
	"github.com/emberforge/wayfarer/internal/world"
	provider "github.com/emberforge/wayfarer/pkg/provider/llm"
)

// Subsystem tags this package's LLM calls and fallback records.
const Subsystem = "AutonomousDecider"

// maxAttempts is how many LLM choices are tried per frame before the
// heuristic takes over.
const maxAttempts = 2

// recentEventWindow is how many trailing events go into the decision
// context.
const recentEventWindow = 8

const systemPrompt = `You decide the next action for an autonomous adventurer in a role-playing world.
Reply with a single JSON object and nothing else:
{"actionType": "<one of the allowed kinds>", "target": "<id or name, empty if none>", "reason": "<one sentence>"}`

// Decider turns game state into the next action.
type Decider struct {
	world    *world.World
	client   *llm.Client
	executor *action.Executor
	stream   *rng.Stream
}

// New wires a decider to the session's world, LLM client, and executor.
func New(w *world.World, client *llm.Client, exec *action.Executor, stream *rng.Stream) *Decider {
	return &Decider{world: w, client: client, executor: exec, stream: stream}
}

// choice is the strict parse target for the LLM reply.
type choice struct {
	ActionType string `json:"actionType"`
	Target     string `json:"target"`
	Reason     string `json:"reason"`
}

// Decide returns the next action. It never fails: after two invalid LLM
// choices (or with no LLM at all) it applies the heuristic "travel toward
// the next quest location, else talk to a nearby NPC, else rest".
func (d *Decider) Decide(ctx context.Context, frame int64, recent []eventbus.Event) action.Action {
	prompt := d.contextPrompt(recent)

	lastErr := ""
	for attempt := 0; attempt < maxAttempts; attempt++ {
		text := prompt
		if lastErr != "" {
			text += "\nYour previous choice was rejected: " + lastErr + ". Choose differently."
		}

		var ch choice
		res := d.client.Generate(ctx, llm.Request{
			Subsystem:    Subsystem,
			Operation:    "decide",
			Frame:        frame,
			SystemPrompt: systemPrompt,
			Messages:     []provider.Message{{Role: "user", Content: text}},
			Temperature:  0.7,
			MaxTokens:    150,
			Fallback:     func() string { return "" },
			Validate: func(out string) error {
				return json.Unmarshal([]byte(extractJSON(out)), &ch)
			},
			Context: map[string]any{"attempt": attempt + 1},
		})
		if res.UsedFallback {
			lastErr = "the reply was not valid JSON"
			continue
		}

		act := action.Action{Type: ch.ActionType, Target: ch.Target, Reason: ch.Reason}
		if err := d.executor.Validate(act); err != nil {
			lastErr = err.Error()
			continue
		}
		return act
	}
	return d.heuristic()
}

// heuristic is the deterministic last resort. It prefers making quest
// progress, then conversation, then rest.
func (d *Decider) heuristic() action.Action {
	hero := d.world.Protagonist()

	for _, q := range d.world.ActiveQuests() {
		next := q.Guidance.NextLocation
		if next == "" || next == hero.CurrentLocation {
			continue
		}
		act := action.Action{Type: action.TypeTravel, Target: next, Reason: "Heading toward " + q.Title + "."}
		if d.executor.Validate(act) == nil {
			return act
		}
	}

	var npcs []*world.Character
	for _, c := range d.world.CharactersAt(hero.CurrentLocation) {
		if c.Role == world.RoleNPC && !c.Dead {
			npcs = append(npcs, c)
		}
	}
	if len(npcs) > 0 {
		npc := rng.Pick(d.stream, npcs)
		return action.Action{Type: action.TypeConversation, Target: npc.ID, Reason: "Talking to " + npc.Name + "."}
	}

	return action.Action{Type: action.TypeRest, Minutes: 60, Reason: "Nothing pressing; resting."}
}

// contextPrompt renders the decision context: who the protagonist is,
// where they are and with whom, what just happened, and what they are
// trying to achieve.
func (d *Decider) contextPrompt(recent []eventbus.Event) string {
	hero := d.world.Protagonist()
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, level %d (HP %d/%d, stamina %d/%d, %d gold).\n",
		hero.Name, hero.Stats.Level, hero.Stats.HP, hero.Stats.MaxHP,
		hero.Stats.Stamina, hero.Stats.MaxStamina, hero.Inventory.Gold)

	if loc, err := d.world.Location(hero.CurrentLocation); err == nil {
		fmt.Fprintf(&b, "You are at %s.", loc.Name)
		if desc := loc.Description(); desc != "" {
			b.WriteString(" " + desc)
		}
		b.WriteString("\n")

		var here []string
		for _, c := range d.world.CharactersAt(loc.ID) {
			if c.ID != hero.ID && c.Role == world.RoleNPC && !c.Dead {
				here = append(here, fmt.Sprintf("%s (%s)", c.Name, c.ID))
			}
		}
		if len(here) > 0 {
			b.WriteString("People here: " + strings.Join(here, ", ") + ".\n")
		}
	}

	if quests := d.world.ActiveQuests(); len(quests) > 0 {
		b.WriteString("Active quests:\n")
		for _, q := range quests {
			fmt.Fprintf(&b, "- %s", q.Title)
			if obj := q.CurrentObjective(); obj != nil {
				fmt.Fprintf(&b, ": %s", obj.Description)
			}
			if q.Guidance.NextLocation != "" {
				fmt.Fprintf(&b, " (head to %s)", q.Guidance.NextLocation)
			}
			b.WriteString("\n")
		}
	}

	if n := len(recent); n > 0 {
		start := n - recentEventWindow
		if start < 0 {
			start = 0
		}
		var kinds []string
		for _, ev := range recent[start:] {
			kinds = append(kinds, ev.Type)
		}
		b.WriteString("Recent events: " + strings.Join(kinds, ", ") + ".\n")
	}

	b.WriteString("Allowed actions: " + strings.Join(action.Kinds, ", ") + ".")
	return b.String()
}

// extractJSON trims a reply to its outermost JSON object, tolerating
// models that wrap the object in prose or code fences.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

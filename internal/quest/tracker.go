// Package quest drives quest progression: it watches the engine's event
// stream for occurrences that complete objectives, keeps guidance pointing
// at the next step, grants rewards when a quest finishes, and runs the
// two-stage pipeline that detects brand-new quests inside dialogue.
package quest

import (
	"context"
	"strings"

	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/llm"
	"github.com/emberforge/wayfarer/internal/world"
)

// EmitFunc hands a quest occurrence to the session for publication.
type EmitFunc func(eventType, actor string, payload map[string]any)

// Tracker owns quest progression for one session.
type Tracker struct {
	world  *world.World
	client *llm.Client
	emit   EmitFunc

	// AutoDetectInGroups gates new-quest detection during group
	// conversations, where false positives are more common.
	AutoDetectInGroups bool

	detectCounter int
}

// NewTracker wires a quest tracker.
func NewTracker(w *world.World, client *llm.Client, emit EmitFunc) *Tracker {
	return &Tracker{
		world:              w,
		client:             client,
		emit:               emit,
		AutoDetectInGroups: true,
	}
}

// HandleEvent inspects one bus event for objective progress. The session
// subscribes the tracker to dialogue, location, combat, and loot events.
func (t *Tracker) HandleEvent(ctx context.Context, ev eventbus.Event) {
	switch ev.Type {
	case eventbus.EventDialogueStarted:
		t.onDialogueStarted(ev)
	case eventbus.EventDialogueTurn:
		t.onDialogueTurn(ctx, ev)
	case eventbus.EventLocationChanged, eventbus.EventLocationDiscovered:
		t.onLocationVisited(ev)
	case eventbus.EventCombatEnded:
		t.onCombatEnded(ev)
	case eventbus.EventLootObtained:
		t.onItemsAcquired(ev)
	}
}

func (t *Tracker) onDialogueStarted(ev eventbus.Event) {
	npcID, _ := ev.Payload["npcId"].(string)
	if npcID == "" {
		return
	}
	t.tryComplete(ev.Frame, func(o *world.Objective) bool {
		return o.Type == world.ObjectiveTalk && o.Target == npcID
	})
}

func (t *Tracker) onDialogueTurn(ctx context.Context, ev eventbus.Event) {
	text, _ := ev.Payload["text"].(string)
	if text == "" {
		return
	}
	lower := strings.ToLower(text)

	t.tryComplete(ev.Frame, func(o *world.Objective) bool {
		if o.Type != world.ObjectiveLearn {
			return false
		}
		for _, kw := range o.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return true
			}
		}
		return false
	})

	// Only the protagonist's own words can spawn a new quest.
	speaker, _ := ev.Payload["speakerId"].(string)
	if speaker == t.world.ProtagonistID {
		t.detectFromTurn(ctx, ev)
	}
}

func (t *Tracker) onLocationVisited(ev eventbus.Event) {
	locID, _ := ev.Payload["to"].(string)
	if locID == "" {
		locID, _ = ev.Payload["locationId"].(string)
	}
	if locID == "" {
		return
	}
	t.tryComplete(ev.Frame, func(o *world.Objective) bool {
		return o.Type == world.ObjectiveVisit && o.Target == locID
	})
}

func (t *Tracker) onCombatEnded(ev eventbus.Event) {
	outcome, _ := ev.Payload["outcome"].(string)
	if outcome != string(world.OutcomeVictory) {
		return
	}
	defeated := stringSlice(ev.Payload["defeatedTypes"])
	t.tryComplete(ev.Frame, func(o *world.Objective) bool {
		if o.Type != world.ObjectiveDefeat {
			return false
		}
		for _, enemyType := range defeated {
			if o.Target == enemyType {
				return true
			}
		}
		return false
	})
}

func (t *Tracker) onItemsAcquired(ev eventbus.Event) {
	items := stringSlice(ev.Payload["itemIds"])
	t.tryComplete(ev.Frame, func(o *world.Objective) bool {
		if o.Type != world.ObjectiveCollect && o.Type != world.ObjectiveDeliver {
			return false
		}
		for _, id := range items {
			if o.Target == id {
				return true
			}
		}
		return false
	})
}

// tryComplete scans each active quest's first incomplete objective and
// completes it when match accepts it. Later objectives stay untouched;
// quests advance strictly in order.
func (t *Tracker) tryComplete(frame int64, match func(*world.Objective) bool) {
	for _, q := range t.world.ActiveQuests() {
		obj := q.CurrentObjective()
		if obj == nil || !match(obj) {
			continue
		}
		t.completeObjective(frame, q, obj)
	}
}

func (t *Tracker) completeObjective(frame int64, q *world.Quest, obj *world.Objective) {
	obj.Completed = true
	t.emit(eventbus.EventQuestObjectiveCompleted, t.world.ProtagonistID, map[string]any{
		"questId":   q.ID,
		"objective": map[string]any{"id": obj.ID, "description": obj.Description, "type": string(obj.Type)},
	})

	q.RecomputeGuidance()
	t.emit(eventbus.EventQuestUpdated, t.world.ProtagonistID, map[string]any{
		"questId":     q.ID,
		"reason":      "guidance_updated",
		"currentStep": q.Guidance.CurrentStep,
	})

	if q.State == world.QuestCompleted {
		t.grantRewards(frame, q)
	}
}

// grantRewards mutates the protagonist with the quest's rewards and emits
// the resulting gold, loot, and level events before quest_completed.
func (t *Tracker) grantRewards(frame int64, q *world.Quest) {
	hero := t.world.Protagonist()
	if hero == nil {
		return
	}
	r := q.Rewards

	if r.Gold != 0 {
		newTotal := hero.AddGold(r.Gold)
		t.emit(eventbus.EventGoldChanged, hero.ID, map[string]any{
			"amount":   r.Gold,
			"newTotal": newTotal,
			"source":   "quest:" + q.ID,
		})
	}
	if len(r.Items) > 0 {
		var granted []string
		for _, it := range r.Items {
			if err := hero.AddItem(it); err == nil {
				granted = append(granted, it.ID)
			}
		}
		if len(granted) > 0 {
			t.emit(eventbus.EventLootObtained, hero.ID, map[string]any{
				"itemIds": granted,
				"source":  "quest:" + q.ID,
			})
		}
	}
	if r.Experience > 0 {
		levels := hero.AddExperience(r.Experience)
		if levels > 0 {
			t.emit(eventbus.EventLevelUp, hero.ID, map[string]any{
				"newLevel": hero.Stats.Level,
				"gained":   levels,
			})
		}
	}

	t.emit(eventbus.EventQuestCompleted, hero.ID, map[string]any{
		"questId":   q.ID,
		"title":     q.Title,
		"narrative": r.Narrative,
	})
}

func stringSlice(v any) []string {
	switch xs := v.(type) {
	case []string:
		return xs
	case []any:
		out := make([]string, 0, len(xs))
		for _, x := range xs {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

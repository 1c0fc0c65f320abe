package action

import (
	"context"
	"fmt"

	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/llm"
	"github.com/emberforge/wayfarer/internal/rng"
	"github.com/emberforge/wayfarer/internal/world"
	provider "github.com/emberforge/wayfarer/pkg/provider/llm"
)

// Investigation draws and chances. A search takes 15 to 30 minutes and may
// turn up an exit or an item lying around.
const (
	investigateMinMinutes = 15
	investigateMaxMinutes = 30
	exitDiscoveryChance   = 0.35
	itemFindChance        = 0.5
)

// restFullMinutes is the rest duration that restores HP and stamina in
// full; shorter rests restore proportionally.
const restFullMinutes = 480

func (e *Executor) investigate(ctx context.Context, frame int64, act Action) (*outcome, error) {
	hero := e.world.Protagonist()
	loc, err := e.world.Location(hero.CurrentLocation)
	if err != nil {
		return nil, err
	}

	cost := int64(e.stream.Range(investigateMinMinutes, investigateMaxMinutes))
	return &outcome{
		cost: cost,
		commit: func(ctx context.Context, frame int64) string {
			found := e.searchFinds(frame, hero, loc)
			return e.searchNarration(ctx, frame, loc, found)
		},
	}, nil
}

// searchFinds applies the material results of a search: a hidden exit may
// come to light and loose items may be picked up. Returns a short summary
// for the narration prompt; empty when nothing turned up.
func (e *Executor) searchFinds(frame int64, hero *world.Character, loc *world.Location) string {
	found := ""
	for _, destID := range loc.Exits {
		dest, err := e.world.Location(destID)
		if err != nil || dest.Discovered {
			continue
		}
		if !e.stream.Roll(exitDiscoveryChance) {
			continue
		}
		dest.Discovered = true
		e.emit(eventbus.EventLocationDiscovered, hero.ID, map[string]any{
			"locationId": dest.ID,
			"name":       dest.Name,
		})
		found = "a way to " + dest.Name
		break
	}

	if len(loc.Items) > 0 && e.stream.Roll(itemFindChance) {
		it := loc.Items[0]
		if err := hero.AddItem(it); err == nil {
			loc.TakeItem(it.ID)
			e.emit(eventbus.EventLootObtained, hero.ID, map[string]any{
				"itemIds": []string{it.ID},
				"source":  "search",
			})
			if found != "" {
				found += " and "
			}
			found += it.Name
		}
	}
	return found
}

func (e *Executor) searchNarration(ctx context.Context, frame int64, loc *world.Location, found string) string {
	fallback := "You search " + loc.Name + " and find little of note."
	if found != "" {
		fallback = "Searching " + loc.Name + ", you find " + found + "."
	}
	if e.client == nil {
		return fallback
	}
	prompt := "The adventurer searches " + loc.Name + "."
	if d := loc.Description(); d != "" {
		prompt += " " + d
	}
	if len(loc.PointsOfInterest) > 0 {
		prompt += " Notable here: " + rng.Pick(e.stream, loc.PointsOfInterest) + "."
	}
	if found != "" {
		prompt += " They find " + found + "."
	} else {
		prompt += " They find nothing of value."
	}
	res := e.client.Generate(ctx, llm.Request{
		Subsystem:    Subsystem,
		Operation:    "investigate",
		Frame:        frame,
		SystemPrompt: "You narrate an adventurer searching a place, in two short atmospheric sentences.",
		Messages:     []provider.Message{{Role: "user", Content: prompt}},
		Temperature:  0.9,
		MaxTokens:    100,
		Fallback:     func() string { return fallback },
		Context:      map[string]any{"locationId": loc.ID},
	})
	return res.Text
}

func (e *Executor) rest(ctx context.Context, frame int64, act Action) (*outcome, error) {
	hero := e.world.Protagonist()
	minutes := act.Minutes
	if minutes <= 0 {
		minutes = 60
	}
	return &outcome{
		cost: minutes,
		commit: func(ctx context.Context, frame int64) string {
			frac := float64(minutes) / restFullMinutes
			if frac > 1 {
				frac = 1
			}
			hero.Heal(int(float64(hero.Stats.MaxHP) * frac))
			hero.RestoreStamina(int(float64(hero.Stats.MaxStamina) * frac))
			hero.Stats.Magic += int(float64(hero.Stats.MaxMagic) * frac)
			if hero.Stats.Magic > hero.Stats.MaxMagic {
				hero.Stats.Magic = hero.Stats.MaxMagic
			}
			return fmt.Sprintf("Rested for %d minutes.", minutes)
		},
	}, nil
}

func (e *Executor) useItem(ctx context.Context, frame int64, act Action) (*outcome, error) {
	hero := e.world.Protagonist()
	it, err := resolveCarried(hero, act.Target)
	if err != nil {
		return nil, err
	}
	if it.Type != world.ItemConsumable {
		return nil, fmt.Errorf("%w: %s", ErrNotConsumable, it.Name)
	}
	return &outcome{
		cost: 1,
		commit: func(ctx context.Context, frame int64) string {
			hero.Heal(it.HealAmount)
			if _, err := hero.RemoveItem(it.ID); err != nil {
				return ""
			}
			return "Used " + it.Name + "."
		},
	}, nil
}

func (e *Executor) equip(ctx context.Context, frame int64, act Action) (*outcome, error) {
	hero := e.world.Protagonist()
	it, err := resolveCarried(hero, act.Target)
	if err != nil {
		return nil, err
	}
	if err := hero.Equip(it.ID); err != nil {
		return nil, err
	}
	return &outcome{cost: 1, message: "Equipped " + it.Name + "."}, nil
}

func (e *Executor) unequip(ctx context.Context, frame int64, act Action) (*outcome, error) {
	if act.Target == "" {
		return nil, ErrTargetRequired
	}
	hero := e.world.Protagonist()
	slot := world.EquipSlot(act.Target)
	if _, ok := hero.Equipment[slot]; !ok {
		return nil, fmt.Errorf("%w: nothing equipped in %q", ErrTargetNotFound, act.Target)
	}
	hero.Unequip(slot)
	return &outcome{cost: 1, message: "Unequipped " + act.Target + "."}, nil
}

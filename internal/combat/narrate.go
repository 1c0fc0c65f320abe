package combat

import (
	"context"
	"fmt"

	"github.com/emberforge/wayfarer/internal/llm"
	"github.com/emberforge/wayfarer/internal/world"
	provider "github.com/emberforge/wayfarer/pkg/provider/llm"
)

// narrate produces the one-line flavour text attached to a combat turn.
// Mechanics are already settled when this runs; a failed or absent LLM
// degrades to the template line and changes nothing about the outcome.
func (e *Engine) narrate(ctx context.Context, frame int64, enc *world.Encounter, actor *world.Character, payload map[string]any) string {
	template := templateLine(actor, payload)
	if e.client == nil {
		return template
	}
	res := e.client.Generate(ctx, llm.Request{
		Subsystem:   Subsystem,
		Operation:   "narration",
		Frame:       frame,
		SystemPrompt: "You narrate a fantasy combat turn in one short vivid sentence. No numbers, no rules talk.",
		Messages: []provider.Message{{
			Role:    "user",
			Content: mechanicsSummary(actor, payload),
		}},
		Temperature: 0.9,
		MaxTokens:   60,
		Fallback:    func() string { return template },
		Context: map[string]any{
			"encounterId": enc.ID,
			"round":       enc.Round,
		},
	})
	return res.Text
}

// mechanicsSummary renders the resolved turn for the narration prompt.
func mechanicsSummary(actor *world.Character, payload map[string]any) string {
	action, _ := payload["action"].(string)
	s := fmt.Sprintf("%s performs %s", actor.Name, action)
	if target, ok := payload["targetId"].(string); ok {
		s += " against " + target
	}
	if hit, ok := payload["hit"].(bool); ok {
		if !hit {
			s += " and misses"
		} else if dmg, ok := payload["damage"].(int); ok {
			s += fmt.Sprintf(" and deals %d damage", dmg)
			if payload["crit"] == true {
				s += " critically"
			}
			if payload["killed"] == true {
				s += ", a killing blow"
			}
		}
	}
	if success, ok := payload["success"].(bool); ok {
		if success {
			s += " and escapes"
		} else {
			s += " and fails to escape"
		}
	}
	return s + "."
}

// templateLine is the canned narration used offline.
func templateLine(actor *world.Character, payload map[string]any) string {
	action, _ := payload["action"].(string)
	switch action {
	case actAttack, actAbility:
		if payload["hit"] == true {
			if payload["killed"] == true {
				return fmt.Sprintf("%s lands a finishing blow.", actor.Name)
			}
			return fmt.Sprintf("%s strikes true.", actor.Name)
		}
		return fmt.Sprintf("%s swings and misses.", actor.Name)
	case actCloser:
		return fmt.Sprintf("%s presses forward.", actor.Name)
	case actFurther:
		return fmt.Sprintf("%s falls back.", actor.Name)
	case actDefend:
		return fmt.Sprintf("%s raises a guard.", actor.Name)
	case actFlee:
		if payload["success"] == true {
			return fmt.Sprintf("%s breaks away from the fight.", actor.Name)
		}
		return fmt.Sprintf("%s looks for an opening to run, but finds none.", actor.Name)
	default:
		return fmt.Sprintf("%s hesitates.", actor.Name)
	}
}

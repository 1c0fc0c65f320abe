package dialogue

import (
	"github.com/emberforge/wayfarer/internal/rng"
	"github.com/emberforge/wayfarer/internal/world"
)

// Canned lines used when the LLM cannot produce a reply. Keyed by
// (mood, role, greeting); unknown moods use the neutral entry. The lines
// are deliberately bland — they keep a session moving, nothing more.

type templateKey struct {
	mood     string
	role     world.Role
	greeting bool
}

var fallbackTemplates = map[templateKey][]string{
	{"", world.RoleNPC, true}: {
		"Well met, traveller.",
		"Good day to you.",
		"Ah, a new face around here.",
	},
	{"", world.RoleNPC, false}: {
		"Hm, is that so?",
		"I couldn't say more about that.",
		"Perhaps. Times are strange.",
	},
	{"worried", world.RoleNPC, true}: {
		"Oh... hello. Forgive me, I have much on my mind.",
		"You startled me. These are uneasy days.",
	},
	{"worried", world.RoleNPC, false}: {
		"I wish I could think of anything else right now.",
		"Sorry, my thoughts keep wandering back to my troubles.",
	},
	{"cheerful", world.RoleNPC, true}: {
		"Welcome, welcome! Lovely to see you.",
		"A fine day for a visit, friend!",
	},
	{"cheerful", world.RoleNPC, false}: {
		"Ha! That's one way to put it.",
		"Always something going on around here, isn't there?",
	},
	{"", world.RoleProtagonist, true}: {
		"Hello there.",
	},
	{"", world.RoleProtagonist, false}: {
		"I see.",
	},
}

// fallbackLine picks a canned line for the NPC. The draw comes from the
// dialogue stream so replays produce the same canned text.
func (m *Manager) fallbackLine(npc *world.Character, greeting bool) string {
	key := templateKey{mood: npc.Mood, role: npc.Role, greeting: greeting}
	lines, ok := fallbackTemplates[key]
	if !ok {
		lines = fallbackTemplates[templateKey{mood: "", role: world.RoleNPC, greeting: greeting}]
	}
	if len(lines) == 0 {
		return "..."
	}
	if m.stream == nil {
		return lines[0]
	}
	return rng.Pick(m.stream, lines)
}

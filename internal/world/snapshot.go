package world

// StateSnapshot is the deep, serialisable value handed to observers. It
// contains plain data only — no live engine references — so subscribers can
// keep it, hash it, or ship it over a wire.
type StateSnapshot struct {
	SessionID string `json:"sessionId"`
	Seed      int64  `json:"seed"`
	Frame     int64  `json:"frame"`

	Time       TimeSnapshot     `json:"time"`
	Characters CharacterSummary `json:"characters"`
	Location   LocationSummary  `json:"location"`
	Quests     QuestSummary     `json:"quests"`
	Dialogue   DialogueSummary  `json:"dialogue"`
	System     SystemSummary    `json:"system"`
}

// TimeSnapshot mirrors the game clock.
type TimeSnapshot struct {
	GameTime       int64  `json:"gameTime"`
	GameTimeString string `json:"gameTimeString"`
	TimeOfDay      string `json:"timeOfDay"`
	Day            int    `json:"day"`
	Season         string `json:"season"`
	Year           int    `json:"year"`
	Weather        string `json:"weather"`
}

// CharacterSummary carries copied character records.
type CharacterSummary struct {
	Protagonist *Character   `json:"protagonist"`
	NPCs        []*Character `json:"npcs"`
	AtLocation  []*Character `json:"atLocation"`
}

// LocationSummary carries the location graph as copies.
type LocationSummary struct {
	Current    *Location            `json:"current"`
	Discovered []string             `json:"discovered"`
	Visited    []string             `json:"visited"`
	Database   map[string]*Location `json:"database"`
}

// QuestSummary carries active quests and aggregate stats.
type QuestSummary struct {
	Active []*Quest   `json:"active"`
	Stats  QuestStats `json:"stats"`
}

// QuestStats aggregates quest counters.
type QuestStats struct {
	ActiveCount    int `json:"activeCount"`
	CompletedCount int `json:"completedCount"`
	ObjectivesDone int `json:"objectivesDone"`
}

// DialogueSummary carries conversation state.
type DialogueSummary struct {
	Stats               DialogueStats   `json:"stats"`
	ActiveConversations []*Conversation `json:"activeConversations"`
}

// DialogueStats aggregates dialogue counters.
type DialogueStats struct {
	TotalConversations int `json:"totalConversations"`
	TotalTurns         int `json:"totalTurns"`
}

// SystemSummary carries loop-level flags.
type SystemSummary struct {
	Paused           bool    `json:"paused"`
	AutoDetectQuests bool    `json:"autoDetectQuests"`
	RealTimePlayed   float64 `json:"realTimePlayed"`
}

// ── Deep copies ──────────────────────────────────────────────────────────────
// Snapshots and replay checkpoints copy records by value so observers can
// never reach live session state.

// Clone returns a deep copy of the character.
func (c *Character) Clone() *Character {
	cp := *c
	cp.Inventory.Items = cloneItems(c.Inventory.Items)
	cp.Equipment = cloneStringMap(c.Equipment)
	cp.Abilities = make([]*Ability, len(c.Abilities))
	for i, a := range c.Abilities {
		ac := *a
		cp.Abilities[i] = &ac
	}
	cp.Knowledge.Specialties = append([]string(nil), c.Knowledge.Specialties...)
	cp.Knowledge.Rumors = append([]string(nil), c.Knowledge.Rumors...)
	cp.Knowledge.Secrets = append([]string(nil), c.Knowledge.Secrets...)
	cp.Memories = append([]Memory(nil), c.Memories...)
	cp.Relationships = cloneIntMap(c.Relationships)
	cp.Extra = cloneAnyMap(c.Extra)
	return &cp
}

// Clone returns a deep copy of the location.
func (l *Location) Clone() *Location {
	cp := *l
	cp.Children = append([]string(nil), l.Children...)
	cp.Exits = cloneStrStrMap(l.Exits)
	cp.Environment.Hazards = append([]string(nil), l.Environment.Hazards...)
	cp.Fuel.CommonKnowledge = append([]string(nil), l.Fuel.CommonKnowledge...)
	cp.Fuel.Rumors = append([]Rumor(nil), l.Fuel.Rumors...)
	cp.Fuel.Specialists = append([]string(nil), l.Fuel.Specialists...)
	cp.Fuel.QuestHooks = append([]string(nil), l.Fuel.QuestHooks...)
	cp.Items = cloneItems(l.Items)
	cp.PointsOfInterest = append([]string(nil), l.PointsOfInterest...)
	cp.Presence = cloneBoolMap(l.Presence)
	cp.Extra = cloneAnyMap(l.Extra)
	return &cp
}

// Clone returns a deep copy of the quest.
func (q *Quest) Clone() *Quest {
	cp := *q
	cp.Objectives = make([]*Objective, len(q.Objectives))
	for i, o := range q.Objectives {
		oc := *o
		oc.Keywords = append([]string(nil), o.Keywords...)
		cp.Objectives[i] = &oc
	}
	cp.Guidance.Hints = append([]string(nil), q.Guidance.Hints...)
	cp.Rewards.Items = cloneItems(q.Rewards.Items)
	cp.Extra = cloneAnyMap(q.Extra)
	return &cp
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.History = append([]Turn(nil), c.History...)
	cp.TurnCounts = cloneIntMap(c.TurnCounts)
	cp.Topics = append([]string(nil), c.Topics...)
	return &cp
}

func cloneItems(items []*Item) []*Item {
	if items == nil {
		return nil
	}
	out := make([]*Item, len(items))
	for i, it := range items {
		ic := *it
		ic.Extra = cloneAnyMap(it.Extra)
		out[i] = &ic
	}
	return out
}

func cloneStringMap(m map[EquipSlot]string) map[EquipSlot]string {
	if m == nil {
		return nil
	}
	out := make(map[EquipSlot]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStrStrMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneBoolMap(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/emberforge/wayfarer/internal/world"
)

// StateSnapshot is the deep, serializable view of a session handed to
// observers and written into replay checkpoints. It contains plain data
// only; mutating a snapshot never touches the live session.
type StateSnapshot struct {
	SessionID string `json:"sessionId"`
	Seed      int64  `json:"seed"`
	Frame     int64  `json:"frame"`

	Time       TimeState       `json:"time"`
	Characters CharactersState `json:"characters"`
	Location   LocationState   `json:"location"`
	Quests     QuestsState     `json:"quests"`
	Dialogue   DialogueState   `json:"dialogue"`
	System     SystemState     `json:"system"`
}

// TimeState is the clock portion of a snapshot.
type TimeState struct {
	GameTime       int64  `json:"gameTime"`
	GameTimeString string `json:"gameTimeString"`
	TimeOfDay      string `json:"timeOfDay"`
	Day            int    `json:"day"`
	Season         string `json:"season"`
	Year           int    `json:"year"`
	Weather        string `json:"weather"`
}

// CharactersState carries copies of the cast.
type CharactersState struct {
	Protagonist *world.Character   `json:"protagonist"`
	NPCs        []*world.Character `json:"npcs"`

	// AtLocation lists the ids present at the protagonist's location.
	AtLocation []string `json:"atLocation"`
}

// LocationState carries the location graph.
type LocationState struct {
	Current    string                     `json:"current"`
	Discovered []string                   `json:"discovered"`
	Visited    []string                   `json:"visited"`
	Database   map[string]*world.Location `json:"database"`
}

// QuestStats summarizes quest progress.
type QuestStats struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
}

// QuestsState carries active quest copies plus counters.
type QuestsState struct {
	Active []*world.Quest `json:"active"`
	Stats  QuestStats     `json:"stats"`
}

// DialogueStats summarizes conversation activity.
type DialogueStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// DialogueState carries the live conversations.
type DialogueState struct {
	Stats               DialogueStats         `json:"stats"`
	ActiveConversations []*world.Conversation `json:"activeConversations"`
}

// SystemState carries engine flags.
type SystemState struct {
	Paused           bool    `json:"paused"`
	AutoDetectQuests bool    `json:"autoDetectQuests"`
	RealTimePlayed   float64 `json:"realTimePlayed"`
}

// GameState builds a snapshot of the current session state. Entities are
// deep-copied through JSON so observers can never reach live records.
func (s *Session) GameState() StateSnapshot {
	hero := s.world.Protagonist()

	snap := StateSnapshot{
		SessionID: s.id,
		Seed:      s.seed,
		Frame:     s.frame,
		Time: TimeState{
			GameTime:       s.clock.Minutes(),
			GameTimeString: s.clock.TimeString(),
			TimeOfDay:      string(s.clock.TimeOfDay()),
			Day:            s.clock.Day(),
			Season:         string(s.clock.Season()),
			Year:           s.clock.Year(),
			Weather:        string(s.clock.Weather()),
		},
		System: SystemState{
			Paused:           s.paused,
			AutoDetectQuests: s.tracker.AutoDetectInGroups,
			RealTimePlayed:   time.Since(s.startedAt).Seconds(),
		},
	}

	snap.Characters.Protagonist = deepCopy(hero)
	for _, c := range s.world.Characters() {
		if c.Role == world.RoleNPC {
			snap.Characters.NPCs = append(snap.Characters.NPCs, deepCopy(c))
		}
	}
	if hero != nil {
		snap.Location.Current = hero.CurrentLocation
		for _, c := range s.world.CharactersAt(hero.CurrentLocation) {
			snap.Characters.AtLocation = append(snap.Characters.AtLocation, c.ID)
		}
	}

	snap.Location.Database = make(map[string]*world.Location)
	for _, loc := range s.world.Locations() {
		snap.Location.Database[loc.ID] = deepCopy(loc)
		if loc.Discovered {
			snap.Location.Discovered = append(snap.Location.Discovered, loc.ID)
		}
		if loc.Visited {
			snap.Location.Visited = append(snap.Location.Visited, loc.ID)
		}
	}

	for _, q := range s.world.ActiveQuests() {
		snap.Quests.Active = append(snap.Quests.Active, deepCopy(q))
	}
	snap.Quests.Stats = QuestStats{
		Active:    len(snap.Quests.Active),
		Completed: len(s.world.CompletedQuests()),
	}

	active := s.world.ActiveConversations()
	for _, conv := range active {
		snap.Dialogue.ActiveConversations = append(snap.Dialogue.ActiveConversations, deepCopy(conv))
	}
	snap.Dialogue.Stats = DialogueStats{Total: s.conversationsStarted, Active: len(active)}

	return snap
}

// ExportState serializes the current snapshot for saving.
func (s *Session) ExportState() ([]byte, error) {
	data, err := json.MarshalIndent(s.GameState(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("session: export state: %w", err)
	}
	return data, nil
}

// deepCopy clones an entity record through JSON. Entity types carry only
// plain data, so the round trip is lossless.
func deepCopy[T any](v *T) *T {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil
	}
	return out
}

// Package world holds the entity model for a game session: characters,
// locations, items, quests, conversations, and combat encounters, plus the
// [World] registry that owns the id→record maps and enforces the structural
// invariants (presence sets, parent/child links, quest guidance).
//
// Records are plain data. Cross-references are ids only, so serialisation
// is cycle-free. All mutation flows through the session's Game Service;
// packages below it receive records by reference but never own them.
package world

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned when an id does not resolve to a record.
var ErrNotFound = errors.New("world: not found")

// World is the full entity registry of a session.
type World struct {
	ProtagonistID string

	characters map[string]*Character
	locations  map[string]*Location
	quests     map[string]*Quest

	conversations map[string]*Conversation
	encounters    map[string]*Encounter
}

// NewWorld creates an empty registry.
func NewWorld() *World {
	return &World{
		characters:    make(map[string]*Character),
		locations:     make(map[string]*Location),
		quests:        make(map[string]*Quest),
		conversations: make(map[string]*Conversation),
		encounters:    make(map[string]*Encounter),
	}
}

// ── Characters ───────────────────────────────────────────────────────────────

// AddCharacter registers c and inserts it into its location's presence set.
func (w *World) AddCharacter(c *Character) error {
	if c.ID == "" {
		return errors.New("world: character id must not be empty")
	}
	if _, ok := w.characters[c.ID]; ok {
		return fmt.Errorf("world: duplicate character id %q", c.ID)
	}
	w.characters[c.ID] = c
	if c.Role == RoleProtagonist {
		w.ProtagonistID = c.ID
	}
	if c.CurrentLocation != "" {
		loc, ok := w.locations[c.CurrentLocation]
		if !ok {
			return fmt.Errorf("world: character %q placed in unknown location %q", c.ID, c.CurrentLocation)
		}
		if loc.Presence == nil {
			loc.Presence = make(map[string]bool)
		}
		loc.Presence[c.ID] = true
	}
	return nil
}

// Character returns the character with the given id.
func (w *World) Character(id string) (*Character, error) {
	c, ok := w.characters[id]
	if !ok {
		return nil, fmt.Errorf("%w: character %q", ErrNotFound, id)
	}
	return c, nil
}

// Protagonist returns the protagonist record, or nil before bootstrap.
func (w *World) Protagonist() *Character {
	return w.characters[w.ProtagonistID]
}

// Characters returns all characters sorted by id for deterministic iteration.
func (w *World) Characters() []*Character {
	out := make([]*Character, 0, len(w.characters))
	for _, c := range w.characters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CharactersAt returns the living characters present at a location,
// sorted by id.
func (w *World) CharactersAt(locationID string) []*Character {
	loc, ok := w.locations[locationID]
	if !ok {
		return nil
	}
	out := make([]*Character, 0, len(loc.Presence))
	for id := range loc.Presence {
		if c, ok := w.characters[id]; ok && !c.Dead {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MoveCharacter relocates a character, keeping the presence sets
// consistent: the character appears in exactly one location's set.
func (w *World) MoveCharacter(charID, locationID string) error {
	c, ok := w.characters[charID]
	if !ok {
		return fmt.Errorf("%w: character %q", ErrNotFound, charID)
	}
	dst, ok := w.locations[locationID]
	if !ok {
		return fmt.Errorf("%w: location %q", ErrNotFound, locationID)
	}
	if src, ok := w.locations[c.CurrentLocation]; ok {
		delete(src.Presence, charID)
	}
	if dst.Presence == nil {
		dst.Presence = make(map[string]bool)
	}
	dst.Presence[charID] = true
	c.CurrentLocation = locationID
	c.Position = GridPos{}
	return nil
}

// ── Locations ────────────────────────────────────────────────────────────────

// AddLocation registers l and wires the parent/child link both ways.
func (w *World) AddLocation(l *Location) error {
	if l.ID == "" {
		return errors.New("world: location id must not be empty")
	}
	if _, ok := w.locations[l.ID]; ok {
		return fmt.Errorf("world: duplicate location id %q", l.ID)
	}
	if l.Detail == "" {
		l.Detail = DetailSparse
	}
	w.locations[l.ID] = l
	if l.ParentID != "" {
		if parent, ok := w.locations[l.ParentID]; ok {
			if !contains(parent.Children, l.ID) {
				parent.Children = append(parent.Children, l.ID)
			}
		}
	}
	for _, childID := range l.Children {
		if child, ok := w.locations[childID]; ok {
			child.ParentID = l.ID
		}
	}
	return nil
}

// Location returns the location with the given id.
func (w *World) Location(id string) (*Location, error) {
	l, ok := w.locations[id]
	if !ok {
		return nil, fmt.Errorf("%w: location %q", ErrNotFound, id)
	}
	return l, nil
}

// Locations returns all locations sorted by id.
func (w *World) Locations() []*Location {
	out := make([]*Location, 0, len(w.locations))
	for _, l := range w.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DiscoveredLocations returns the discovered locations sorted by id.
func (w *World) DiscoveredLocations() []*Location {
	var out []*Location
	for _, l := range w.Locations() {
		if l.Discovered {
			out = append(out, l)
		}
	}
	return out
}

// ── Quests ───────────────────────────────────────────────────────────────────

// AddQuest registers q, deriving guidance if unset.
func (w *World) AddQuest(q *Quest) error {
	if q.ID == "" {
		return errors.New("world: quest id must not be empty")
	}
	if _, ok := w.quests[q.ID]; ok {
		return fmt.Errorf("world: duplicate quest id %q", q.ID)
	}
	if q.State == "" {
		q.State = QuestActive
	}
	q.RecomputeGuidance()
	w.quests[q.ID] = q
	return nil
}

// Quest returns the quest with the given id.
func (w *World) Quest(id string) (*Quest, error) {
	q, ok := w.quests[id]
	if !ok {
		return nil, fmt.Errorf("%w: quest %q", ErrNotFound, id)
	}
	return q, nil
}

// ActiveQuests returns active quests sorted by id.
func (w *World) ActiveQuests() []*Quest {
	return w.questsInState(QuestActive)
}

// CompletedQuests returns completed quests sorted by id.
func (w *World) CompletedQuests() []*Quest {
	return w.questsInState(QuestCompleted)
}

func (w *World) questsInState(state QuestState) []*Quest {
	var out []*Quest
	for _, q := range w.quests {
		if q.State == state {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ── Conversations & encounters ───────────────────────────────────────────────

// AddConversation registers a conversation.
func (w *World) AddConversation(c *Conversation) { w.conversations[c.ID] = c }

// Conversation returns the conversation with the given id.
func (w *World) Conversation(id string) (*Conversation, error) {
	c, ok := w.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %q", ErrNotFound, id)
	}
	return c, nil
}

// ActiveConversations returns active conversations sorted by id.
func (w *World) ActiveConversations() []*Conversation {
	var out []*Conversation
	for _, c := range w.conversations {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddEncounter registers a combat encounter.
func (w *World) AddEncounter(e *Encounter) { w.encounters[e.ID] = e }

// Encounter returns the encounter with the given id.
func (w *World) Encounter(id string) (*Encounter, error) {
	e, ok := w.encounters[id]
	if !ok {
		return nil, fmt.Errorf("%w: encounter %q", ErrNotFound, id)
	}
	return e, nil
}

// ── Invariants ───────────────────────────────────────────────────────────────

// CheckInvariants verifies the structural invariants that hold at every
// frame boundary. A non-nil return is an InvariantViolation: the
// session logs an error event and safe-pauses.
func (w *World) CheckInvariants() error {
	var errs []error

	// Each character is present in exactly one location, the one it
	// points at.
	for id, c := range w.characters {
		loc, ok := w.locations[c.CurrentLocation]
		if !ok {
			errs = append(errs, fmt.Errorf("character %q: currentLocation %q not found", id, c.CurrentLocation))
			continue
		}
		if !loc.Presence[id] {
			errs = append(errs, fmt.Errorf("character %q missing from presence set of %q", id, loc.ID))
		}
		for _, other := range w.locations {
			if other.ID != loc.ID && other.Presence[id] {
				errs = append(errs, fmt.Errorf("character %q present in both %q and %q", id, loc.ID, other.ID))
			}
		}
	}

	// Parent/child links are mutual.
	for id, l := range w.locations {
		if l.ParentID != "" {
			parent, ok := w.locations[l.ParentID]
			if !ok {
				errs = append(errs, fmt.Errorf("location %q: parent %q not found", id, l.ParentID))
			} else if !contains(parent.Children, id) {
				errs = append(errs, fmt.Errorf("location %q missing from children of parent %q", id, l.ParentID))
			}
		}
		for _, childID := range l.Children {
			child, ok := w.locations[childID]
			if !ok {
				errs = append(errs, fmt.Errorf("location %q: child %q not found", id, childID))
			} else if child.ParentID != id {
				errs = append(errs, fmt.Errorf("location %q: child %q points at parent %q", id, childID, child.ParentID))
			}
		}
	}

	// Quest completion and guidance coherence.
	for id, q := range w.quests {
		allDone := len(q.Objectives) > 0
		for _, o := range q.Objectives {
			if !o.Completed {
				allDone = false
				break
			}
		}
		if allDone && q.State == QuestActive {
			errs = append(errs, fmt.Errorf("quest %q: all objectives complete but state=active", id))
		}
		if q.State == QuestCompleted && !allDone && len(q.Objectives) > 0 {
			errs = append(errs, fmt.Errorf("quest %q: state=completed with incomplete objectives", id))
		}
		if q.Guidance.CurrentStep != q.FirstIncomplete() {
			errs = append(errs, fmt.Errorf("quest %q: guidance.currentStep=%d, want %d", id, q.Guidance.CurrentStep, q.FirstIncomplete()))
		}
	}

	// Stat bounds.
	for _, c := range w.characters {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

package action

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/emberforge/wayfarer/internal/world"
)

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a name to
// count as a match when no exact id or name hit exists.
const fuzzyThreshold = 0.84

// bestMatch returns the index of the candidate name most similar to
// target, or -1 when nothing clears the threshold.
func bestMatch(target string, names []string) int {
	target = strings.ToLower(strings.TrimSpace(target))
	best, bestScore := -1, fuzzyThreshold
	for i, name := range names {
		s := matchr.JaroWinkler(target, strings.ToLower(name), false)
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// resolveLocation matches target against location ids, then exact names,
// then fuzzy names. Undiscovered locations are invisible to fuzzy
// matching; a direct id or name hit on one reports ErrNotDiscovered so
// the caller can distinguish "unknown" from "not yet found".
func (e *Executor) resolveLocation(target string) (*world.Location, error) {
	if target == "" {
		return nil, ErrTargetRequired
	}
	if loc, err := e.world.Location(target); err == nil {
		if !loc.Discovered {
			return nil, ErrNotDiscovered
		}
		return loc, nil
	}
	lower := strings.ToLower(target)
	for _, loc := range e.world.Locations() {
		if strings.ToLower(loc.Name) == lower {
			if !loc.Discovered {
				return nil, ErrNotDiscovered
			}
			return loc, nil
		}
	}

	discovered := e.world.DiscoveredLocations()
	names := make([]string, len(discovered))
	for i, loc := range discovered {
		names[i] = loc.Name
	}
	if i := bestMatch(target, names); i >= 0 {
		return discovered[i], nil
	}
	return nil, ErrTargetNotFound
}

// resolveNPC matches target against the living NPCs at the protagonist's
// location, by id first and then by fuzzy name.
func (e *Executor) resolveNPC(target string) (*world.Character, error) {
	if target == "" {
		return nil, ErrTargetRequired
	}
	hero := e.world.Protagonist()
	var here []*world.Character
	for _, c := range e.world.CharactersAt(hero.CurrentLocation) {
		if c.Role == world.RoleNPC && !c.Dead {
			here = append(here, c)
		}
	}
	for _, c := range here {
		if c.ID == target {
			return c, nil
		}
	}
	names := make([]string, len(here))
	for i, c := range here {
		names[i] = c.Name
	}
	if i := bestMatch(target, names); i >= 0 {
		return here[i], nil
	}
	return nil, ErrTargetNotFound
}

// resolveCarried matches target against the protagonist's inventory.
func resolveCarried(hero *world.Character, target string) (*world.Item, error) {
	if target == "" {
		return nil, ErrTargetRequired
	}
	if it := hero.Item(target); it != nil {
		return it, nil
	}
	names := make([]string, len(hero.Inventory.Items))
	for i, it := range hero.Inventory.Items {
		names[i] = it.Name
	}
	if i := bestMatch(target, names); i >= 0 {
		return hero.Inventory.Items[i], nil
	}
	return nil, ErrTargetNotFound
}

package combat

import (
	"fmt"

	"github.com/emberforge/wayfarer/internal/rng"
	"github.com/emberforge/wayfarer/internal/world"
)

// encounterChanceScale converts a location's danger rating into the
// per-arrival ambush probability. Danger 1.0 means roughly every other
// arrival is contested.
const encounterChanceScale = 0.5

// enemySpec is one row of the spawn tables.
type enemySpec struct {
	name     string
	template string
	weight   int

	hp      int
	attack  int
	defense int
	dex     int
}

// spawnTables keys candidate enemies by terrain. Weights skew towards the
// terrain's signature threat.
var spawnTables = map[world.Terrain][]enemySpec{
	world.TerrainForest: {
		{name: "Wolf", template: "wolf", weight: 5, hp: 25, attack: 7, defense: 1, dex: 14},
		{name: "Boar", template: "boar", weight: 3, hp: 35, attack: 6, defense: 3, dex: 8},
		{name: "Bandit", template: "bandit", weight: 2, hp: 30, attack: 8, defense: 2, dex: 10},
	},
	world.TerrainMountain: {
		{name: "Mountain Wolf", template: "wolf", weight: 4, hp: 28, attack: 8, defense: 2, dex: 13},
		{name: "Bandit Archer", template: "bandit_archer", weight: 3, hp: 26, attack: 7, defense: 1, dex: 12},
		{name: "Rock Troll", template: "troll", weight: 1, hp: 60, attack: 10, defense: 5, dex: 4},
	},
	world.TerrainSwamp: {
		{name: "Marsh Lurker", template: "lurker", weight: 4, hp: 30, attack: 7, defense: 2, dex: 9},
		{name: "Giant Leech", template: "leech", weight: 3, hp: 20, attack: 5, defense: 0, dex: 6},
	},
	world.TerrainFlat: {
		{name: "Highwayman", template: "bandit", weight: 4, hp: 30, attack: 8, defense: 2, dex: 10},
		{name: "Stray Dog", template: "wolf", weight: 2, hp: 18, attack: 5, defense: 0, dex: 12},
	},
}

// behaviourByTemplate assigns each template its combat behaviour.
var behaviourByTemplate = map[string]string{
	"wolf":          "aggressive",
	"boar":          "balanced",
	"bandit":        "cautious",
	"bandit_archer": "ranged",
	"troll":         "defensive",
	"lurker":        "aggressive",
	"leech":         "aggressive",
}

// RollEncounter decides whether arriving at loc triggers an ambush. The
// draw comes from the encounter stream so travel replays identically.
// Safe locations never spawn encounters.
func (e *Engine) RollEncounter(stream *rng.Stream, loc *world.Location) bool {
	if loc.Environment.Safe || loc.Environment.Danger <= 0 {
		return false
	}
	return stream.Roll(loc.Environment.Danger * encounterChanceScale)
}

// SpawnEnemies creates one to three enemies scaled to the protagonist's
// level, registers them at loc, and returns their ids.
func (e *Engine) SpawnEnemies(stream *rng.Stream, loc *world.Location, heroLevel int) ([]string, error) {
	table, ok := spawnTables[loc.Environment.Terrain]
	if !ok {
		table = spawnTables[world.TerrainFlat]
	}

	count := 1 + stream.IntN(3)
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		spec := rng.PickWeighted(stream, table, func(s enemySpec) int { return s.weight })
		e.counter++
		id := fmt.Sprintf("enemy-%d", e.counter)

		levelBonus := heroLevel - 1
		enemy := &world.Character{
			ID:   id,
			Name: spec.name,
			Role: world.RoleEnemy,
			Stats: world.Stats{
				Level:      maxInt(1, heroLevel),
				HP:         spec.hp + levelBonus*5,
				MaxHP:      spec.hp + levelBonus*5,
				Stamina:    20,
				MaxStamina: 20,
				Attack:     spec.attack + levelBonus,
				Defense:    spec.defense,
				Dexterity:  spec.dex,
			},
			EnemyTemplate:   spec.template,
			CurrentLocation: loc.ID,
		}
		if spec.template == "bandit_archer" {
			bow := &world.Item{
				ID: id + "-bow", Name: "Short Bow", Type: world.ItemWeapon,
				Slot: world.SlotWeapon, WeaponMultiplier: 1.1, Ranged: true,
			}
			enemy.Inventory.Items = append(enemy.Inventory.Items, bow)
			enemy.Equipment = map[world.EquipSlot]string{world.SlotWeapon: bow.ID}
		}
		if err := e.world.AddCharacter(enemy); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// rollLoot draws a drop for one defeated enemy. Most kills drop nothing.
func rollLoot(stream *rng.Stream, template string) *world.Item {
	if !stream.Roll(0.25) {
		return nil
	}
	switch template {
	case "wolf":
		return &world.Item{ID: fmt.Sprintf("wolf-pelt-%d", stream.IntN(100000)), Name: "Wolf Pelt", Type: world.ItemMisc, Weight: 1, BaseValue: 8, Rarity: world.RarityCommon}
	case "bandit", "bandit_archer":
		return &world.Item{ID: fmt.Sprintf("coin-pouch-%d", stream.IntN(100000)), Name: "Coin Pouch", Type: world.ItemMisc, Weight: 0.5, BaseValue: 12, Rarity: world.RarityCommon}
	case "troll":
		return &world.Item{ID: fmt.Sprintf("troll-hide-%d", stream.IntN(100000)), Name: "Troll Hide", Type: world.ItemMisc, Weight: 3, BaseValue: 40, Rarity: world.RarityUncommon}
	default:
		return &world.Item{ID: fmt.Sprintf("trinket-%d", stream.IntN(100000)), Name: "Odd Trinket", Type: world.ItemMisc, Weight: 0.2, BaseValue: 5, Rarity: world.RarityCommon}
	}
}

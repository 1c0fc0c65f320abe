package content

import (
	"context"

	"github.com/emberforge/wayfarer/internal/world"
)

// Builtin is the deterministic offline generator: a small farming town
// with a missing-grain mystery. Identical for every seed, so tests and
// LLM-less runs are fully reproducible.
type Builtin struct{}

var _ Generator = Builtin{}

// GenerateWorld builds the Milbrook starter world around the named
// protagonist.
func (Builtin) GenerateWorld(_ context.Context, p Params) (*World, error) {
	name := p.PlayerName
	if name == "" {
		name = "Aldric"
	}

	hero := &world.Character{
		ID:   "protagonist",
		Name: name,
		Role: world.RoleProtagonist,
		Personality: world.Personality{
			Openness: 70, Diligence: 55, Extraversion: 50,
			Agreeableness: 65, Courage: 60, Curiosity: 80,
		},
		Stats: world.Stats{
			Level: 1, HP: 100, MaxHP: 100, Stamina: 50, MaxStamina: 50,
			Magic: 10, MaxMagic: 10, Attack: 10, Defense: 2,
			Strength: 12, Dexterity: 12, Constitution: 12,
			Intelligence: 10, Wisdom: 10, Charisma: 11,
		},
		Inventory:       world.Inventory{Gold: 25, MaxSlots: 12, MaxWeight: 60},
		Abilities: []*world.Ability{
			{ID: "power-strike", Name: "Power Strike", StaminaCost: 8, Cooldown: 3, Effect: "damage", Range: world.BandMelee},
		},
		CurrentLocation: "town",
		Backstory:       "A wanderer who arrived in Milbrook looking for honest work.",
	}

	sword := &world.Item{
		ID: "worn-sword", Name: "Worn Sword", Type: world.ItemWeapon,
		Slot: world.SlotWeapon, Weight: 3, BaseValue: 10, Rarity: world.RarityCommon,
		WeaponMultiplier: 1.2,
	}
	hero.Inventory.Items = append(hero.Inventory.Items, sword)
	hero.Equipment = map[world.EquipSlot]string{world.SlotWeapon: sword.ID}

	gareth := &world.Character{
		ID: "gareth", Name: "Gareth", Role: world.RoleNPC,
		Personality: world.Personality{
			Openness: 40, Diligence: 80, Extraversion: 35,
			Agreeableness: 70, Courage: 45, Curiosity: 30,
		},
		Stats:     world.Stats{Level: 2, HP: 45, MaxHP: 45, Stamina: 30, MaxStamina: 30, Attack: 5, Defense: 1},
		Knowledge: world.Knowledge{
			Specialties: []string{"farming", "the old mill"},
			Rumors:      []string{"Wolves have been howling near the mill at night."},
		},
		CurrentLocation: "town",
		Mood:            "worried",
		Concern:         "the grain that vanished from his storehouse",
		Backstory:       "Milbrook's miller, third generation.",
	}

	mira := &world.Character{
		ID: "mira", Name: "Mira", Role: world.RoleNPC,
		Personality: world.Personality{
			Openness: 60, Diligence: 70, Extraversion: 75,
			Agreeableness: 55, Courage: 50, Curiosity: 60,
		},
		Stats:      world.Stats{Level: 2, HP: 40, MaxHP: 40, Stamina: 30, MaxStamina: 30, Attack: 4, Defense: 1},
		IsMerchant: true,
		Greed:      0.2,
		Inventory: world.Inventory{
			MaxSlots: 20, MaxWeight: 100, Gold: 200,
			Items: []*world.Item{
				{ID: "healing-potion", Name: "Healing Potion", Type: world.ItemConsumable, Weight: 0.5, BaseValue: 20, Rarity: world.RarityCommon, HealAmount: 30},
				{ID: "travel-rations", Name: "Travel Rations", Type: world.ItemConsumable, Weight: 1, BaseValue: 5, Rarity: world.RarityCommon, HealAmount: 5},
				{ID: "iron-sword", Name: "Iron Sword", Type: world.ItemWeapon, Slot: world.SlotWeapon, Weight: 4, BaseValue: 45, Rarity: world.RarityUncommon, WeaponMultiplier: 1.5},
			},
		},
		Knowledge:       world.Knowledge{Specialties: []string{"trade goods", "travellers' news"}},
		CurrentLocation: "town",
		Mood:            "cheerful",
		Backstory:       "A travelling trader who set up a stall on Milbrook's square.",
	}

	town := &world.Location{
		ID: "town", Name: "Milbrook", Type: "town", Scale: world.ScaleTown,
		DescriptionSparse: "A small farming town on the river Brook.",
		Coord:             world.Coord{X: 0, Y: 0},
		Environment:       world.Environment{Safe: true, Lit: true, Terrain: world.TerrainFlat},
		Fuel: world.NarrativeFuel{
			CommonKnowledge: []string{"The harvest was poor this year.", "The mill has stood for a hundred years."},
			Rumors: []world.Rumor{
				{Text: "Grain has been going missing from Gareth's storehouse.", Likelihood: 0.9},
				{Text: "Something large moves in the Dark Forest after dusk.", Likelihood: 0.5},
			},
			Specialists: []string{"gareth"},
			QuestHooks:  []string{"the missing grain"},
		},
		Discovered: true, Visited: true, Detail: world.DetailPartial,
		Exits:            map[string]string{"east": "mill", "north": "forest"},
		PointsOfInterest: []string{"the market square", "the old well", "the riverside granary"},
	}
	mill := &world.Location{
		ID: "mill", Name: "Old Mill", Type: "building", Scale: world.ScaleBuilding,
		DescriptionSparse: "A creaking water mill on the edge of town.",
		Coord:             world.Coord{X: 2, Y: 1},
		Environment:       world.Environment{Terrain: world.TerrainFlat, Danger: 0.2},
		Discovered:        true, Detail: world.DetailSparse,
		Exits:            map[string]string{"west": "town"},
		PointsOfInterest: []string{"the grinding stones", "a trail of spilled grain", "claw marks on the door"},
		Items: []*world.Item{
			{ID: "torn-sack", Name: "Torn Grain Sack", Type: world.ItemQuestItem, Weight: 0.5, BaseValue: 1, Rarity: world.RarityCommon},
		},
	}
	forest := &world.Location{
		ID: "forest", Name: "Dark Forest", Type: "wilderness", Scale: world.ScaleArea,
		DescriptionSparse: "Old growth pressing close; little light reaches the ground.",
		Coord:             world.Coord{X: 1, Y: 3},
		Environment:       world.Environment{Terrain: world.TerrainForest, Danger: 0.6},
		Discovered:        true, Detail: world.DetailSparse,
		Exits:            map[string]string{"south": "town", "up": "pass"},
		PointsOfInterest: []string{"a game trail", "a hollow oak", "wolf tracks in the mud"},
	}
	pass := &world.Location{
		ID: "pass", Name: "Windward Pass", Type: "wilderness", Scale: world.ScaleArea,
		DescriptionSparse: "A narrow climb between grey crags.",
		Coord:             world.Coord{X: 1, Y: 5, Z: 2},
		Environment:       world.Environment{Terrain: world.TerrainMountain, Danger: 0.7},
		Discovered:        false, Detail: world.DetailSparse,
		Exits:             map[string]string{"down": "forest"},
	}

	quest := &world.Quest{
		ID:          "main-missing-grain",
		Title:       "The Missing Grain",
		Description: "Gareth's storehouse has been emptied night after night. Find out what is taking the grain.",
		GiverID:     "gareth",
		Type:        "mystery",
		Objectives: []*world.Objective{
			{ID: "o-talk-gareth", Description: "Talk to Gareth about the missing grain", Type: world.ObjectiveTalk, Target: "gareth"},
			{ID: "o-search-mill", Description: "Search the old mill for signs of the thief", Type: world.ObjectiveVisit, Target: "mill"},
			{ID: "o-cull-wolves", Description: "Deal with the creatures raiding the grain", Type: world.ObjectiveDefeat, Target: "wolf"},
		},
		State:   world.QuestActive,
		Rewards: world.Rewards{Gold: 100, Experience: 200, Narrative: "Milbrook's granary is safe again."},
		Guidance: world.Guidance{
			Hints: []string{
				"Gareth at the market square looks troubled.",
				"The mill is a short walk east of town.",
				"Wolves den in the Dark Forest.",
			},
		},
	}
	quest.RecomputeGuidance()

	return &World{
		StartingTown: town.ID,
		Protagonist:  hero,
		NPCs:         []*world.Character{gareth, mira},
		Locations:    []*world.Location{town, mill, forest, pass},
		MainQuest:    quest,
		TownRumors: []string{
			"Grain has been going missing from Gareth's storehouse.",
			"Something large moves in the Dark Forest after dusk.",
		},
	}, nil
}

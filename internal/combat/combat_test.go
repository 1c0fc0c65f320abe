package combat

import (
	"context"
	"testing"

	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/rng"
	"github.com/emberforge/wayfarer/internal/world"
)

type capturedEvent struct {
	Type    string
	Actor   string
	Payload map[string]any
}

type harness struct {
	world  *world.World
	engine *Engine
	events []capturedEvent
}

// newHarness builds a world with a forest arena. The engine runs without
// an LLM client, so narration always comes from the templates.
func newHarness(t *testing.T, seed int64) *harness {
	t.Helper()
	w := world.NewWorld()
	forest := &world.Location{
		ID: "forest", Name: "Dark Forest", Scale: world.ScaleArea, Discovered: true,
		Environment: world.Environment{Danger: 0.6, Terrain: world.TerrainForest},
	}
	if err := w.AddLocation(forest); err != nil {
		t.Fatal(err)
	}
	hero := &world.Character{
		ID: "hero", Name: "Aldric", Role: world.RoleProtagonist,
		Stats: world.Stats{
			Level: 2, HP: 100, MaxHP: 100, Stamina: 50, MaxStamina: 50,
			Attack: 12, Defense: 3, Dexterity: 12,
		},
		Inventory:       world.Inventory{MaxSlots: 10, MaxWeight: 50},
		CurrentLocation: "forest",
	}
	if err := w.AddCharacter(hero); err != nil {
		t.Fatal(err)
	}

	h := &harness{world: w}
	src := rng.New(seed)
	h.engine = NewEngine(w, nil, src.Stream(rng.StreamCombat), func(eventType, actor string, payload map[string]any) {
		h.events = append(h.events, capturedEvent{Type: eventType, Actor: actor, Payload: payload})
	})
	return h
}

func (h *harness) addEnemy(t *testing.T, id string, hp, attack, defense, dex int, template string) {
	t.Helper()
	enemy := &world.Character{
		ID: id, Name: id, Role: world.RoleEnemy,
		Stats: world.Stats{
			Level: 1, HP: hp, MaxHP: hp, Stamina: 20, MaxStamina: 20,
			Attack: attack, Defense: defense, Dexterity: dex,
		},
		EnemyTemplate:   template,
		CurrentLocation: "forest",
	}
	if err := h.world.AddCharacter(enemy); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) countEvents(eventType string) int {
	n := 0
	for _, e := range h.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (h *harness) lastEvent(t *testing.T, eventType string) capturedEvent {
	t.Helper()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Type == eventType {
			return h.events[i]
		}
	}
	t.Fatalf("no %s event recorded", eventType)
	return capturedEvent{}
}

func TestStart_OrdersInitiativeByDexterity(t *testing.T) {
	h := newHarness(t, 1)
	h.addEnemy(t, "slug", 20, 5, 0, 1, "wolf")
	h.addEnemy(t, "cat", 20, 5, 0, 30, "wolf")

	enc, err := h.engine.Start(1, "hero", []string{"slug", "cat"}, "forest")
	if err != nil {
		t.Fatal(err)
	}
	if enc.TurnOrder[0] != "cat" {
		t.Fatalf("TurnOrder = %v, want cat first (dex 30)", enc.TurnOrder)
	}
	if enc.TurnOrder[2] != "slug" {
		t.Fatalf("TurnOrder = %v, want slug last (dex 1)", enc.TurnOrder)
	}
	if h.countEvents(eventbus.EventCombatStarted) != 1 {
		t.Fatal("combat_started not emitted")
	}
	for _, id := range []string{"slug", "cat"} {
		band := enc.Positions[id]
		if band != world.BandClose && band != world.BandMedium {
			t.Fatalf("enemy %s opens at %q, want close or medium", id, band)
		}
	}
}

func TestRun_VictoryGrantsRewards(t *testing.T) {
	h := newHarness(t, 7)
	h.addEnemy(t, "wolf-1", 15, 4, 0, 8, "wolf")
	hero, _ := h.world.Character("hero")
	startGold := hero.Inventory.Gold

	enc, err := h.engine.Start(1, "hero", []string{"wolf-1"}, "forest")
	if err != nil {
		t.Fatal(err)
	}
	outcome, err := h.engine.Run(context.Background(), 1, enc)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != world.OutcomeVictory {
		t.Fatalf("outcome = %q, want victory", outcome)
	}
	if !enc.Resolved {
		t.Fatal("encounter not marked resolved")
	}

	ended := h.lastEvent(t, eventbus.EventCombatEnded)
	if ended.Payload["outcome"] != "victory" {
		t.Fatalf("combat_ended outcome = %v", ended.Payload["outcome"])
	}
	if enc.Reward.Experience <= 0 {
		t.Fatal("victory granted no experience")
	}
	if hero.Inventory.Gold <= startGold {
		t.Fatal("victory granted no gold")
	}
	if h.countEvents(eventbus.EventCharacterDied) != 1 {
		t.Fatal("dead wolf did not emit character_died")
	}
}

func TestRun_TimeoutWithBothSidesAlive(t *testing.T) {
	h := newHarness(t, 3)
	// A turtle fight: neither side can meaningfully hurt the other, and the
	// enemy turtles up forever.
	h.addEnemy(t, "turtle", 500, 1, 50, 5, "troll")
	hero, _ := h.world.Character("hero")
	hero.Stats.HP = 1000
	hero.Stats.MaxHP = 1000
	hero.Stats.Attack = 1

	enc, err := h.engine.Start(1, "hero", []string{"turtle"}, "forest")
	if err != nil {
		t.Fatal(err)
	}
	outcome, err := h.engine.Run(context.Background(), 1, enc)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != world.OutcomeTimeout {
		t.Fatalf("outcome = %q, want timeout", outcome)
	}
	if enc.Round != enc.MaxRounds {
		t.Fatalf("Round = %d, want MaxRounds %d", enc.Round, enc.MaxRounds)
	}

	ended := h.lastEvent(t, eventbus.EventCombatEnded)
	if ended.Payload["experience"] != 0 || ended.Payload["gold"] != 0 {
		t.Fatalf("timeout paid out rewards: %v", ended.Payload)
	}
	turtle, _ := h.world.Character("turtle")
	if hero.Dead || turtle.Dead {
		t.Fatal("timeout requires both sides alive")
	}
}

func TestRun_DefeatWhenProtagonistDies(t *testing.T) {
	h := newHarness(t, 11)
	hero, _ := h.world.Character("hero")
	hero.Stats.HP = 5
	hero.Stats.MaxHP = 5
	hero.Stats.Attack = 1
	hero.Stats.Dexterity = 1
	h.addEnemy(t, "ogre", 400, 50, 20, 18, "wolf")

	enc, err := h.engine.Start(1, "hero", []string{"ogre"}, "forest")
	if err != nil {
		t.Fatal(err)
	}
	outcome, err := h.engine.Run(context.Background(), 1, enc)
	if err != nil {
		t.Fatal(err)
	}
	// A hero at death's door tries to flee; with dex 1 that mostly fails,
	// but some seeds let them slip away.
	if outcome != world.OutcomeDefeat && outcome != world.OutcomeFlee {
		t.Fatalf("outcome = %q, want defeat or flee", outcome)
	}
	if outcome == world.OutcomeDefeat && !hero.Dead {
		t.Fatal("defeat without dead protagonist")
	}
}

func TestRun_EmitsCombatTurnPerAction(t *testing.T) {
	h := newHarness(t, 7)
	h.addEnemy(t, "wolf-1", 15, 4, 0, 8, "wolf")

	enc, _ := h.engine.Start(1, "hero", []string{"wolf-1"}, "forest")
	if _, err := h.engine.Run(context.Background(), 1, enc); err != nil {
		t.Fatal(err)
	}
	turns := h.countEvents(eventbus.EventCombatTurn)
	if turns == 0 {
		t.Fatal("no combat_turn events")
	}
	if len(enc.Log) != turns {
		t.Fatalf("log lines = %d, combat_turn events = %d, want equal", len(enc.Log), turns)
	}
	for _, e := range h.events {
		if e.Type != eventbus.EventCombatTurn {
			continue
		}
		if e.Payload["narration"] == "" {
			t.Fatal("combat_turn without narration")
		}
		if e.Payload["action"] == "" {
			t.Fatal("combat_turn without action")
		}
	}
}

func TestRun_IsDeterministicPerSeed(t *testing.T) {
	run := func() []string {
		h := newHarness(t, 99999)
		h.addEnemy(t, "wolf-1", 25, 7, 1, 14, "wolf")
		h.addEnemy(t, "boar-1", 35, 6, 3, 8, "boar")
		enc, err := h.engine.Start(1, "hero", []string{"wolf-1", "boar-1"}, "forest")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := h.engine.Run(context.Background(), 1, enc); err != nil {
			t.Fatal(err)
		}
		types := make([]string, len(h.events))
		for i, e := range h.events {
			types[i] = e.Type
		}
		return types
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("event counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("event %d differs: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestRun_MedianLengthInTunedBand(t *testing.T) {
	// Evenly matched fights across many seeds should mostly settle between
	// 2 and 15 rounds; the tuning target is a 6–12 round median.
	var rounds []int
	for seed := int64(1); seed <= 20; seed++ {
		h := newHarness(t, seed)
		h.addEnemy(t, "wolf-1", 40, 8, 2, 12, "wolf")
		enc, err := h.engine.Start(1, "hero", []string{"wolf-1"}, "forest")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := h.engine.Run(context.Background(), 1, enc); err != nil {
			t.Fatal(err)
		}
		rounds = append(rounds, enc.Round)
	}
	timeouts := 0
	for _, r := range rounds {
		if r >= defaultMaxRounds {
			timeouts++
		}
	}
	if timeouts > len(rounds)/2 {
		t.Fatalf("%d/%d fights timed out; damage math is under-tuned: %v", timeouts, len(rounds), rounds)
	}
}

func TestSpawnEnemies_RegistersAtLocation(t *testing.T) {
	h := newHarness(t, 5)
	loc, _ := h.world.Location("forest")
	src := rng.New(5)

	ids, err := h.engine.SpawnEnemies(src.Stream(rng.StreamEncounter), loc, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) < 1 || len(ids) > 3 {
		t.Fatalf("spawned %d enemies, want 1–3", len(ids))
	}
	for _, id := range ids {
		c, err := h.world.Character(id)
		if err != nil {
			t.Fatal(err)
		}
		if c.Role != world.RoleEnemy {
			t.Fatalf("spawned %s with role %q", id, c.Role)
		}
		if !loc.Presence[id] {
			t.Fatalf("enemy %s missing from location presence", id)
		}
		if c.EnemyTemplate == "" {
			t.Fatalf("enemy %s has no species template", id)
		}
	}
}

func TestSpawnEnemies_StoresSpeciesTemplates(t *testing.T) {
	h := newHarness(t, 21)
	loc, _ := h.world.Location("forest")
	src := rng.New(21)
	stream := src.Stream(rng.StreamEncounter)

	forestSpecies := map[string]bool{"wolf": true, "boar": true, "bandit": true}
	for i := 0; i < 10; i++ {
		ids, err := h.engine.SpawnEnemies(stream, loc, 2)
		if err != nil {
			t.Fatal(err)
		}
		for _, id := range ids {
			c, err := h.world.Character(id)
			if err != nil {
				t.Fatal(err)
			}
			if !forestSpecies[c.EnemyTemplate] {
				t.Fatalf("enemy %s (%s): EnemyTemplate = %q, want a forest species (wolf, boar, or bandit)",
					id, c.Name, c.EnemyTemplate)
			}
			if _, ok := behaviourByTemplate[c.EnemyTemplate]; !ok {
				t.Fatalf("enemy %s: species %q has no behaviour mapping", id, c.EnemyTemplate)
			}
		}
	}
}

func TestRun_SpawnedEnemiesCountAsSpeciesDefeats(t *testing.T) {
	h := newHarness(t, 13)
	hero, _ := h.world.Character("hero")
	// Overwhelming stats: every swing lands and kills, so victory is
	// certain well inside the round cap.
	hero.Stats.Attack = 500
	hero.Stats.Dexterity = 40
	hero.Stats.HP = 1000
	hero.Stats.MaxHP = 1000

	loc, _ := h.world.Location("forest")
	src := rng.New(13)
	ids, err := h.engine.SpawnEnemies(src.Stream(rng.StreamEncounter), loc, 2)
	if err != nil {
		t.Fatal(err)
	}

	enc, err := h.engine.Start(1, "hero", ids, "forest")
	if err != nil {
		t.Fatal(err)
	}
	outcome, err := h.engine.Run(context.Background(), 1, enc)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != world.OutcomeVictory {
		t.Fatalf("outcome = %q, want victory", outcome)
	}

	ended := h.lastEvent(t, eventbus.EventCombatEnded)
	defeated, ok := ended.Payload["defeatedTypes"].([]string)
	if !ok || len(defeated) == 0 {
		t.Fatalf("defeatedTypes = %v, want spawned species", ended.Payload["defeatedTypes"])
	}
	forestSpecies := map[string]bool{"wolf": true, "boar": true, "bandit": true}
	for _, tpl := range defeated {
		if !forestSpecies[tpl] {
			t.Fatalf("defeated type %q, want a forest species usable by defeat objectives", tpl)
		}
	}
}

func TestRollLoot_DropsSpeciesLoot(t *testing.T) {
	src := rng.New(17)
	stream := src.Stream(rng.StreamCombat)

	wantByTemplate := map[string]string{
		"wolf":          "Wolf Pelt",
		"bandit":        "Coin Pouch",
		"bandit_archer": "Coin Pouch",
		"troll":         "Troll Hide",
		"lurker":        "Odd Trinket",
	}
	for template, want := range wantByTemplate {
		found := false
		for i := 0; i < 200; i++ {
			it := rollLoot(stream, template)
			if it == nil {
				continue
			}
			if it.Name != want {
				t.Fatalf("rollLoot(%q) = %q, want %q", template, it.Name, want)
			}
			found = true
			break
		}
		if !found {
			t.Fatalf("rollLoot(%q) never dropped in 200 draws", template)
		}
	}
}

func TestRollEncounter_SafeLocationNeverTriggers(t *testing.T) {
	h := newHarness(t, 5)
	town := &world.Location{
		ID: "town", Name: "Milbrook", Scale: world.ScaleTown, Discovered: true,
		Environment: world.Environment{Safe: true, Danger: 1.0},
	}
	if err := h.world.AddLocation(town); err != nil {
		t.Fatal(err)
	}
	src := rng.New(5)
	stream := src.Stream(rng.StreamEncounter)
	for i := 0; i < 50; i++ {
		if h.engine.RollEncounter(stream, town) {
			t.Fatal("encounter triggered at a safe location")
		}
	}
}

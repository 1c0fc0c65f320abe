// Package combat generates and resolves turn-based encounters. Mechanics
// always compute first from the deterministic combat stream; LLM narration
// is attached to each turn afterwards and never gates resolution.
package combat

import (
	"context"
	"fmt"
	"sort"

	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/llm"
	"github.com/emberforge/wayfarer/internal/rng"
	"github.com/emberforge/wayfarer/internal/world"
)

// Subsystem tags combat LLM calls in fallback entries and the replay log.
const Subsystem = "CombatSubsystem"

// Tuning. Median resolution lands at 6–12 rounds with these numbers for
// evenly matched level-1 to level-3 fights; raise baseHitChance before
// touching the damage formula if combats start timing out.
const (
	defaultMaxRounds = 20
	baseHitChance    = 0.60

	// critFraction carves the lowest slice of successful hit draws into
	// criticals, so 10% of hits crit at ×1.5 damage.
	critFraction   = 0.10
	critMultiplier = 1.5

	moveStaminaCost = 2
	fleeBaseChance  = 0.30
)

// Action names appearing in combat_turn payloads and the encounter log.
const (
	actAttack  = "attack"
	actAbility = "ability"
	actCloser  = "move_closer"
	actFurther = "move_further"
	actDefend  = "defend"
	actFlee    = "flee"
	actWait    = "wait"
)

// EmitFunc hands a combat occurrence to the session for publication.
type EmitFunc func(eventType, actor string, payload map[string]any)

// Engine resolves encounters for one session.
type Engine struct {
	world  *world.World
	client *llm.Client
	combat *rng.Stream
	emit   EmitFunc

	// MaxRounds caps encounter length; reaching it with both sides alive
	// ends in a timeout.
	MaxRounds int

	counter int

	// defending holds ids that chose defend this round; cleared each round.
	defending map[string]bool

	// fled holds enemy ids that escaped; they no longer act or count as
	// opposition but are not dead.
	fled map[string]bool
}

// NewEngine wires a combat engine. stream must be the session's combat
// sub-stream.
func NewEngine(w *world.World, client *llm.Client, stream *rng.Stream, emit EmitFunc) *Engine {
	return &Engine{
		world:     w,
		client:    client,
		combat:    stream,
		emit:      emit,
		MaxRounds: defaultMaxRounds,
	}
}

// Start creates an encounter between the protagonist and enemies at the
// given location: initiative order, starting positions, combat_started.
// Enemies must already be registered in the world.
func (e *Engine) Start(frame int64, protagonistID string, enemyIDs []string, locationID string) (*world.Encounter, error) {
	if len(enemyIDs) == 0 {
		return nil, fmt.Errorf("combat: encounter needs at least one enemy")
	}
	loc, err := e.world.Location(locationID)
	if err != nil {
		return nil, err
	}

	ids := append([]string{protagonistID}, enemyIDs...)
	participants := make([]world.Initiative, 0, len(ids))
	for _, id := range ids {
		c, err := e.world.Character(id)
		if err != nil {
			return nil, err
		}
		// Dexterity dominates; the stream roll only breaks ties.
		participants = append(participants, world.Initiative{
			CharacterID: id,
			Score:       c.Stats.Dexterity*10 + e.combat.IntN(10),
		})
	}
	sort.SliceStable(participants, func(i, j int) bool {
		if participants[i].Score != participants[j].Score {
			return participants[i].Score > participants[j].Score
		}
		return participants[i].CharacterID < participants[j].CharacterID
	})

	order := make([]string, len(participants))
	for i, p := range participants {
		order[i] = p.CharacterID
	}

	positions := map[string]world.DistanceBand{protagonistID: world.BandMelee}
	for _, id := range enemyIDs {
		positions[id] = e.startingBand(loc)
	}

	e.counter++
	enc := &world.Encounter{
		ID:           fmt.Sprintf("enc-%d", e.counter),
		LocationID:   locationID,
		Participants: participants,
		Positions:    positions,
		MaxRounds:    e.MaxRounds,
		TurnOrder:    order,
	}
	e.world.AddEncounter(enc)
	e.defending = make(map[string]bool)
	e.fled = make(map[string]bool)

	e.emit(eventbus.EventCombatStarted, protagonistID, map[string]any{
		"encounterId": enc.ID,
		"locationId":  locationID,
		"enemies":     enemyIDs,
		"turnOrder":   order,
	})
	return enc, nil
}

// startingBand draws the initial enemy distance from a danger-keyed table:
// dangerous ground means enemies open close.
func (e *Engine) startingBand(loc *world.Location) world.DistanceBand {
	type entry struct {
		band   world.DistanceBand
		weight int
	}
	table := []entry{{world.BandClose, 4}, {world.BandMedium, 6}}
	if loc.Environment.Danger >= 0.5 {
		table = []entry{{world.BandClose, 7}, {world.BandMedium, 3}}
	}
	return rng.PickWeighted(e.combat, table, func(en entry) int { return en.weight }).band
}

// Run resolves the encounter to its outcome. Each combatant acts once per
// round in initiative order; the round loop stops on victory, defeat, a
// successful protagonist flee, or the round cap.
func (e *Engine) Run(ctx context.Context, frame int64, enc *world.Encounter) (world.Outcome, error) {
	hero, err := e.world.Character(e.world.ProtagonistID)
	if err != nil {
		return "", err
	}

	for enc.Round < enc.MaxRounds {
		enc.Round++
		e.defending = make(map[string]bool)

		for _, id := range enc.TurnOrder {
			c, err := e.world.Character(id)
			if err != nil || c.Dead || e.fled[id] {
				continue
			}
			outcome := e.takeTurn(ctx, frame, enc, c, hero)
			if outcome != "" {
				return e.finish(frame, enc, outcome, hero), nil
			}
		}

		if outcome := e.checkOutcome(enc, hero); outcome != "" {
			return e.finish(frame, enc, outcome, hero), nil
		}
	}
	return e.finish(frame, enc, world.OutcomeTimeout, hero), nil
}

// takeTurn resolves one combatant's action. Returns a terminal outcome when
// the action ends the encounter (death or successful protagonist flee).
func (e *Engine) takeTurn(ctx context.Context, frame int64, enc *world.Encounter, actor, hero *world.Character) world.Outcome {
	var act string
	if actor.ID == hero.ID {
		act = e.chooseProtagonistAction(enc, actor)
	} else {
		act = e.chooseEnemyAction(enc, actor)
	}

	payload := map[string]any{
		"encounterId": enc.ID,
		"round":       enc.Round,
		"action":      act,
	}

	switch act {
	case actAttack:
		target := e.attackTarget(enc, actor, hero)
		if target == nil {
			act = actWait
			payload["action"] = actWait
			break
		}
		e.resolveAttack(enc, actor, target, 1.0, payload)
	case actAbility:
		ab := e.readyAbility(enc, actor)
		target := e.attackTarget(enc, actor, hero)
		if ab == nil || target == nil {
			act = actWait
			payload["action"] = actWait
			break
		}
		actor.Stats.Stamina -= ab.StaminaCost
		actor.Stats.Magic -= ab.MagicCost
		ab.CooldownLeft = ab.Cooldown
		payload["ability"] = ab.ID
		e.resolveAttack(enc, actor, target, abilityMultiplier(ab), payload)
	case actCloser:
		actor.Stats.Stamina -= moveStaminaCost
		enc.Positions[actor.ID] = enc.Positions[actor.ID].Closer()
		payload["band"] = string(enc.Positions[actor.ID])
	case actFurther:
		actor.Stats.Stamina -= moveStaminaCost
		enc.Positions[actor.ID] = enc.Positions[actor.ID].Further()
		payload["band"] = string(enc.Positions[actor.ID])
	case actDefend:
		e.defending[actor.ID] = true
	case actFlee:
		success := e.combat.Roll(e.fleeChance(enc, actor))
		payload["success"] = success
		if success {
			if actor.ID == hero.ID {
				e.logTurn(ctx, frame, enc, actor, payload)
				return world.OutcomeFlee
			}
			e.fled[actor.ID] = true
		}
	}

	if actor.Stats.Stamina < 0 {
		actor.Stats.Stamina = 0
	}
	e.tickCooldowns(actor)
	e.logTurn(ctx, frame, enc, actor, payload)

	if hero.Dead {
		return world.OutcomeDefeat
	}
	if e.allEnemiesGone(enc, hero) {
		return world.OutcomeVictory
	}
	return ""
}

// resolveAttack computes hit, crit, and damage into payload and applies it.
func (e *Engine) resolveAttack(enc *world.Encounter, actor, target *world.Character, mult float64, payload map[string]any) {
	payload["targetId"] = target.ID

	hitChance := baseHitChance + float64(actor.Stats.Dexterity)/20 - dodgeOf(target)
	draw := e.combat.Float64()
	if draw >= hitChance {
		payload["hit"] = false
		return
	}
	payload["hit"] = true

	weaponMult := 1.0
	if w := actor.EquippedWeapon(); w != nil && w.WeaponMultiplier > 0 {
		weaponMult = w.WeaponMultiplier
	}
	dmg := float64(actor.Stats.Attack)*weaponMult*mult - float64(target.EffectiveDefense())
	if draw < hitChance*critFraction {
		dmg *= critMultiplier
		payload["crit"] = true
	}
	damage := int(dmg)
	if damage < 1 {
		damage = 1
	}
	if e.defending[target.ID] {
		damage /= 2
		if damage < 1 {
			damage = 1
		}
	}
	payload["damage"] = damage

	if died := target.ApplyDamage(damage); died {
		payload["killed"] = true
		e.emit(eventbus.EventCharacterDied, target.ID, map[string]any{
			"encounterId": enc.ID,
			"killerId":    actor.ID,
		})
	}
}

// logTurn appends to the encounter log and emits combat_turn with the
// mechanics payload plus narration.
func (e *Engine) logTurn(ctx context.Context, frame int64, enc *world.Encounter, actor *world.Character, payload map[string]any) {
	line := e.narrate(ctx, frame, enc, actor, payload)
	payload["narration"] = line
	enc.Log = append(enc.Log, line)
	e.emit(eventbus.EventCombatTurn, actor.ID, payload)
}

// checkOutcome inspects the field between rounds.
func (e *Engine) checkOutcome(enc *world.Encounter, hero *world.Character) world.Outcome {
	if hero.Dead {
		return world.OutcomeDefeat
	}
	if e.allEnemiesGone(enc, hero) {
		return world.OutcomeVictory
	}
	return ""
}

func (e *Engine) allEnemiesGone(enc *world.Encounter, hero *world.Character) bool {
	for _, id := range enc.TurnOrder {
		if id == hero.ID {
			continue
		}
		c, err := e.world.Character(id)
		if err != nil {
			continue
		}
		if !c.Dead && !e.fled[id] {
			return false
		}
	}
	return true
}

// finish marks the encounter resolved, computes the reward, applies it to
// the protagonist, and emits combat_ended.
func (e *Engine) finish(frame int64, enc *world.Encounter, outcome world.Outcome, hero *world.Character) world.Outcome {
	enc.Resolved = true
	enc.Outcome = outcome

	var defeatedTypes []string
	if outcome == world.OutcomeVictory {
		enc.Reward, defeatedTypes = e.victoryReward(enc, hero)
	}

	payload := map[string]any{
		"encounterId":   enc.ID,
		"outcome":       string(outcome),
		"rounds":        enc.Round,
		"experience":    enc.Reward.Experience,
		"gold":          enc.Reward.Gold,
		"defeatedTypes": defeatedTypes,
	}
	if len(enc.Reward.Items) > 0 {
		ids := make([]string, len(enc.Reward.Items))
		for i, it := range enc.Reward.Items {
			ids[i] = it.ID
		}
		payload["itemIds"] = ids
	}
	e.emit(eventbus.EventCombatEnded, hero.ID, payload)

	if outcome == world.OutcomeVictory {
		e.grantReward(enc, hero)
	}
	return outcome
}

// victoryReward rolls XP, gold, and loot from the defeated-enemy tables.
func (e *Engine) victoryReward(enc *world.Encounter, hero *world.Character) (world.LootPayload, []string) {
	var reward world.LootPayload
	var types []string
	for _, id := range enc.TurnOrder {
		if id == hero.ID {
			continue
		}
		c, err := e.world.Character(id)
		if err != nil || !c.Dead {
			continue
		}
		types = append(types, c.EnemyTemplate)
		reward.Experience += c.Stats.Level * 25
		reward.Gold += c.Stats.Level * e.combat.Range(5, 15)
		if it := rollLoot(e.combat, c.EnemyTemplate); it != nil {
			reward.Items = append(reward.Items, it)
		}
	}
	return reward, types
}

func (e *Engine) grantReward(enc *world.Encounter, hero *world.Character) {
	if enc.Reward.Gold > 0 {
		newTotal := hero.AddGold(enc.Reward.Gold)
		e.emit(eventbus.EventGoldChanged, hero.ID, map[string]any{
			"amount":   enc.Reward.Gold,
			"newTotal": newTotal,
			"source":   "combat:" + enc.ID,
		})
	}
	if len(enc.Reward.Items) > 0 {
		var granted []string
		for _, it := range enc.Reward.Items {
			if err := hero.AddItem(it); err == nil {
				granted = append(granted, it.ID)
			}
		}
		if len(granted) > 0 {
			e.emit(eventbus.EventLootObtained, hero.ID, map[string]any{
				"itemIds": granted,
				"source":  "combat:" + enc.ID,
			})
		}
	}
	if enc.Reward.Experience > 0 {
		if levels := hero.AddExperience(enc.Reward.Experience); levels > 0 {
			e.emit(eventbus.EventLevelUp, hero.ID, map[string]any{
				"newLevel": hero.Stats.Level,
				"gained":   levels,
			})
		}
	}
}

// ── Action selection ─────────────────────────────────────────────────────────

// chooseProtagonistAction is the tactical utility stand-in used when the
// decider defers combat to the engine: flee when nearly down, use a ready
// ability, attack in range, otherwise close in.
func (e *Engine) chooseProtagonistAction(enc *world.Encounter, hero *world.Character) string {
	if hero.Stats.HP*4 < hero.Stats.MaxHP {
		return actFlee
	}
	if ab := e.readyAbility(enc, hero); ab != nil {
		return actAbility
	}
	if e.canAttack(enc, hero) {
		return actAttack
	}
	return actCloser
}

func (e *Engine) chooseEnemyAction(enc *world.Encounter, enemy *world.Character) string {
	inMelee := enc.Positions[enemy.ID] == world.BandMelee
	canAttack := e.canAttack(enc, enemy)

	// EnemyTemplate names the species; behaviour is looked up from it.
	// Unknown templates fall through to the aggressive default.
	switch behaviourByTemplate[enemy.EnemyTemplate] {
	case "cautious":
		if enemy.Stats.HP*10 < enemy.Stats.MaxHP*3 {
			return actFlee
		}
		if canAttack {
			return actAttack
		}
		return actCloser
	case "defensive":
		if enemy.Stats.HP*2 < enemy.Stats.MaxHP {
			return actDefend
		}
		if canAttack {
			return actAttack
		}
		return actCloser
	case "balanced":
		if enemy.Stats.HP*10 < enemy.Stats.MaxHP*4 && !e.defending[enemy.ID] {
			return actDefend
		}
		if canAttack {
			return actAttack
		}
		return actCloser
	case "ranged":
		if inMelee {
			return actFurther
		}
		if canAttack {
			return actAttack
		}
		return actWait
	default: // aggressive
		if canAttack {
			return actAttack
		}
		return actCloser
	}
}

// canAttack reports whether the actor's weapon reaches from its band:
// ranged weapons fire from any band, melee weapons need melee.
func (e *Engine) canAttack(enc *world.Encounter, actor *world.Character) bool {
	if w := actor.EquippedWeapon(); w != nil && w.Ranged {
		return true
	}
	return enc.Positions[actor.ID] == world.BandMelee
}

// attackTarget picks who the actor strikes: enemies hit the protagonist,
// the protagonist hits the nearest living enemy (ties by id).
func (e *Engine) attackTarget(enc *world.Encounter, actor, hero *world.Character) *world.Character {
	if actor.ID != hero.ID {
		if e.canAttack(enc, actor) && !hero.Dead {
			return hero
		}
		return nil
	}
	if !e.canAttack(enc, actor) {
		return nil
	}
	var best *world.Character
	bestRank := 0
	for _, id := range enc.TurnOrder {
		if id == hero.ID || e.fled[id] {
			continue
		}
		c, err := e.world.Character(id)
		if err != nil || c.Dead {
			continue
		}
		rank := bandRank(enc.Positions[id])
		if best == nil || rank < bestRank || (rank == bestRank && c.ID < best.ID) {
			best = c
			bestRank = rank
		}
	}
	return best
}

func bandRank(b world.DistanceBand) int {
	switch b {
	case world.BandMelee:
		return 0
	case world.BandClose:
		return 1
	case world.BandMedium:
		return 2
	default:
		return 3
	}
}

// readyAbility returns the first ability whose cost, cooldown, and range
// are all satisfied.
func (e *Engine) readyAbility(enc *world.Encounter, actor *world.Character) *world.Ability {
	for _, ab := range actor.Abilities {
		if ab.CooldownLeft > 0 {
			continue
		}
		if ab.StaminaCost > actor.Stats.Stamina || ab.MagicCost > actor.Stats.Magic {
			continue
		}
		if ab.Range != "" && bandRank(enc.Positions[actor.ID]) > bandRank(ab.Range) {
			continue
		}
		return ab
	}
	return nil
}

func (e *Engine) tickCooldowns(actor *world.Character) {
	for _, ab := range actor.Abilities {
		if ab.CooldownLeft > 0 {
			ab.CooldownLeft--
		}
	}
}

// fleeChance ties escape odds to dexterity and the ground: fleeing is
// easier outdoors and on safe ground.
func (e *Engine) fleeChance(enc *world.Encounter, actor *world.Character) float64 {
	chance := fleeBaseChance + float64(actor.Stats.Dexterity)/40
	if loc, err := e.world.Location(enc.LocationID); err == nil {
		if !loc.Environment.Indoor {
			chance += 0.10
		}
		if loc.Environment.Safe {
			chance += 0.10
		}
	}
	if chance > 0.95 {
		chance = 0.95
	}
	return chance
}

func dodgeOf(c *world.Character) float64 {
	return float64(c.Stats.Dexterity) / 100
}

func abilityMultiplier(ab *world.Ability) float64 {
	// Effect descriptors like "damage:12" scale off attack; a plain
	// multiplier keeps tuning in one place.
	if ab.MagicCost > 0 {
		return 1.8
	}
	return 1.4
}

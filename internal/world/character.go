package world

import (
	"errors"
	"fmt"
)

// Role distinguishes the protagonist from the cast around them.
type Role string

const (
	RoleProtagonist Role = "protagonist"
	RoleNPC         Role = "npc"
	RoleEnemy       Role = "enemy"
)

// Personality is the six-trait vector driving dialogue tone and the
// decider's flavour text. Values are 0–100.
type Personality struct {
	Openness      int `json:"openness"`
	Diligence     int `json:"diligence"`
	Extraversion  int `json:"extraversion"`
	Agreeableness int `json:"agreeableness"`
	Courage       int `json:"courage"`
	Curiosity     int `json:"curiosity"`
}

// Stats holds a character's combat and progression numbers.
type Stats struct {
	Level      int `json:"level"`
	HP         int `json:"hp"`
	MaxHP      int `json:"maxHp"`
	Stamina    int `json:"stamina"`
	MaxStamina int `json:"maxStamina"`
	Magic      int `json:"magic"`
	MaxMagic   int `json:"maxMagic"`
	Attack     int `json:"attack"`
	Defense    int `json:"defense"`

	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`

	Experience int `json:"experience"`
}

// Ability is an active skill with a cost and cooldown.
type Ability struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	StaminaCost  int    `json:"staminaCost"`
	MagicCost    int    `json:"magicCost"`
	Cooldown     int    `json:"cooldown"`
	CooldownLeft int    `json:"cooldownLeft"`

	// Effect is a free-form descriptor ("damage:12", "heal:20") consumed
	// by the combat resolver.
	Effect string `json:"effect"`

	// Range is the furthest distance band the ability works from.
	Range DistanceBand `json:"range,omitempty"`
}

// Knowledge is what a character can talk about with authority.
type Knowledge struct {
	Specialties []string `json:"specialties,omitempty"`
	Rumors      []string `json:"rumors,omitempty"`
	Secrets     []string `json:"secrets,omitempty"`
}

// MemoryType classifies a memory record.
type MemoryType string

const (
	MemoryConversation MemoryType = "conversation"
	MemoryCombat       MemoryType = "combat"
	MemoryDiscovery    MemoryType = "discovery"
	MemoryEvent        MemoryType = "event"
)

// Memory is one bounded-list entry of a character's episodic memory.
type Memory struct {
	Type       MemoryType `json:"type"`
	Text       string     `json:"text"`
	Importance int        `json:"importance"`
	Frame      int64      `json:"frame"`
}

// maxMemories bounds each character's memory list; the least important
// entry is evicted first.
const maxMemories = 50

// Inventory is an ordered slot list with weight and capacity limits.
type Inventory struct {
	Items     []*Item `json:"items"`
	Gold      int     `json:"gold"`
	MaxSlots  int     `json:"maxSlots"`
	MaxWeight float64 `json:"maxWeight"`
}

// Weight sums the weight of carried items.
func (inv *Inventory) Weight() float64 {
	var w float64
	for _, it := range inv.Items {
		w += it.Weight
	}
	return w
}

// GridPos is a coarse integer position within a location's local grid.
type GridPos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Character is a plain record owned by the session. Only the session (via
// Game Service setters) may mutate it; subscribers see copies in snapshots.
type Character struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`

	Personality Personality `json:"personality"`
	Stats       Stats       `json:"stats"`
	Inventory   Inventory   `json:"inventory"`

	// Equipment maps fixed slots to item ids within the inventory.
	Equipment map[EquipSlot]string `json:"equipment,omitempty"`

	Abilities []*Ability `json:"abilities,omitempty"`
	Knowledge Knowledge  `json:"knowledge"`
	Memories  []Memory   `json:"memories,omitempty"`

	// Relationships maps other character ids to affinity in [-100, 100].
	Relationships map[string]int `json:"relationships,omitempty"`

	CurrentLocation string  `json:"currentLocation"`
	Position        GridPos `json:"position"`

	Mood      string `json:"mood,omitempty"`
	Concern   string `json:"concern,omitempty"`
	Backstory string `json:"backstory,omitempty"`

	// EnemyTemplate names the species an enemy was spawned from
	// (wolf, boar, bandit, troll, ...). Combat derives behaviour and
	// loot from it, and quest tracking matches it against defeat
	// objectives.
	EnemyTemplate string `json:"enemyTemplate,omitempty"`

	// Dead is set when HP reaches zero. The record persists for replay.
	Dead bool `json:"dead,omitempty"`

	// Merchant traits.
	IsMerchant bool    `json:"isMerchant,omitempty"`
	Greed      float64 `json:"greed,omitempty"`

	// Extra preserves unknown fields for forward compatibility.
	Extra map[string]any `json:"extra,omitempty"`
}

// Inventory errors surfaced to the action executor as user-input failures.
var (
	ErrInventoryFull  = errors.New("world: inventory full")
	ErrTooHeavy       = errors.New("world: carry weight exceeded")
	ErrNotEnoughGold  = errors.New("world: not enough gold")
	ErrItemNotCarried = errors.New("world: item not in inventory")
	ErrNotEquippable  = errors.New("world: item not equippable")
)

// AddItem appends an item, enforcing slot and weight capacity.
func (c *Character) AddItem(it *Item) error {
	if c.Inventory.MaxSlots > 0 && len(c.Inventory.Items) >= c.Inventory.MaxSlots {
		return ErrInventoryFull
	}
	if c.Inventory.MaxWeight > 0 && c.Inventory.Weight()+it.Weight > c.Inventory.MaxWeight {
		return ErrTooHeavy
	}
	c.Inventory.Items = append(c.Inventory.Items, it)
	return nil
}

// RemoveItem removes and returns the item with the given id.
func (c *Character) RemoveItem(itemID string) (*Item, error) {
	for i, it := range c.Inventory.Items {
		if it.ID == itemID {
			c.Inventory.Items = append(c.Inventory.Items[:i], c.Inventory.Items[i+1:]...)
			// Unequip if it occupied a slot.
			for slot, id := range c.Equipment {
				if id == itemID {
					delete(c.Equipment, slot)
				}
			}
			return it, nil
		}
	}
	return nil, ErrItemNotCarried
}

// Item returns the carried item with the given id, or nil.
func (c *Character) Item(itemID string) *Item {
	for _, it := range c.Inventory.Items {
		if it.ID == itemID {
			return it
		}
	}
	return nil
}

// Equip places a carried item into its slot, displacing any previous
// occupant back into the inventory (it stays carried either way).
func (c *Character) Equip(itemID string) error {
	it := c.Item(itemID)
	if it == nil {
		return ErrItemNotCarried
	}
	if !it.Equippable() {
		return ErrNotEquippable
	}
	if c.Equipment == nil {
		c.Equipment = make(map[EquipSlot]string)
	}
	c.Equipment[it.Slot] = it.ID
	return nil
}

// Unequip clears the given slot. Unequipping an empty slot is a no-op.
func (c *Character) Unequip(slot EquipSlot) {
	delete(c.Equipment, slot)
}

// EquippedWeapon returns the equipped weapon item, or nil.
func (c *Character) EquippedWeapon() *Item {
	id, ok := c.Equipment[SlotWeapon]
	if !ok {
		return nil
	}
	return c.Item(id)
}

// EffectiveDefense is base defense plus equipped armor bonuses.
func (c *Character) EffectiveDefense() int {
	def := c.Stats.Defense
	for _, id := range c.Equipment {
		if it := c.Item(id); it != nil {
			def += it.DefenseBonus
		}
	}
	return def
}

// AddGold adjusts gold, clamping at zero.
func (c *Character) AddGold(delta int) int {
	c.Inventory.Gold += delta
	if c.Inventory.Gold < 0 {
		c.Inventory.Gold = 0
	}
	return c.Inventory.Gold
}

// SpendGold deducts amount or fails without mutation.
func (c *Character) SpendGold(amount int) error {
	if amount > c.Inventory.Gold {
		return ErrNotEnoughGold
	}
	c.Inventory.Gold -= amount
	return nil
}

// ExperienceForLevel is the cumulative XP threshold to reach level.
// Level 2 needs 100, level 3 needs 300, level 4 needs 600, …
func ExperienceForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	n := level - 1
	return 100 * n * (n + 1) / 2
}

// AddExperience grants XP and applies any level-ups. Returns the number of
// levels gained. Each level raises max HP and stamina and restores both.
func (c *Character) AddExperience(amount int) int {
	if amount <= 0 {
		return 0
	}
	c.Stats.Experience += amount
	gained := 0
	for c.Stats.Experience >= ExperienceForLevel(c.Stats.Level+1) {
		c.Stats.Level++
		gained++
		c.Stats.MaxHP += 10
		c.Stats.MaxStamina += 5
		c.Stats.HP = c.Stats.MaxHP
		c.Stats.Stamina = c.Stats.MaxStamina
		c.Stats.Attack++
		if c.Stats.Level%2 == 0 {
			c.Stats.Defense++
		}
	}
	return gained
}

// ApplyDamage reduces HP, bounded at zero, and flags death. Reports whether
// the character died from this hit.
func (c *Character) ApplyDamage(dmg int) bool {
	if dmg < 0 {
		dmg = 0
	}
	c.Stats.HP -= dmg
	if c.Stats.HP <= 0 {
		c.Stats.HP = 0
		if !c.Dead {
			c.Dead = true
			return true
		}
	}
	return false
}

// Heal restores HP up to the maximum.
func (c *Character) Heal(amount int) {
	if amount <= 0 || c.Dead {
		return
	}
	c.Stats.HP += amount
	if c.Stats.HP > c.Stats.MaxHP {
		c.Stats.HP = c.Stats.MaxHP
	}
}

// RestoreStamina restores stamina up to the maximum.
func (c *Character) RestoreStamina(amount int) {
	if amount <= 0 {
		return
	}
	c.Stats.Stamina += amount
	if c.Stats.Stamina > c.Stats.MaxStamina {
		c.Stats.Stamina = c.Stats.MaxStamina
	}
}

// AdjustRelationship moves the affinity toward other by delta, clamped to
// [-100, 100].
func (c *Character) AdjustRelationship(otherID string, delta int) int {
	if c.Relationships == nil {
		c.Relationships = make(map[string]int)
	}
	v := c.Relationships[otherID] + delta
	if v > 100 {
		v = 100
	}
	if v < -100 {
		v = -100
	}
	c.Relationships[otherID] = v
	return v
}

// Relationship returns the affinity toward other (zero when unknown).
func (c *Character) Relationship(otherID string) int {
	return c.Relationships[otherID]
}

// AddMemory appends a memory record, evicting the least important entry
// once the bounded list is full.
func (c *Character) AddMemory(m Memory) {
	c.Memories = append(c.Memories, m)
	if len(c.Memories) <= maxMemories {
		return
	}
	lowest := 0
	for i, mem := range c.Memories {
		if mem.Importance < c.Memories[lowest].Importance {
			lowest = i
		}
	}
	c.Memories = append(c.Memories[:lowest], c.Memories[lowest+1:]...)
}

// Validate checks the stat bound invariants: HP, stamina, magic, and gold
// stay in [0, max] and inventory weight stays under capacity.
func (c *Character) Validate() error {
	s := c.Stats
	switch {
	case s.HP < 0 || s.HP > s.MaxHP:
		return fmt.Errorf("world: character %s: hp %d outside [0,%d]", c.ID, s.HP, s.MaxHP)
	case s.Stamina < 0 || s.Stamina > s.MaxStamina:
		return fmt.Errorf("world: character %s: stamina %d outside [0,%d]", c.ID, s.Stamina, s.MaxStamina)
	case s.Magic < 0 || s.Magic > s.MaxMagic:
		return fmt.Errorf("world: character %s: magic %d outside [0,%d]", c.ID, s.Magic, s.MaxMagic)
	case c.Inventory.Gold < 0:
		return fmt.Errorf("world: character %s: negative gold", c.ID)
	case s.HP == 0 && !c.Dead:
		return fmt.Errorf("world: character %s: zero hp without death flag", c.ID)
	}
	if c.Inventory.MaxWeight > 0 && c.Inventory.Weight() > c.Inventory.MaxWeight {
		return fmt.Errorf("world: character %s: carry weight %.1f exceeds %.1f",
			c.ID, c.Inventory.Weight(), c.Inventory.MaxWeight)
	}
	return nil
}

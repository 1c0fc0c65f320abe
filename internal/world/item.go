package world

// ItemType classifies an item for equip/use rules.
type ItemType string

const (
	ItemWeapon     ItemType = "weapon"
	ItemArmor      ItemType = "armor"
	ItemConsumable ItemType = "consumable"
	ItemQuestItem  ItemType = "quest"
	ItemMisc       ItemType = "misc"
)

// Rarity scales an item's trade value.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Multiplier returns the trade-price factor for the rarity tier.
func (r Rarity) Multiplier() float64 {
	switch r {
	case RarityUncommon:
		return 1.5
	case RarityRare:
		return 2.5
	case RarityEpic:
		return 5.0
	case RarityLegendary:
		return 10.0
	default:
		return 1.0
	}
}

// EquipSlot names a fixed equipment slot on a character.
type EquipSlot string

const (
	SlotWeapon     EquipSlot = "weapon"
	SlotOffhand    EquipSlot = "offhand"
	SlotHead       EquipSlot = "head"
	SlotChest      EquipSlot = "chest"
	SlotLegs       EquipSlot = "legs"
	SlotHands      EquipSlot = "hands"
	SlotFeet       EquipSlot = "feet"
	SlotAccessory1 EquipSlot = "accessory1"
	SlotAccessory2 EquipSlot = "accessory2"
)

// EquipSlots lists every slot in a stable order.
var EquipSlots = []EquipSlot{
	SlotWeapon, SlotOffhand, SlotHead, SlotChest, SlotLegs,
	SlotHands, SlotFeet, SlotAccessory1, SlotAccessory2,
}

// Item is a plain record describing an object a character can carry,
// equip, trade, or consume.
type Item struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        ItemType `json:"type"`
	Description string   `json:"description,omitempty"`

	// Slot is the equipment slot the item occupies when equipped.
	// Empty for non-equippable items.
	Slot EquipSlot `json:"slot,omitempty"`

	Weight    float64 `json:"weight"`
	BaseValue int     `json:"baseValue"`
	Rarity    Rarity  `json:"rarity"`

	// WeaponMultiplier scales attack damage; zero means 1.0.
	WeaponMultiplier float64 `json:"weaponMultiplier,omitempty"`

	// Ranged weapons may attack from any distance band.
	Ranged bool `json:"ranged,omitempty"`

	// DefenseBonus is added to the wearer's defense while equipped.
	DefenseBonus int `json:"defenseBonus,omitempty"`

	// HealAmount restores HP when a consumable is used.
	HealAmount int `json:"healAmount,omitempty"`

	// Extra preserves fields this engine version does not know about, so
	// replays written by newer versions round-trip.
	Extra map[string]any `json:"extra,omitempty"`
}

// Equippable reports whether the item can occupy an equipment slot.
func (it *Item) Equippable() bool { return it.Slot != "" }

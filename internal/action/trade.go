package action

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/world"
)

// maxRelationshipDiscount caps how much goodwill lowers a merchant's
// price. Affinity 100 buys the full discount.
const maxRelationshipDiscount = 0.5

// Price computes what merchant charges buyer for it: base value scaled by
// rarity and the merchant's greed, less a relationship discount.
func Price(it *world.Item, merchant, buyer *world.Character) int {
	base := float64(it.BaseValue) * it.Rarity.Multiplier() * (1 + merchant.Greed)
	rel := merchant.Relationship(buyer.ID)
	if rel > 0 {
		discount := float64(rel) / 100 * maxRelationshipDiscount
		base *= 1 - discount
	}
	p := int(math.Round(base))
	if p < 1 {
		p = 1
	}
	return p
}

// trade buys one item from a merchant at the protagonist's location. The
// transfer is atomic: on any failure both inventories and the gold are
// untouched.
func (e *Executor) trade(ctx context.Context, frame int64, act Action) (*outcome, error) {
	hero := e.world.Protagonist()
	merchant, it, err := e.findWare(hero, act.Target)
	if err != nil {
		return nil, err
	}

	price := Price(it, merchant, hero)
	if price > hero.Inventory.Gold {
		return nil, fmt.Errorf("%w: %s costs %d gold", world.ErrNotEnoughGold, it.Name, price)
	}
	// Probe capacity before touching either inventory.
	if hero.Inventory.MaxSlots > 0 && len(hero.Inventory.Items) >= hero.Inventory.MaxSlots {
		return nil, world.ErrInventoryFull
	}
	if hero.Inventory.MaxWeight > 0 && hero.Inventory.Weight()+it.Weight > hero.Inventory.MaxWeight {
		return nil, world.ErrTooHeavy
	}

	return &outcome{
		cost: 5,
		commit: func(ctx context.Context, frame int64) string {
			if _, err := merchant.RemoveItem(it.ID); err != nil {
				return ""
			}
			if err := hero.AddItem(it); err != nil {
				merchant.Inventory.Items = append(merchant.Inventory.Items, it)
				return ""
			}
			if err := hero.SpendGold(price); err != nil {
				hero.RemoveItem(it.ID)
				merchant.Inventory.Items = append(merchant.Inventory.Items, it)
				return ""
			}
			merchant.AddGold(price)

			e.emit(eventbus.EventGoldChanged, hero.ID, map[string]any{
				"amount":   -price,
				"newTotal": hero.Inventory.Gold,
				"source":   "trade:" + merchant.ID,
			})
			e.emit(eventbus.EventLootObtained, hero.ID, map[string]any{
				"itemIds": []string{it.ID},
				"source":  "trade:" + merchant.ID,
			})
			return fmt.Sprintf("Bought %s from %s for %d gold.", it.Name, merchant.Name, price)
		},
	}, nil
}

// findWare locates the item for sale among merchants at the hero's
// location, by id first and then by fuzzy name across all their stock.
func (e *Executor) findWare(hero *world.Character, target string) (*world.Character, *world.Item, error) {
	if target == "" {
		return nil, nil, ErrTargetRequired
	}
	var merchants []*world.Character
	for _, c := range e.world.CharactersAt(hero.CurrentLocation) {
		if c.IsMerchant && !c.Dead {
			merchants = append(merchants, c)
		}
	}
	if len(merchants) == 0 {
		return nil, nil, ErrNoMerchant
	}

	lower := strings.ToLower(target)
	for _, m := range merchants {
		for _, it := range m.Inventory.Items {
			if it.ID == target || strings.ToLower(it.Name) == lower {
				return m, it, nil
			}
		}
	}

	var owners []*world.Character
	var wares []*world.Item
	var names []string
	for _, m := range merchants {
		for _, it := range m.Inventory.Items {
			owners = append(owners, m)
			wares = append(wares, it)
			names = append(names, it.Name)
		}
	}
	if i := bestMatch(target, names); i >= 0 {
		return owners[i], wares[i], nil
	}
	return nil, nil, ErrTargetNotFound
}

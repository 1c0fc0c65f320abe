package action

import (
	"context"
	"log/slog"
	"math"

	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/world"
)

// minutesPerGridUnit is the walking cost of one coarse grid unit on flat
// ground.
const minutesPerGridUnit = 5.0

// movementSpeed is the protagonist's pace multiplier. Mounts or speed
// effects would raise it; on foot it stays 1.
const movementSpeed = 1.0

// travelCost computes the in-game minutes to move between two locations:
// Euclidean grid distance scaled by the destination terrain and by the
// elevation gap.
func travelCost(from, to *world.Location) int64 {
	dx := float64(to.Coord.X - from.Coord.X)
	dy := float64(to.Coord.Y - from.Coord.Y)
	dz := math.Abs(float64(to.Coord.Z - from.Coord.Z))

	dist := math.Sqrt(dx*dx + dy*dy)
	minutes := dist * minutesPerGridUnit * to.Environment.Terrain.Modifier() * (1 + 0.5*dz) / movementSpeed
	if minutes < 1 {
		return 1
	}
	return int64(math.Round(minutes))
}

func (e *Executor) travel(ctx context.Context, frame int64, act Action) (*outcome, error) {
	hero := e.world.Protagonist()
	dest, err := e.resolveLocation(act.Target)
	if err != nil {
		return nil, err
	}
	if dest.ID == hero.CurrentLocation {
		return nil, ErrAlreadyThere
	}
	from, err := e.world.Location(hero.CurrentLocation)
	if err != nil {
		return nil, err
	}

	cost := travelCost(from, dest)
	return &outcome{
		cost: cost,
		commit: func(ctx context.Context, frame int64) string {
			if err := e.world.MoveCharacter(hero.ID, dest.ID); err != nil {
				slog.Error("travel move failed", "from", from.ID, "to", dest.ID, "error", err)
				return ""
			}
			dest.Visited = true
			dest.ExpandDetail(dest.NextDetail())
			e.emit(eventbus.EventLocationChanged, hero.ID, map[string]any{
				"from":       from.ID,
				"to":         dest.ID,
				"toName":     dest.Name,
				"travelTime": cost,
			})
			e.rollAmbush(ctx, frame, hero, dest)
			return "Arrived at " + dest.Name + "."
		},
	}, nil
}

// rollAmbush triggers and resolves a combat encounter on arrival when the
// destination's danger rating says so. Combat failures are logged, not
// surfaced: the travel itself already succeeded.
func (e *Executor) rollAmbush(ctx context.Context, frame int64, hero *world.Character, dest *world.Location) {
	if !e.combat.RollEncounter(e.stream, dest) {
		return
	}
	enemyIDs, err := e.combat.SpawnEnemies(e.stream, dest, hero.Stats.Level)
	if err != nil {
		slog.Error("enemy spawn failed", "location", dest.ID, "error", err)
		return
	}
	enc, err := e.combat.Start(frame, hero.ID, enemyIDs, dest.ID)
	if err != nil {
		slog.Error("encounter start failed", "location", dest.ID, "error", err)
		return
	}
	if _, err := e.combat.Run(ctx, frame, enc); err != nil {
		slog.Error("encounter run failed", "encounter", enc.ID, "error", err)
	}
}

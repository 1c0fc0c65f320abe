// Package content authors the initial world a session plays in. The core
// engine consumes the generated record once at bootstrap and only reads
// afterwards. A builtin deterministic generator covers offline play and
// tests; an LLM-backed generator produces themed worlds when a model is
// available.
package content

import (
	"context"

	"github.com/emberforge/wayfarer/internal/world"
)

// Params selects what world to generate.
type Params struct {
	Seed       int64
	Theme      string
	PlayerName string
}

// World is the generation handshake record: everything a session needs
// to start playing.
type World struct {
	StartingTown string
	Protagonist  *world.Character
	NPCs         []*world.Character
	Locations    []*world.Location
	MainQuest    *world.Quest
	TownRumors   []string
}

// Generator produces an initial world for the given parameters.
type Generator interface {
	GenerateWorld(ctx context.Context, p Params) (*World, error)
}

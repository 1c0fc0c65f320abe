package session

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/emberforge/wayfarer/internal/clock"
	"github.com/emberforge/wayfarer/internal/replay"
)

// Continue rebuilds a live session from a replay file's terminal state
// and hands it back ready to run. A fresh master seed comes from cfg;
// determinism across the continuation boundary is not promised, only
// structural validity of the rebuilt entity graph.
func Continue(f *replay.File, cfg Config) (*Session, error) {
	raw := f.InitialState
	frame := int64(0)
	if cp := f.LastCheckpoint(); cp != nil {
		raw = cp.StateSnapshot
		frame = cp.Frame
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no state to continue from", replay.ErrCorrupt)
	}

	var snap StateSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: checkpoint decode: %v", replay.ErrCorrupt, err)
	}

	s, err := newShell(cfg)
	if err != nil {
		return nil, err
	}
	s.theme = f.Header.Theme
	s.frame = frame

	if err := s.installSnapshot(&snap); err != nil {
		return nil, err
	}
	if err := s.replay.SetInitialState(s.GameState()); err != nil {
		return nil, err
	}
	return s, nil
}

// installSnapshot rebuilds the entity graph from a checkpoint snapshot.
func (s *Session) installSnapshot(snap *StateSnapshot) error {
	for _, loc := range snap.Location.Database {
		// Presence rebuilds as characters install; stale ids (enemies
		// from a resolved encounter) would otherwise dangle.
		loc.Presence = nil
		if err := s.world.AddLocation(loc); err != nil {
			return fmt.Errorf("session: restore location: %w", err)
		}
	}

	hero := snap.Characters.Protagonist
	if hero == nil {
		return fmt.Errorf("%w: checkpoint without protagonist", replay.ErrCorrupt)
	}
	if err := s.world.AddCharacter(hero); err != nil {
		return fmt.Errorf("session: restore protagonist: %w", err)
	}
	for _, npc := range snap.Characters.NPCs {
		if err := s.world.AddCharacter(npc); err != nil {
			return fmt.Errorf("session: restore npc: %w", err)
		}
	}

	for _, q := range snap.Quests.Active {
		q.RecomputeGuidance()
		if err := s.world.AddQuest(q); err != nil {
			return fmt.Errorf("session: restore quest: %w", err)
		}
	}

	// Fast-forward the clock to the checkpoint time. Game time is
	// monotonic, so a checkpoint can never sit before session start.
	if delta := snap.Time.GameTime - s.clock.Minutes(); delta > 0 {
		s.clock.Advance(delta)
	}
	if snap.Time.Weather != "" {
		s.clock.SetWeather(clock.Weather(snap.Time.Weather))
	}

	if err := s.world.CheckInvariants(); err != nil {
		return fmt.Errorf("%w: restored state invalid: %v", replay.ErrCorrupt, err)
	}
	slog.Info("session continued from checkpoint",
		"frame", s.frame, "quests", len(s.world.ActiveQuests()))
	return nil
}

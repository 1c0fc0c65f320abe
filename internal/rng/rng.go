// Package rng provides the deterministic random number source for a game
// session. A single 64-bit master seed is split into named sub-streams so
// that each subsystem consumes its own reproducible sequence: combat rolls
// never perturb weather transitions and vice versa.
//
// Ad-hoc use of math/rand's global source is forbidden inside the engine —
// every consumer must obtain a [Stream] from the session's [Source].
package rng

import (
	"hash/fnv"
	"math/rand/v2"
	"sync"
)

// Canonical stream names. Subsystems must use these constants so replays
// derive identical sub-streams.
const (
	StreamDecider   = "decider"
	StreamDialogue  = "dialogue"
	StreamCombat    = "combat"
	StreamWeather   = "weather"
	StreamEncounter = "encounter"
)

// Source owns the master seed and hands out named sub-streams. Streams are
// memoised: asking for the same name twice returns the same [Stream].
type Source struct {
	seed int64

	mu      sync.Mutex
	streams map[string]*Stream
}

// New creates a Source from the given master seed.
func New(seed int64) *Source {
	return &Source{
		seed:    seed,
		streams: make(map[string]*Stream),
	}
}

// Seed returns the master seed this source was created with.
func (s *Source) Seed() int64 { return s.seed }

// Stream returns the named sub-stream, creating it on first use. The
// sub-stream seed is derived by mixing the master seed with an FNV-1a hash
// of the stream name, so stream identity is stable across processes.
func (s *Source) Stream(name string) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.streams[name]; ok {
		return st
	}
	st := &Stream{
		name: name,
		rand: rand.New(rand.NewPCG(uint64(s.seed), hashName(name))),
	}
	s.streams[name] = st
	return st
}

// hashName maps a stream name to a stable 64-bit value.
func hashName(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

// Stream is a single deterministic random sequence. It is not safe for
// concurrent use; the engine's single-threaded frame discipline is the
// synchronisation mechanism.
type Stream struct {
	name string
	rand *rand.Rand
}

// Name returns the stream's identifier.
func (st *Stream) Name() string { return st.name }

// Float64 returns the next value in [0.0, 1.0).
func (st *Stream) Float64() float64 { return st.rand.Float64() }

// IntN returns a uniform value in [0, n). Panics if n <= 0.
func (st *Stream) IntN(n int) int { return st.rand.IntN(n) }

// Range returns a uniform value in [lo, hi]. Panics if hi < lo.
func (st *Stream) Range(lo, hi int) int {
	return lo + st.rand.IntN(hi-lo+1)
}

// Roll reports whether a draw from the stream fell below chance.
// A chance of 0 never succeeds; 1 or more always succeeds.
func (st *Stream) Roll(chance float64) bool {
	if chance <= 0 {
		// Consume a draw regardless so call sites stay aligned in replays.
		st.rand.Float64()
		return false
	}
	return st.rand.Float64() < chance
}

// Pick returns a uniformly chosen element of xs. Panics if xs is empty.
func Pick[T any](st *Stream, xs []T) T {
	return xs[st.rand.IntN(len(xs))]
}

// PickWeighted returns an element of xs chosen with probability proportional
// to its weight. Zero and negative weights are treated as zero. If all
// weights are zero, the first element is returned.
func PickWeighted[T any](st *Stream, xs []T, weight func(T) int) T {
	total := 0
	for _, x := range xs {
		if w := weight(x); w > 0 {
			total += w
		}
	}
	if total <= 0 {
		st.rand.Float64() // keep draw alignment
		return xs[0]
	}
	draw := st.rand.IntN(total)
	for _, x := range xs {
		w := weight(x)
		if w <= 0 {
			continue
		}
		if draw < w {
			return x
		}
		draw -= w
	}
	return xs[len(xs)-1]
}

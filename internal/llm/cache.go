package llm

// cacheKey identifies one recorded call. Frame and seed together make the
// key unique even when a subsystem issues several calls in one frame.
type cacheKey struct {
	frame     int64
	subsystem string
	seed      int64
}

// ReplayCache answers LLM calls from the call records of a saved replay.
// A client in playback mode consults it instead of the network, so replays
// reproduce their text exactly even on backends without seed support.
type ReplayCache struct {
	records map[cacheKey]CallRecord
}

// NewReplayCache builds a cache from recorded calls, typically the llmCalls
// section of a replay file. Later duplicates of a key win; replays do not
// produce duplicates in practice.
func NewReplayCache(records []CallRecord) *ReplayCache {
	m := make(map[cacheKey]CallRecord, len(records))
	for _, rec := range records {
		m[cacheKey{frame: rec.Frame, subsystem: rec.Subsystem, seed: rec.Seed}] = rec
	}
	return &ReplayCache{records: m}
}

// Get looks up the record for (frame, subsystem, seed).
func (rc *ReplayCache) Get(frame int64, subsystem string, seed int64) (CallRecord, bool) {
	rec, ok := rc.records[cacheKey{frame: frame, subsystem: subsystem, seed: seed}]
	return rec, ok
}

// Len returns the number of cached records.
func (rc *ReplayCache) Len() int { return len(rc.records) }

package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// Fallback reason codes. These appear verbatim in fallback:used event
// payloads and in the replay file.
const (
	ReasonTimeout     = "LLM_TIMEOUT"
	ReasonUnavailable = "LLM_UNAVAILABLE"
	ReasonError       = "LLM_ERROR"
	ReasonParse       = "PARSE_ERROR"
)

// fallbackTextLimit caps how much of the fallback text is kept per entry.
const fallbackTextLimit = 120

// defaultRingSize is the bounded history length of a [FallbackLog].
const defaultRingSize = 256

// Fallback is one recorded fallback use.
type Fallback struct {
	Frame        int64          `json:"frame"`
	Subsystem    string         `json:"subsystem"`
	Operation    string         `json:"operation"`
	Reason       string         `json:"reason"`
	PromptLength int            `json:"promptLength"`
	FallbackText string         `json:"fallbackText"`
	Context      map[string]any `json:"context,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// FallbackLog records every fallback use across the session: counters by
// subsystem and reason, a bounded ring of recent entries, and first/last
// timestamps for rate queries. One instance is owned by the session and
// shared by reference; there are no package-level singletons.
//
// Each Log call also notifies the session through the emit hook so the
// replay log and observers see a fallback:used event.
type FallbackLog struct {
	mu sync.Mutex

	bySubsystem map[string]int
	byReason    map[string]int
	recent      []Fallback
	ringSize    int
	total       int
	first       time.Time
	last        time.Time

	emit func(Fallback)
}

// NewFallbackLog creates an empty log. emit may be nil; set it later with
// [FallbackLog.SetEmit] once the session's event plumbing exists.
func NewFallbackLog(emit func(Fallback)) *FallbackLog {
	return &FallbackLog{
		bySubsystem: make(map[string]int),
		byReason:    make(map[string]int),
		ringSize:    defaultRingSize,
		emit:        emit,
	}
}

// SetEmit installs the event hook invoked on every logged fallback.
func (fl *FallbackLog) SetEmit(emit func(Fallback)) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.emit = emit
}

// Log records one fallback use, truncating FallbackText to a bounded length.
func (fl *FallbackLog) Log(fb Fallback) {
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now()
	}
	if len(fb.FallbackText) > fallbackTextLimit {
		fb.FallbackText = fb.FallbackText[:fallbackTextLimit]
	}

	fl.mu.Lock()
	fl.bySubsystem[fb.Subsystem]++
	fl.byReason[fb.Reason]++
	fl.total++
	if fl.first.IsZero() {
		fl.first = fb.Timestamp
	}
	fl.last = fb.Timestamp
	fl.recent = append(fl.recent, fb)
	if len(fl.recent) > fl.ringSize {
		fl.recent = fl.recent[len(fl.recent)-fl.ringSize:]
	}
	emit := fl.emit
	fl.mu.Unlock()

	slog.Warn("llm fallback used",
		"subsystem", fb.Subsystem,
		"operation", fb.Operation,
		"reason", fb.Reason,
		"frame", fb.Frame)

	if emit != nil {
		emit(fb)
	}
}

// Total returns the number of fallbacks recorded since session start.
func (fl *FallbackLog) Total() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.total
}

// CountBySubsystem returns the fallback count for one subsystem.
func (fl *FallbackLog) CountBySubsystem(subsystem string) int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.bySubsystem[subsystem]
}

// CountByReason returns the fallback count for one reason code.
func (fl *FallbackLog) CountByReason(reason string) int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.byReason[reason]
}

// Recent returns a copy of the most recent entries, oldest first.
func (fl *FallbackLog) Recent() []Fallback {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	out := make([]Fallback, len(fl.recent))
	copy(out, fl.recent)
	return out
}

// Rate returns fallbacks per minute inside the given trailing window,
// counted over the retained ring. A zero window uses the whole span from
// the first to the last recorded fallback.
func (fl *FallbackLog) Rate(window time.Duration) float64 {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.total == 0 {
		return 0
	}
	if window <= 0 {
		span := fl.last.Sub(fl.first)
		if span <= 0 {
			return float64(fl.total)
		}
		return float64(fl.total) / span.Minutes()
	}

	cutoff := time.Now().Add(-window)
	n := 0
	for _, fb := range fl.recent {
		if fb.Timestamp.After(cutoff) {
			n++
		}
	}
	return float64(n) / window.Minutes()
}

// Span returns the first and last fallback timestamps. Both are zero when
// nothing has been logged.
func (fl *FallbackLog) Span() (first, last time.Time) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.first, fl.last
}

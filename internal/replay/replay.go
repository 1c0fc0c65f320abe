// Package replay records a session into a gzip-compressed JSON file and
// reads such files back for viewing, playback, and continuation. The log
// is append-only: events, LLM calls, and periodic checkpoint snapshots,
// all keyed by frame.
package replay

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/llm"
)

// Version is written into every file header. Readers reject files whose
// major version differs.
const Version = "1.0.0"

// ErrCorrupt marks a replay file that cannot be read or fails structural
// validation. Fatal at load time.
var ErrCorrupt = errors.New("replay: corrupt file")

// Header describes a replay file. Counts are filled in at save time.
type Header struct {
	Version         string    `json:"version"`
	Timestamp       time.Time `json:"timestamp"`
	GameSeed        int64     `json:"gameSeed"`
	Model           string    `json:"model"`
	Theme           string    `json:"theme"`
	FrameCount      int64     `json:"frameCount"`
	EventCount      int       `json:"eventCount"`
	LLMCallCount    int       `json:"llmCallCount"`
	CheckpointCount int       `json:"checkpointCount"`
}

// Checkpoint is a full state snapshot taken at a frame boundary.
type Checkpoint struct {
	Frame         int64           `json:"frame"`
	StateSnapshot json.RawMessage `json:"stateSnapshot"`
}

// File is the complete on-disk document.
type File struct {
	Header       Header           `json:"header"`
	InitialState json.RawMessage  `json:"initialState"`
	Events       []eventbus.Event `json:"events"`
	LLMCalls     []llm.CallRecord `json:"llmCalls"`
	Checkpoints  []Checkpoint     `json:"checkpoints"`
}

// Logger accumulates a session's log in memory until Save.
type Logger struct {
	header       Header
	initialState json.RawMessage
	events       []eventbus.Event
	llmCalls     []llm.CallRecord
	checkpoints  []Checkpoint

	lastFrame int64
}

// NewLogger starts a log for one session. initialState is serialized
// immediately so later mutations cannot leak into it.
func NewLogger(initialState any, seed int64, model, theme string) (*Logger, error) {
	raw, err := json.Marshal(initialState)
	if err != nil {
		return nil, fmt.Errorf("replay: marshal initial state: %w", err)
	}
	return &Logger{
		header: Header{
			Version:   Version,
			Timestamp: time.Now(),
			GameSeed:  seed,
			Model:     model,
			Theme:     theme,
		},
		initialState: raw,
	}, nil
}

// SetInitialState replaces the serialized initial state. The session
// calls this once world generation has settled, after the logger already
// captured any generation-time LLM calls.
func (l *Logger) SetInitialState(initialState any) error {
	raw, err := json.Marshal(initialState)
	if err != nil {
		return fmt.Errorf("replay: marshal initial state: %w", err)
	}
	l.initialState = raw
	return nil
}

// LogEvent appends one event. Frames must be monotonically
// non-decreasing; a regression means a subsystem emitted outside its
// tick and is rejected.
func (l *Logger) LogEvent(ev eventbus.Event) error {
	if ev.Frame < l.lastFrame {
		return fmt.Errorf("replay: event frame %d regresses below %d", ev.Frame, l.lastFrame)
	}
	l.lastFrame = ev.Frame
	l.events = append(l.events, ev)
	return nil
}

// LogLLMCall appends one LLM call record.
func (l *Logger) LogLLMCall(rec llm.CallRecord) {
	l.llmCalls = append(l.llmCalls, rec)
}

// LogCheckpoint appends a full snapshot at the given frame.
func (l *Logger) LogCheckpoint(frame int64, snapshot any) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("replay: marshal checkpoint: %w", err)
	}
	l.checkpoints = append(l.checkpoints, Checkpoint{Frame: frame, StateSnapshot: raw})
	return nil
}

// Counts returns how many events, LLM calls, and checkpoints are logged.
func (l *Logger) Counts() (events, llmCalls, checkpoints int) {
	return len(l.events), len(l.llmCalls), len(l.checkpoints)
}

// Save writes the gzip-compressed JSON document to path, creating parent
// directories as needed.
func (l *Logger) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("replay: create dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("replay: create file: %w", err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	doc := File{
		Header:       l.header,
		InitialState: l.initialState,
		Events:       l.events,
		LLMCalls:     l.llmCalls,
		Checkpoints:  l.checkpoints,
	}
	doc.Header.FrameCount = l.lastFrame
	doc.Header.EventCount = len(l.events)
	doc.Header.LLMCallCount = len(l.llmCalls)
	doc.Header.CheckpointCount = len(l.checkpoints)

	if err := json.NewEncoder(zw).Encode(&doc); err != nil {
		zw.Close()
		return fmt.Errorf("replay: encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("replay: compress: %w", err)
	}
	return f.Sync()
}

// Load reads and validates a replay file. Any read, decode, or
// structural failure wraps [ErrCorrupt].
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: not gzip: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	var doc File
	if err := json.NewDecoder(zr).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCorrupt, err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (f *File) validate() error {
	if f.Header.Version == "" {
		return fmt.Errorf("%w: missing header version", ErrCorrupt)
	}
	if f.Header.Version[0] != Version[0] {
		return fmt.Errorf("%w: unsupported version %s", ErrCorrupt, f.Header.Version)
	}
	last := int64(0)
	for i, ev := range f.Events {
		if ev.Frame < last {
			return fmt.Errorf("%w: event %d frame %d regresses below %d", ErrCorrupt, i, ev.Frame, last)
		}
		last = ev.Frame
	}
	if f.Header.EventCount != len(f.Events) {
		return fmt.Errorf("%w: header claims %d events, file has %d", ErrCorrupt, f.Header.EventCount, len(f.Events))
	}
	return nil
}

// Cache builds an LLM replay cache from the recorded calls, for
// deterministic re-runs on backends without seed support.
func (f *File) Cache() *llm.ReplayCache {
	return llm.NewReplayCache(f.LLMCalls)
}

// LastCheckpoint returns the newest checkpoint, or nil when none was
// logged. Continuation resumes from here.
func (f *File) LastCheckpoint() *Checkpoint {
	if len(f.Checkpoints) == 0 {
		return nil
	}
	return &f.Checkpoints[len(f.Checkpoints)-1]
}

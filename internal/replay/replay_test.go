package replay

import (
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/llm"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	l, err := NewLogger(map[string]any{"seed": 42}, 42, "test-model", "fantasy")
	if err != nil {
		t.Fatal(err)
	}
	events := []eventbus.Event{
		{Frame: 1, Type: "game_started"},
		{Frame: 1, Type: "action_executed", Actor: "hero", Payload: map[string]any{"actionType": "rest"}},
		{Frame: 2, Type: "frame_update"},
	}
	for _, ev := range events {
		if err := l.LogEvent(ev); err != nil {
			t.Fatal(err)
		}
	}
	l.LogLLMCall(llm.CallRecord{Frame: 1, Subsystem: "AutonomousDecider", Seed: 1042, Prompt: "p", Response: "r", Tokens: 5})
	if err := l.LogCheckpoint(2, map[string]any{"frame": 2}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "s.replay.gz")
	if err := l.Save(path); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	h := f.Header
	if h.Version != Version || h.GameSeed != 42 || h.Model != "test-model" || h.Theme != "fantasy" {
		t.Fatalf("header = %+v", h)
	}
	if h.EventCount != 3 || h.LLMCallCount != 1 || h.CheckpointCount != 1 || h.FrameCount != 2 {
		t.Fatalf("counts = %+v", h)
	}
	if f.Events[1].Payload["actionType"] != "rest" {
		t.Fatalf("event payload lost: %v", f.Events[1].Payload)
	}
	if cp := f.LastCheckpoint(); cp == nil || cp.Frame != 2 {
		t.Fatalf("last checkpoint = %v", cp)
	}
}

func TestLogEvent_RejectsFrameRegression(t *testing.T) {
	l, err := NewLogger(nil, 1, "m", "t")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.LogEvent(eventbus.Event{Frame: 5, Type: "frame_update"}); err != nil {
		t.Fatal(err)
	}
	if err := l.LogEvent(eventbus.Event{Frame: 4, Type: "frame_update"}); err == nil {
		t.Fatal("frame regression accepted")
	}
}

func TestLoad_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.replay.gz")
	if err := os.WriteFile(path, []byte("not a replay"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestLoad_RejectsWrongDocumentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.replay.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	zw.Write([]byte(`{"header":{}}`))
	zw.Close()
	f.Close()

	if _, err := Load(path); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt for missing version", err)
	}
}

func TestCache_AnswersFromRecordedCalls(t *testing.T) {
	f := &File{
		Header: Header{Version: Version},
		LLMCalls: []llm.CallRecord{
			{Frame: 3, Subsystem: "DialogueSubsystem", Seed: 2042, Response: "Well met."},
		},
	}
	cache := f.Cache()
	rec, ok := cache.Get(3, "DialogueSubsystem", 2042)
	if !ok || rec.Response != "Well met." {
		t.Fatalf("cache lookup = %+v, %v", rec, ok)
	}
}

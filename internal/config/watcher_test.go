package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayfarer.yaml")
	writeConfig(t, path, "game:\n  fps: 2\n")

	changed := make(chan DiffResult, 1)
	w, err := NewWatcher(path, func(old, new *Config) {
		changed <- Diff(old, new)
	}, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if w.Current().Game.FPS != 2 {
		t.Fatalf("initial fps = %v", w.Current().Game.FPS)
	}

	// Force a distinct mtime before rewriting.
	time.Sleep(30 * time.Millisecond)
	writeConfig(t, path, "game:\n  fps: 8\n")

	select {
	case d := <-changed:
		if !d.FPSChanged || d.NewFPS != 8 {
			t.Fatalf("diff = %+v, want fps 8", d)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never fired")
	}
	if w.Current().Game.FPS != 8 {
		t.Fatalf("Current fps = %v after reload", w.Current().Game.FPS)
	}
}

func TestWatcher_KeepsOldConfigOnInvalidRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayfarer.yaml")
	writeConfig(t, path, "game:\n  fps: 2\n")

	w, err := NewWatcher(path, nil, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(30 * time.Millisecond)
	writeConfig(t, path, "game:\n  fps: 9000\n") // out of range

	time.Sleep(200 * time.Millisecond)
	if w.Current().Game.FPS != 2 {
		t.Fatalf("fps = %v, want old value kept", w.Current().Game.FPS)
	}
}

func TestWatcher_RejectsMissingFile(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("missing file accepted")
	}
}

package loop

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeStepper counts frames and goes terminal at a chosen frame.
type fakeStepper struct {
	frame  int64
	deadAt int64
}

func (f *fakeStepper) Step(ctx context.Context) bool {
	f.frame++
	return f.deadAt == 0 || f.frame < f.deadAt
}

func (f *fakeStepper) Frame() int64 { return f.frame }

func TestNew_RejectsOutOfRangeFPS(t *testing.T) {
	for _, fps := range []float64{0.1, 61, -2} {
		if _, err := New(&fakeStepper{}, Config{FPS: fps}); err == nil {
			t.Fatalf("fps %v accepted", fps)
		}
	}
	if _, err := New(&fakeStepper{}, Config{}); err != nil {
		t.Fatalf("default fps rejected: %v", err)
	}
}

func TestRun_StopsAtFrameBudget(t *testing.T) {
	s := &fakeStepper{}
	r, err := New(s, Config{FPS: 60, MaxFrames: 5})
	if err != nil {
		t.Fatal(err)
	}
	frames, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if frames != 5 || s.frame != 5 {
		t.Fatalf("frames = %d (stepper %d), want 5", frames, s.frame)
	}
}

func TestRun_EndsWhenSessionCannotContinue(t *testing.T) {
	s := &fakeStepper{deadAt: 3}
	r, err := New(s, Config{FPS: 60})
	if err != nil {
		t.Fatal(err)
	}
	frames, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if frames != 3 {
		t.Fatalf("frames = %d, want 3", frames)
	}
}

func TestRun_HonorsContextCancellation(t *testing.T) {
	s := &fakeStepper{}
	r, err := New(s, Config{FPS: 60})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSetRate_ValidatesBounds(t *testing.T) {
	r, err := New(&fakeStepper{}, Config{FPS: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.SetRate(0.1); err == nil {
		t.Fatal("out-of-range rate accepted")
	}
	if err := r.SetRate(10); err != nil {
		t.Fatal(err)
	}
	// A second change before the loop consumes the first replaces it.
	if err := r.SetRate(20); err != nil {
		t.Fatal(err)
	}
}

func TestStop_EndsRunCleanly(t *testing.T) {
	s := &fakeStepper{}
	r, err := New(s, Config{FPS: 60})
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		r.Stop()
		r.Stop() // idempotent
	}()
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("err = %v, want nil after Stop", err)
	}
}

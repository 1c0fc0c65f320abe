package resilience

import (
	"strings"
	"testing"
	"time"
)

func TestFallbackLog_CountersAndEmit(t *testing.T) {
	var emitted []Fallback
	fl := NewFallbackLog(func(fb Fallback) { emitted = append(emitted, fb) })

	fl.Log(Fallback{Subsystem: "DialogueSubsystem", Operation: "greeting", Reason: ReasonUnavailable})
	fl.Log(Fallback{Subsystem: "DialogueSubsystem", Operation: "reply", Reason: ReasonTimeout})
	fl.Log(Fallback{Subsystem: "CombatSubsystem", Operation: "narration", Reason: ReasonUnavailable})

	if got := fl.Total(); got != 3 {
		t.Fatalf("Total() = %d, want 3", got)
	}
	if got := fl.CountBySubsystem("DialogueSubsystem"); got != 2 {
		t.Fatalf("CountBySubsystem(dialogue) = %d, want 2", got)
	}
	if got := fl.CountByReason(ReasonUnavailable); got != 2 {
		t.Fatalf("CountByReason(unavailable) = %d, want 2", got)
	}
	if len(emitted) != 3 {
		t.Fatalf("emit hook fired %d times, want 3", len(emitted))
	}
	if emitted[0].Timestamp.IsZero() {
		t.Fatal("emitted entry missing timestamp")
	}
}

func TestFallbackLog_TruncatesText(t *testing.T) {
	fl := NewFallbackLog(nil)
	fl.Log(Fallback{
		Subsystem:    "DialogueSubsystem",
		Reason:       ReasonError,
		FallbackText: strings.Repeat("x", 500),
	})
	recent := fl.Recent()
	if len(recent) != 1 {
		t.Fatalf("len(Recent()) = %d, want 1", len(recent))
	}
	if len(recent[0].FallbackText) != fallbackTextLimit {
		t.Fatalf("text length = %d, want %d", len(recent[0].FallbackText), fallbackTextLimit)
	}
}

func TestFallbackLog_RingIsBounded(t *testing.T) {
	fl := NewFallbackLog(nil)
	for i := 0; i < defaultRingSize+10; i++ {
		fl.Log(Fallback{Subsystem: "Decider", Reason: ReasonParse})
	}
	if got := len(fl.Recent()); got != defaultRingSize {
		t.Fatalf("len(Recent()) = %d, want %d", got, defaultRingSize)
	}
	if got := fl.Total(); got != defaultRingSize+10 {
		t.Fatalf("Total() = %d, want %d", got, defaultRingSize+10)
	}
}

func TestFallbackLog_Rate(t *testing.T) {
	fl := NewFallbackLog(nil)
	now := time.Now()
	fl.Log(Fallback{Subsystem: "Decider", Reason: ReasonTimeout, Timestamp: now.Add(-30 * time.Second)})
	fl.Log(Fallback{Subsystem: "Decider", Reason: ReasonTimeout, Timestamp: now.Add(-10 * time.Second)})
	fl.Log(Fallback{Subsystem: "Decider", Reason: ReasonTimeout, Timestamp: now.Add(-10 * time.Minute)})

	// Two entries inside the 1-minute window → 2 per minute.
	if got := fl.Rate(time.Minute); got != 2 {
		t.Fatalf("Rate(1m) = %v, want 2", got)
	}
}

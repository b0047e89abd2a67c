package naturaltime

import (
	"testing"
	"time"
)

func TestParserRecognizesRelativeText(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

	got, ok := NewParser().Evaluate("in 20 minutes", time.UTC, now)
	if !ok {
		t.Fatal("expected a match for relative text")
	}
	if want := now.Add(20 * time.Minute); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParserRejectsNoise(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	if _, ok := NewParser().Evaluate("buy milk", time.UTC, now); ok {
		t.Fatal("expected no match for text without a time expression")
	}
}

func TestNull(t *testing.T) {
	t.Parallel()
	if _, ok := (Null{}).Evaluate("in 20 minutes", time.UTC, time.Now()); ok {
		t.Fatal("Null must never match")
	}
}

package reminder

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var now = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func TestAdvanceOneShotAlwaysDeletes(t *testing.T) {
	t.Parallel()
	r := &Reminder{UID: "x", UTCTime: now.Add(-time.Hour), Timezone: "UTC"}
	if _, act := Advance(r, now, zerolog.Nop()); act != ActionDelete {
		t.Fatalf("one-shot Advance = %v, want ActionDelete", act)
	}
	// even a one-shot far in the future deletes
	r.UTCTime = now.Add(time.Hour)
	if _, act := Advance(r, now, zerolog.Nop()); act != ActionDelete {
		t.Fatalf("future one-shot Advance = %v, want ActionDelete", act)
	}
}

func TestAdvanceSecondsMonotonic(t *testing.T) {
	t.Parallel()
	r := &Reminder{
		UID:             "x",
		UTCTime:         now.Add(-30 * time.Minute),
		Timezone:        "UTC",
		IntervalSeconds: 600,
	}

	prev := r.UTCTime
	cur := now
	for i := 0; i < 5; i++ {
		next, act := Advance(r, cur, zerolog.Nop())
		if act != ActionReschedule {
			t.Fatalf("iteration %d: act = %v, want ActionReschedule", i, act)
		}
		if !next.After(cur) {
			t.Fatalf("iteration %d: %v not strictly after now %v", i, next, cur)
		}
		if !next.After(prev) {
			t.Fatalf("iteration %d: %v not after previous %v", i, next, prev)
		}
		prev = next
		r.UTCTime = next
		cur = next // next call happens once the new due time is reached
	}
}

func TestAdvanceCatchesUpInOneCall(t *testing.T) {
	t.Parallel()
	r := &Reminder{
		UID:             "x",
		UTCTime:         now.Add(-24 * time.Hour),
		Timezone:        "UTC",
		IntervalSeconds: 600,
	}
	next, act := Advance(r, now, zerolog.Nop())
	if act != ActionReschedule {
		t.Fatalf("act = %v", act)
	}
	if !next.After(now) || next.Sub(now) > 600*time.Second {
		t.Fatalf("next = %v, want within one interval after %v", next, now)
	}
}

func TestAdvanceMonths(t *testing.T) {
	t.Parallel()
	// due Jan 31; monthly recurrence clamps to the end of February
	due := time.Date(2025, time.January, 31, 9, 0, 0, 0, time.UTC)
	r := &Reminder{
		UID:            "x",
		UTCTime:        due,
		Timezone:       "UTC",
		IntervalMonths: 1,
	}
	next, act := Advance(r, due.Add(time.Minute), zerolog.Nop())
	if act != ActionReschedule {
		t.Fatalf("act = %v", act)
	}
	want := time.Date(2025, time.February, 28, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestAdvanceMonthsRespectsTimezone(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 23:30 Sydney on 31 Mar is 12:30 UTC; the next monthly occurrence
	// must stay at 23:30 Sydney, not 23:30 UTC.
	due := time.Date(2025, time.March, 31, 23, 30, 0, 0, loc)
	r := &Reminder{
		UID:            "x",
		UTCTime:        due.UTC(),
		Timezone:       "Australia/Sydney",
		IntervalMonths: 1,
	}
	next, act := Advance(r, due.Add(time.Minute), zerolog.Nop())
	if act != ActionReschedule {
		t.Fatalf("act = %v", act)
	}
	want := time.Date(2025, time.April, 30, 23, 30, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next.In(loc), want)
	}
}

func TestAdvanceExpiredDeletes(t *testing.T) {
	t.Parallel()
	r := &Reminder{
		UID:             "x",
		UTCTime:         now.Add(-time.Hour),
		Timezone:        "UTC",
		IntervalSeconds: 600,
		Expires:         now.Add(-30 * time.Minute),
	}
	if _, act := Advance(r, now, zerolog.Nop()); act != ActionDelete {
		t.Fatalf("expired Advance = %v, want ActionDelete", act)
	}
}

func TestAdvanceUnexpiredReschedules(t *testing.T) {
	t.Parallel()
	r := &Reminder{
		UID:             "x",
		UTCTime:         now.Add(-time.Minute),
		Timezone:        "UTC",
		IntervalSeconds: 600,
		Expires:         now.Add(time.Hour),
	}
	next, act := Advance(r, now, zerolog.Nop())
	if act != ActionReschedule {
		t.Fatalf("act = %v", act)
	}
	if next.After(r.Expires) {
		t.Fatalf("next %v past expiry %v", next, r.Expires)
	}
}

func TestAdvanceBadTimezoneFallsBack(t *testing.T) {
	t.Parallel()
	r := &Reminder{
		UID:             "x",
		UTCTime:         now.Add(-time.Minute),
		Timezone:        "Mars/OlympusMons",
		IntervalSeconds: 600,
	}
	next, act := Advance(r, now, zerolog.Nop())
	if act != ActionReschedule || !next.After(now) {
		t.Fatalf("got %v, %v", next, act)
	}
}

func TestAdvanceCalendarCeiling(t *testing.T) {
	t.Parallel()
	// due time near the representable ceiling: the overflowing month
	// step is skipped and the pre-overflow value is kept
	due := time.Date(9999, time.November, 1, 0, 0, 0, 0, time.UTC)
	r := &Reminder{
		UID:            "x",
		UTCTime:        due,
		Timezone:       "UTC",
		IntervalMonths: 6,
	}
	next, act := Advance(r, due.Add(time.Minute), zerolog.Nop())
	if act != ActionReschedule {
		t.Fatalf("act = %v", act)
	}
	if !next.Equal(due) {
		t.Fatalf("next = %v, want unchanged %v", next, due)
	}
}

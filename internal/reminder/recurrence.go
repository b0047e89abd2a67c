package reminder

import (
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Action is the recurrence engine's verdict for a due reminder.
type Action int

const (
	// ActionReschedule: update the stored due time to the returned instant.
	ActionReschedule Action = iota
	// ActionDelete: remove the reminder row.
	ActionDelete
)

// MaxYear is the ceiling of the store's datetime representation. Unit
// additions that would pass it are skipped, keeping the pre-overflow
// value.
const MaxYear = 9999

const maxStepSeconds = uint64(math.MaxInt64 / int64(time.Second))

// Advance computes the next valid due time for a due reminder, or
// decides it must be removed. It is pure: the caller applies the
// returned action to the store.
//
// The stored due time is interpreted in the reminder's timezone and
// the interval components are applied in fixed order, months then
// seconds, until the result is strictly after now. A one-shot reminder
// (no interval) is always deleted, as is a recurring one whose next
// occurrence passes its expiry bound.
func Advance(r *Reminder, now time.Time, log zerolog.Logger) (time.Time, Action) {
	if !r.Recurring() {
		return time.Time{}, ActionDelete
	}

	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		log.Warn().Str("uid", r.UID).Str("timezone", r.Timezone).Err(err).
			Msg("unknown reminder timezone, falling back to UTC")
		loc = time.UTC
	}

	t := r.UTCTime.In(loc)
	for !t.After(now) {
		moved := false
		if r.IntervalMonths > 0 {
			next, ok := addMonths(t, int(r.IntervalMonths))
			if ok {
				t = next
				moved = true
			} else {
				log.Warn().Str("uid", r.UID).Time("at", t).
					Msg("month addition overflows calendar range, keeping previous value")
			}
		}
		if r.IntervalSeconds > 0 {
			if next := addSeconds(t, r.IntervalSeconds); next.Year() <= MaxYear {
				t = next
				moved = true
			} else {
				log.Warn().Str("uid", r.UID).Time("at", t).
					Msg("second addition overflows calendar range, keeping previous value")
			}
		}
		if !moved {
			// both units pinned at the ceiling; the ceiling is in the
			// future, so stop rather than spin
			break
		}
	}

	if !r.Expires.IsZero() && t.After(r.Expires) {
		return time.Time{}, ActionDelete
	}
	return t.UTC(), ActionReschedule
}

func addSeconds(t time.Time, sec uint64) time.Time {
	if sec > maxStepSeconds {
		// cannot be represented as a single Duration; saturate past
		// the ceiling so the caller logs and keeps the prior value
		return time.Date(MaxYear+1, 1, 1, 0, 0, 0, 0, t.Location())
	}
	return t.Add(time.Duration(sec) * time.Second)
}

// addMonths advances by calendar months, clamping the day to the
// target month's length (31 Jan + 1 month = 28/29 Feb, not 2/3 Mar).
func addMonths(t time.Time, months int) (time.Time, bool) {
	anchor := time.Date(t.Year(), t.Month(), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	anchor = anchor.AddDate(0, months, 0)
	if anchor.Year() > MaxYear {
		return time.Time{}, false
	}
	day := t.Day()
	if last := daysIn(anchor.Year(), anchor.Month()); day > last {
		day = last
	}
	return time.Date(anchor.Year(), anchor.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()), true
}

func daysIn(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

package reminder

import "errors"

// Construction errors. These are user-recoverable: the builder reports
// them per destination and they are surfaced as rejection messages,
// never logged as system faults.
var (
	// ErrPastTime: the nudged due time is more than a minute in the past.
	ErrPastTime = errors.New("reminder: time is in the past")

	// ErrLongTime: date arithmetic left the store's representable range.
	ErrLongTime = errors.New("reminder: time is too far in the future")

	// ErrShortInterval: the interval is below the configured minimum.
	ErrShortInterval = errors.New("reminder: interval too short")

	// ErrLongInterval: the interval is above the configured maximum.
	ErrLongInterval = errors.New("reminder: interval too long")

	// ErrInvalidTag: the destination cannot be resolved to a reachable
	// channel or user in the owning scope.
	ErrInvalidTag = errors.New("reminder: invalid destination")
)

// Describe maps a construction error to the message shown to the
// reminder's owner.
func Describe(err error) string {
	switch {
	case errors.Is(err, ErrPastTime):
		return "Please ensure the time provided is in the future."
	case errors.Is(err, ErrLongTime):
		return "That time is too far in the future. Please specify a shorter time."
	case errors.Is(err, ErrShortInterval):
		return "Please ensure the interval provided is longer than the minimum interval."
	case errors.Is(err, ErrLongInterval):
		return "Please ensure the interval specified is shorter than the maximum duration."
	case errors.Is(err, ErrInvalidTag):
		return "Couldn't find a location by your tag. Your tag must be either a channel or a user (not a role)."
	default:
		return "Your reminder could not be created: " + err.Error()
	}
}

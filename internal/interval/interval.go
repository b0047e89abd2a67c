// Package interval parses human-entered duration expressions such as
// "2h 37min" or "1M 3d" into a calendar-aware interval.
//
// Months are kept separate from seconds because a month is not a fixed
// number of seconds; the recurrence engine applies them as calendar
// units. Capital M means months, lowercase m means minutes.
package interval

import (
	"errors"
	"fmt"
)

// Interval is the parsed value. Immutable once built; successive tokens
// in one input accumulate additively.
type Interval struct {
	Months uint64
	Sec    uint64
}

// IsZero reports whether the interval carries no duration at all.
func (iv Interval) IsZero() bool { return iv.Months == 0 && iv.Sec == 0 }

// TotalSeconds approximates the interval length with 30-day months.
// Used only for bounds checks, never for recurrence arithmetic.
func (iv Interval) TotalSeconds() uint64 {
	return iv.Sec + iv.Months*30*86400
}

var (
	// ErrEmpty is returned for empty or whitespace-only input.
	ErrEmpty = errors.New("interval: value was empty")

	// ErrNumberOverflow is returned when a value does not fit in 64 bits.
	ErrNumberOverflow = errors.New("interval: number is too large")
)

// InvalidCharacterError reports a byte that is not a digit, a unit
// letter, or whitespace.
type InvalidCharacterError struct {
	Offset int
}

func (e *InvalidCharacterError) Error() string {
	return fmt.Sprintf("interval: invalid character at %d", e.Offset)
}

// NumberExpectedError reports a position where a number was required,
// including a trailing digit sequence with no unit.
type NumberExpectedError struct {
	Offset int
}

func (e *NumberExpectedError) Error() string {
	return fmt.Sprintf("interval: expected number at %d", e.Offset)
}

// UnknownUnitError reports a unit string that is not in the unit table.
type UnknownUnitError struct {
	Start int
	End   int
	Unit  string
	Value uint64
}

func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("interval: unknown time unit %q", e.Unit)
}

// Parse parses a sequence of <number><unit> tokens separated by
// optional whitespace. Sub-second units accumulate fractionally and
// truncate toward zero. All arithmetic is checked; overflow yields
// ErrNumberOverflow.
func Parse(s string) (Interval, error) {
	p := &parser{src: s}
	return p.parse()
}

type parser struct {
	src string
	pos int

	months uint64
	sec    uint64
	nsec   uint64
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// firstNumber skips whitespace and consumes a single leading digit.
// ok is false at end of input.
func (p *parser) firstNumber() (n uint64, ok bool, err error) {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case isDigit(c):
			p.pos++
			return uint64(c - '0'), true, nil
		case isSpace(c):
			p.pos++
		default:
			return 0, false, &NumberExpectedError{Offset: p.pos}
		}
	}
	return 0, false, nil
}

func (p *parser) parse() (Interval, error) {
	n, ok, err := p.firstNumber()
	if err != nil {
		return Interval{}, err
	}
	if !ok {
		return Interval{}, ErrEmpty
	}

	for {
		// Remaining digits of the number, up to the unit.
		unitStart := -1
	digits:
		for p.pos < len(p.src) {
			c := p.src[p.pos]
			switch {
			case isDigit(c):
				nn, err := mulAdd(n, uint64(c-'0'))
				if err != nil {
					return Interval{}, err
				}
				n = nn
			case isSpace(c):
				// digits may be separated from their unit by spaces
			case isAlpha(c):
				unitStart = p.pos
				break digits
			default:
				return Interval{}, &InvalidCharacterError{Offset: p.pos}
			}
			p.pos++
		}
		if unitStart < 0 {
			// number ran into end of input with no unit
			return Interval{}, &NumberExpectedError{Offset: p.pos}
		}

		// The unit itself. A digit ends it and starts the next token.
		unitEnd := -1
	unit:
		for p.pos < len(p.src) {
			c := p.src[p.pos]
			switch {
			case isAlpha(c):
				p.pos++
			case isDigit(c):
				unitEnd = p.pos
				break unit
			case isSpace(c):
				unitEnd = p.pos
				p.pos++
				break unit
			default:
				return Interval{}, &InvalidCharacterError{Offset: p.pos}
			}
		}
		if unitEnd < 0 {
			unitEnd = p.pos
		}
		if err := p.applyUnit(n, unitStart, unitEnd); err != nil {
			return Interval{}, err
		}

		if p.pos < len(p.src) && isDigit(p.src[p.pos]) {
			// unit ran directly into the next number, e.g. "1h30m"
			n = uint64(p.src[p.pos] - '0')
			p.pos++
			continue
		}

		n, ok, err = p.firstNumber()
		if err != nil {
			return Interval{}, err
		}
		if !ok {
			return Interval{Months: p.months, Sec: p.sec}, nil
		}
	}
}

// applyUnit folds one <number><unit> token into the accumulator.
func (p *parser) applyUnit(n uint64, start, end int) error {
	unit := p.src[start:end]

	var months, sec, nsec uint64
	var err error
	switch unit {
	case "nanos", "nsec", "ns":
		nsec = n
	case "usec", "us":
		nsec, err = mul(n, 1_000)
	case "millis", "msec", "ms":
		nsec, err = mul(n, 1_000_000)
	case "seconds", "second", "secs", "sec", "s":
		sec = n
	case "minutes", "minute", "mins", "min", "m":
		sec, err = mul(n, 60)
	case "hours", "hour", "hrs", "hr", "h":
		sec, err = mul(n, 3600)
	case "days", "day", "d":
		sec, err = mul(n, 86400)
	case "weeks", "week", "w":
		sec, err = mul(n, 86400*7)
	case "months", "month", "M":
		months = n
	case "years", "year", "y":
		months, err = mul(n, 12)
	default:
		return &UnknownUnitError{Start: start, End: end, Unit: unit, Value: n}
	}
	if err != nil {
		return err
	}

	nsec, err = add(p.nsec, nsec)
	if err != nil {
		return err
	}
	if nsec >= 1_000_000_000 {
		sec, err = add(sec, nsec/1_000_000_000)
		if err != nil {
			return err
		}
		nsec %= 1_000_000_000
	}
	if p.sec, err = add(p.sec, sec); err != nil {
		return err
	}
	if p.months, err = add(p.months, months); err != nil {
		return err
	}
	p.nsec = nsec
	return nil
}

func mul(a, b uint64) (uint64, error) {
	if a != 0 && a > ^uint64(0)/b {
		return 0, ErrNumberOverflow
	}
	return a * b, nil
}

func add(a, b uint64) (uint64, error) {
	if a+b < a {
		return 0, ErrNumberOverflow
	}
	return a + b, nil
}

func mulAdd(n, digit uint64) (uint64, error) {
	nn, err := mul(n, 10)
	if err != nil {
		return 0, err
	}
	return add(nn, digit)
}

// Package timeparse turns free-text time expressions into absolute
// instants or signed offsets from now.
//
// Two grammars are supported. Text containing '/' or ':' is an explicit
// clock/date specification ("16:30", "1/1/25-9:00"). Anything else is a
// displacement ("90m", "-10m" for ago) over the units s, m, h and d.
// Natural-language input is handled elsewhere; see the naturaltime
// subpackage.
package timeparse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/timeparse/naturaltime"
)

// ErrInvalidTime is the base error for all parse failures. Wrapped
// errors carry detail about which part failed.
var ErrInvalidTime = errors.New("timeparse: invalid time")

// TimeParser holds one expression and the timezone it is interpreted in.
type TimeParser struct {
	loc      *time.Location
	text     string
	inverted bool
	explicit bool
}

// New builds a parser for text interpreted in loc. A leading '-' on a
// displacement means "ago".
func New(text string, loc *time.Location) *TimeParser {
	if loc == nil {
		loc = time.UTC
	}
	text = strings.TrimSpace(text)
	inverted := strings.HasPrefix(text, "-")
	return &TimeParser{
		loc:      loc,
		text:     strings.TrimPrefix(text, "-"),
		inverted: inverted,
		explicit: strings.ContainsAny(text, "/:"),
	}
}

// Resolve turns text into an absolute instant, trying the structured
// grammars first and falling back to the natural-language evaluator
// for anything they reject.
func Resolve(text string, loc *time.Location, eval naturaltime.Evaluator, now time.Time) (time.Time, error) {
	if eval == nil {
		eval = naturaltime.Null{}
	}
	ts, err := New(text, loc).TimestampAt(now)
	if err == nil {
		return time.Unix(ts, 0).UTC(), nil
	}
	if t, ok := eval.Evaluate(text, loc, now); ok {
		return t.UTC(), nil
	}
	return time.Time{}, err
}

// Timestamp resolves the expression to a Unix timestamp.
func (p *TimeParser) Timestamp() (int64, error) { return p.TimestampAt(time.Now()) }

// Displacement resolves the expression to a signed offset in seconds
// from now.
func (p *TimeParser) Displacement() (int64, error) { return p.DisplacementAt(time.Now()) }

// TimestampAt is Timestamp with an injected "now", for tests.
func (p *TimeParser) TimestampAt(now time.Time) (int64, error) {
	if p.explicit {
		t, err := p.processExplicit(now)
		if err != nil {
			return 0, err
		}
		return t.Unix(), nil
	}
	d, err := p.processDisplacement()
	if err != nil {
		return 0, err
	}
	return now.Unix() + d, nil
}

// DisplacementAt is Displacement with an injected "now", for tests.
func (p *TimeParser) DisplacementAt(now time.Time) (int64, error) {
	if p.explicit {
		t, err := p.processExplicit(now)
		if err != nil {
			return 0, err
		}
		return t.Unix() - now.Unix(), nil
	}
	return p.processDisplacement()
}

// processExplicit splits the text on the last '-' into an optional date
// part and a mandatory time part, applied against now in the parser's
// timezone with seconds zeroed first.
func (p *TimeParser) processExplicit(now time.Time) (time.Time, error) {
	datePart := ""
	timePart := p.text
	if i := strings.LastIndex(p.text, "-"); i >= 0 {
		datePart = strings.TrimSpace(p.text[:i])
		timePart = p.text[i+1:]
	}
	timePart = strings.TrimSpace(timePart)

	local := now.In(p.loc)
	year, month, day := local.Date()

	hour, minute, sec, err := parseHMS(timePart)
	if err != nil {
		return time.Time{}, err
	}

	hasDate := datePart != ""
	if hasDate {
		day, month, year, err = parseDMY(datePart, year)
		if err != nil {
			return time.Time{}, err
		}
	}

	t := time.Date(year, month, day, hour, minute, sec, 0, p.loc)
	if !hasDate && !t.After(local) {
		// clock time already passed today; roll to tomorrow
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

// parseHMS parses H:M:S, H:M or a bare H.
func parseHMS(s string) (hour, minute, sec int, err error) {
	if s == "" {
		return 0, 0, 0, fmt.Errorf("%w: missing time part", ErrInvalidTime)
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, 0, 0, fmt.Errorf("%w: bad time part %q", ErrInvalidTime, s)
	}
	nums := make([]int, len(parts))
	for i, part := range parts {
		n, convErr := strconv.Atoi(strings.TrimSpace(part))
		if convErr != nil {
			return 0, 0, 0, fmt.Errorf("%w: bad time part %q", ErrInvalidTime, s)
		}
		nums[i] = n
	}
	hour = nums[0]
	if len(nums) > 1 {
		minute = nums[1]
	}
	if len(nums) > 2 {
		sec = nums[2]
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || sec < 0 || sec > 59 {
		return 0, 0, 0, fmt.Errorf("%w: time field out of range in %q", ErrInvalidTime, s)
	}
	return hour, minute, sec, nil
}

// parseDMY parses D/M/Y or D/M. A two-digit year is 2000+YY.
func parseDMY(s string, defaultYear int) (day int, month time.Month, year int, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: bad date part %q", ErrInvalidTime, s)
	}
	nums := make([]int, len(parts))
	for i, part := range parts {
		n, convErr := strconv.Atoi(strings.TrimSpace(part))
		if convErr != nil {
			return 0, 0, 0, fmt.Errorf("%w: bad date part %q", ErrInvalidTime, s)
		}
		nums[i] = n
	}
	day = nums[0]
	m := nums[1]
	year = defaultYear
	if len(nums) == 3 {
		year = nums[2]
		if year < 100 {
			year += 2000
		}
	}
	if day < 1 || day > 31 || m < 1 || m > 12 || year > 9999 {
		return 0, 0, 0, fmt.Errorf("%w: date field out of range in %q", ErrInvalidTime, s)
	}
	return day, time.Month(m), year, nil
}

// processDisplacement evaluates the digit-then-unit grammar restricted
// to s, m, h and d. A trailing bare number counts as seconds.
func (p *TimeParser) processDisplacement() (int64, error) {
	var seconds, minutes, hours, days int64
	var buf int64
	for i := 0; i < len(p.text); i++ {
		c := p.text[i]
		switch {
		case c >= '0' && c <= '9':
			buf = buf*10 + int64(c-'0')
		case c == 's':
			seconds, buf = buf, 0
		case c == 'm':
			minutes, buf = buf, 0
		case c == 'h':
			hours, buf = buf, 0
		case c == 'd':
			days, buf = buf, 0
		case c == ' ':
		default:
			return 0, fmt.Errorf("%w: unexpected character %q at %d", ErrInvalidTime, c, i)
		}
	}

	total := seconds + minutes*60 + hours*3600 + days*86400 + buf
	if p.inverted {
		total = -total
	}
	return total, nil
}

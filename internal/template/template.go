// Package template rewrites the live time tags embedded in reminder
// content at send time.
//
// Two tag families are supported:
//
//	<<timefrom:1640000000:%d days %h hours>>  elapsed/remaining time
//	<<timenow:Europe/London:%H:%M>>           current wall clock in a zone
//
// Substitution is total: malformed tags collapse to the empty string
// and text without tags passes through unchanged. The timefrom pass
// runs before the timenow pass and neither pass re-scans its own
// output.
package template

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

var (
	timefromRe = regexp.MustCompile(`<<timefrom:(\d+):(.*?)>>`)
	// Known limitation: the zone class misses IANA names containing
	// '-' or '+' (America/Port-au-Prince, Etc/GMT+2), which pass
	// through verbatim instead of emptying.
	timenowRe = regexp.MustCompile(`<<timenow:([\w/]+):(.*?)>>`)
)

// Substitute expands all time tags in s against the current time.
func Substitute(s string) string { return SubstituteAt(s, time.Now()) }

// SubstituteAt is Substitute with an injected "now", for tests.
func SubstituteAt(s string, now time.Time) string {
	out := timefromRe.ReplaceAllStringFunc(s, func(tag string) string {
		m := timefromRe.FindStringSubmatch(tag)
		ts, err := strconv.ParseInt(m[1], 10, 64)
		format := m[2]
		if err != nil || format == "" {
			return ""
		}
		diff := now.Unix() - ts
		if diff < 0 {
			diff = -diff
		}
		return fmtDisplacement(format, uint64(diff))
	})

	return timenowRe.ReplaceAllStringFunc(out, func(tag string) string {
		m := timenowRe.FindStringSubmatch(tag)
		zone, format := m[1], m[2]
		if format == "" {
			return ""
		}
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return ""
		}
		return strftime.Format(format, now.In(loc))
	})
}

// fmtDisplacement expands %d, %h, %m and %s in format as successive
// divmods of seconds. A unit is only divided out when its placeholder
// appears, so the remainder matches the displayed granularity.
func fmtDisplacement(format string, seconds uint64) string {
	var days, hours, minutes uint64
	for _, u := range []struct {
		rep string
		out *uint64
		div uint64
	}{
		{"%d", &days, 86400},
		{"%h", &hours, 3600},
		{"%m", &minutes, 60},
	} {
		if strings.Contains(format, u.rep) {
			*u.out = seconds / u.div
			seconds %= u.div
		}
	}

	r := strings.NewReplacer(
		"%s", strconv.FormatUint(seconds, 10),
		"%m", strconv.FormatUint(minutes, 10),
		"%h", strconv.FormatUint(hours, 10),
		"%d", strconv.FormatUint(days, 10),
	)
	return r.Replace(format)
}

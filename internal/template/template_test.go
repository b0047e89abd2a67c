package template

import (
	"fmt"
	"testing"
	"time"
)

var now = time.Date(2025, time.June, 15, 12, 34, 56, 0, time.UTC)

func TestPlainTextUnchanged(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "take out the bins", "50% off <<not a tag>>"} {
		if got := SubstituteAt(s, now); got != s {
			t.Fatalf("SubstituteAt(%q) = %q, want unchanged", s, got)
		}
	}
}

func TestTimenow(t *testing.T) {
	t.Parallel()
	got := SubstituteAt("<<timenow:UTC:%H:%M>>", now)
	if got != "12:34" {
		t.Fatalf("got %q, want 12:34", got)
	}

	got = SubstituteAt("now: <<timenow:UTC:%Y-%m-%d>>!", now)
	if got != "now: 2025-06-15!" {
		t.Fatalf("got %q", got)
	}
}

func TestTimenowInvalidZone(t *testing.T) {
	t.Parallel()
	if got := SubstituteAt("x<<timenow:Not/AZone:%H>>y", now); got != "xy" {
		t.Fatalf("got %q, want xy", got)
	}
}

func TestTimefrom(t *testing.T) {
	t.Parallel()
	past := now.Add(-(26*time.Hour + 3*time.Minute + 5*time.Second)).Unix()

	tag := fmt.Sprintf("<<timefrom:%d:%%d days %%h hours %%m min %%s sec>>", past)
	if got := SubstituteAt(tag, now); got != "1 days 2 hours 3 min 5 sec" {
		t.Fatalf("got %q", got)
	}

	// without %d, hours absorb the days
	tag = fmt.Sprintf("<<timefrom:%d:%%h hours>>", past)
	if got := SubstituteAt(tag, now); got != "26 hours" {
		t.Fatalf("got %q", got)
	}

	// future timestamps use the absolute difference
	future := now.Add(90 * time.Second).Unix()
	tag = fmt.Sprintf("<<timefrom:%d:%%m:%%s>>", future)
	if got := SubstituteAt(tag, now); got != "1:30" {
		t.Fatalf("got %q", got)
	}
}

func TestMalformedTagsBecomeEmpty(t *testing.T) {
	t.Parallel()
	if got := SubstituteAt("a<<timefrom:123:>>b", now); got != "ab" {
		t.Fatalf("missing format: got %q", got)
	}
	if got := SubstituteAt("a<<timenow:UTC:>>b", now); got != "ab" {
		t.Fatalf("missing format: got %q", got)
	}
}

func TestBothFamiliesOnePass(t *testing.T) {
	t.Parallel()
	past := now.Add(-time.Minute).Unix()
	in := fmt.Sprintf("<<timefrom:%d:%%s s>> and <<timenow:UTC:%%H>>", past)
	if got := SubstituteAt(in, now); got != "60 s and 12" {
		t.Fatalf("got %q", got)
	}
}

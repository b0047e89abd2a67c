package interval

import (
	"errors"
	"testing"
)

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want Interval
	}{
		{name: "hours and minutes", in: "1h30m", want: Interval{Sec: 5400}},
		{name: "spaced tokens", in: "2h 37min", want: Interval{Sec: 2*3600 + 37*60}},
		{name: "months", in: "2M", want: Interval{Months: 2}},
		{name: "months and days", in: "1M 3d", want: Interval{Months: 1, Sec: 3 * 86400}},
		{name: "years are months", in: "2y", want: Interval{Months: 24}},
		{name: "weeks", in: "3w", want: Interval{Sec: 3 * 604800}},
		{name: "long names", in: "1 hour 12 minutes 5 seconds", want: Interval{Sec: 3600 + 12*60 + 5}},
		{name: "subsecond truncates", in: "1s 500ms", want: Interval{Sec: 1}},
		{name: "subsecond carries", in: "1500ms 600msec", want: Interval{Sec: 2}},
		{name: "additive repeats", in: "1m1m", want: Interval{Sec: 120}},
		{name: "number split from unit", in: "10 s", want: Interval{Sec: 10}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	if _, err := Parse(""); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Parse(\"\") = %v, want ErrEmpty", err)
	}
	if _, err := Parse("   "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Parse(whitespace) = %v, want ErrEmpty", err)
	}

	var numErr *NumberExpectedError
	if _, err := Parse("10"); !errors.As(err, &numErr) {
		t.Fatalf("Parse(\"10\") = %v, want NumberExpectedError", err)
	}
	if _, err := Parse("min"); !errors.As(err, &numErr) {
		t.Fatalf("Parse(\"min\") = %v, want NumberExpectedError", err)
	}

	if _, err := Parse("99999999999999999999y"); !errors.Is(err, ErrNumberOverflow) {
		t.Fatalf("overflow input = %v, want ErrNumberOverflow", err)
	}
	if _, err := Parse("18446744073709551615m"); !errors.Is(err, ErrNumberOverflow) {
		t.Fatalf("unit multiply overflow = %v, want ErrNumberOverflow", err)
	}

	var charErr *InvalidCharacterError
	if _, err := Parse("10?m"); !errors.As(err, &charErr) {
		t.Fatalf("Parse(\"10?m\") = %v, want InvalidCharacterError", err)
	}
	if charErr.Offset != 2 {
		t.Fatalf("InvalidCharacterError offset = %d, want 2", charErr.Offset)
	}

	var unitErr *UnknownUnitError
	if _, err := Parse("10parsecs"); !errors.As(err, &unitErr) {
		t.Fatalf("Parse(\"10parsecs\") = %v, want UnknownUnitError", err)
	}
	if unitErr.Unit != "parsecs" || unitErr.Value != 10 {
		t.Fatalf("UnknownUnitError = %+v", unitErr)
	}

	// capital M is months, lowercase is minutes; mixed case is unknown
	if _, err := Parse("1Min"); !errors.As(err, &unitErr) {
		t.Fatalf("Parse(\"1Min\") = %v, want UnknownUnitError", err)
	}
}

func TestTotalSeconds(t *testing.T) {
	t.Parallel()
	iv := Interval{Months: 2, Sec: 100}
	if got := iv.TotalSeconds(); got != 2*30*86400+100 {
		t.Fatalf("TotalSeconds = %d", got)
	}
	if !(Interval{}).IsZero() {
		t.Fatal("zero interval should report IsZero")
	}
}

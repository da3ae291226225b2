package cronexpr

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

func TestNextKnownDates(t *testing.T) {
	t.Parallel()
	utc := func(y int, m time.Month, d, h, min, s int) time.Time {
		return time.Date(y, m, d, h, min, s, 0, time.UTC)
	}
	tests := []struct {
		name  string
		expr  string
		after time.Time
		want  time.Time
	}{
		{name: "every minute", expr: "* * * * *", after: utc(2026, 10, 16, 10, 0, 30), want: utc(2026, 10, 16, 10, 1, 0)},
		{name: "strictly after", expr: "* * * * *", after: utc(2026, 10, 16, 10, 1, 0), want: utc(2026, 10, 16, 10, 2, 0)},
		{name: "step minute", expr: "*/10 * * * *", after: utc(2026, 10, 16, 10, 0, 0), want: utc(2026, 10, 16, 10, 10, 0)},
		{name: "year rollover", expr: "0 0 1 1 *", after: utc(2026, 12, 31, 23, 59, 59), want: utc(2027, 1, 1, 0, 0, 0)},
		{name: "day and weekday both restricted", expr: "15 1 5 12 6", after: utc(2026, 10, 16, 0, 0, 0), want: utc(2027, 12, 5, 1, 15, 0)},
		{name: "day and weekday next occurrence", expr: "15 1 5 12 6", after: utc(2027, 12, 5, 1, 15, 0), want: utc(2032, 12, 5, 1, 15, 0)},
		{name: "leap day on sunday", expr: "0 0 29 2 6", after: utc(2026, 1, 1, 0, 0, 0), want: utc(2032, 2, 29, 0, 0, 0)},
		{name: "leap day", expr: "0 12 29 2 *", after: utc(2026, 3, 1, 0, 0, 0), want: utc(2028, 2, 29, 12, 0, 0)},
		{name: "day step from field minimum", expr: "0 0 */10 * *", after: utc(2026, 1, 25, 0, 0, 0), want: utc(2026, 1, 31, 0, 0, 0)},
		{name: "day step wraps month", expr: "0 0 */10 * *", after: utc(2026, 1, 31, 0, 0, 0), want: utc(2026, 2, 1, 0, 0, 0)},
		{name: "monday is zero", expr: "30 8 * * 0", after: utc(2026, 10, 16, 9, 0, 0), want: utc(2026, 10, 19, 8, 30, 0)},
		{name: "sunday is six", expr: "0 9 * * 6", after: utc(2026, 10, 16, 9, 0, 0), want: utc(2026, 10, 18, 9, 0, 0)},
		{name: "friday from friday", expr: "0 9 * * 4", after: utc(2026, 10, 16, 9, 0, 0), want: utc(2026, 10, 23, 9, 0, 0)},
		{name: "day 31 skips short months", expr: "0 0 31 * *", after: utc(2026, 4, 1, 0, 0, 0), want: utc(2026, 5, 31, 0, 0, 0)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := MustParse(tt.expr).Next(tt.after)
			if err != nil {
				t.Fatalf("Next error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Next(%s) = %s, want %s", tt.after, got, tt.want)
			}
		})
	}
}

func TestNextNoFutureMatch(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"0 0 31 2 *", "0 0 30 2 *", "0 0 31 4,6,9,11 *"} {
		_, err := MustParse(raw).Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		if !errors.Is(err, ErrNoFutureMatch) {
			t.Fatalf("Next(%q) error = %v, want ErrNoFutureMatch", raw, err)
		}
	}
}

func TestNextZeroExpression(t *testing.T) {
	t.Parallel()
	if _, err := (Expression{}).Next(time.Now()); !errors.Is(err, ErrMalformedExpression) {
		t.Fatalf("expected ErrMalformedExpression, got %v", err)
	}
}

func TestNextIsStrictlyLaterAndMatches(t *testing.T) {
	t.Parallel()
	exprs := []string{
		"* * * * *", "*/7 */5 */4 * *", "0 0 * * 0", "5,35 * 1,15 * *",
		"59 23 31 12 *", "0 */6 * * 1,3,5", "15 1 5 12 6", "0 0 1 */3 *",
	}
	start := time.Date(2026, 10, 16, 10, 17, 42, 0, time.UTC)
	for _, raw := range exprs {
		e := MustParse(raw)
		t0 := start
		for i := 0; i < 25; i++ {
			next, err := e.Next(t0)
			if err != nil {
				t.Fatalf("%q: Next(%s) error: %v", raw, t0, err)
			}
			if !next.After(t0) {
				t.Fatalf("%q: Next(%s) = %s is not after input", raw, t0, next)
			}
			if !e.Matches(next) {
				t.Fatalf("%q: Next(%s) = %s does not match", raw, t0, next)
			}
			if next.Second() != 0 || next.Nanosecond() != 0 {
				t.Fatalf("%q: Next returned sub-minute time %s", raw, next)
			}
			t0 = next
		}
	}
}

// robfig/cron ORs day and day_of_week when both are restricted, so the
// comparison only covers expressions where at least one of them is "*".
// robfig counts weekdays from Sunday, so weekday fields are shifted by one.
func TestNextAgreesWithRobfig(t *testing.T) {
	t.Parallel()
	exprs := []struct{ ours, robfig string }{
		{"* * * * *", "* * * * *"},
		{"*/10 * * * *", "*/10 * * * *"},
		{"15 1 5 12 *", "15 1 5 12 *"},
		{"0 0 * * 6", "0 0 * * 0"},
		{"30 8 * * 0,2,4", "30 8 * * 1,3,5"},
		{"0 */6 * * *", "0 */6 * * *"},
		{"5,35 * 1,15 * *", "5,35 * 1,15 * *"},
		{"0 12 29 2 *", "0 12 29 2 *"},
		{"59 23 31 * *", "59 23 31 * *"},
		{"0 0 1 */3 *", "0 0 1 */3 *"},
		{"*/7 */5 */4 * *", "*/7 */5 */4 * *"},
		{"0 9 * * 5", "0 9 * * 6"},
	}
	starts := []time.Time{
		time.Date(2026, 10, 16, 10, 0, 30, 0, time.UTC),
		time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2028, 2, 28, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC),
	}
	for _, ex := range exprs {
		ours := MustParse(ex.ours)
		theirs, err := cron.ParseStandard(ex.robfig)
		if err != nil {
			t.Fatalf("robfig ParseStandard(%q): %v", ex.robfig, err)
		}
		for _, s := range starts {
			a, b := s, s
			for i := 0; i < 10; i++ {
				got, err := ours.Next(a)
				if err != nil {
					t.Fatalf("%q: Next(%s) error: %v", ex.ours, a, err)
				}
				want := theirs.Next(b)
				if !got.Equal(want) {
					t.Fatalf("%q: Next(%s) = %s, robfig %q = %s", ex.ours, a, got, ex.robfig, want)
				}
				a, b = got, want
			}
		}
	}
}

func TestNextAcrossDST(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	// 2026-03-08 02:00 EST jumps to 03:00 EDT (07:00 UTC).
	// 2026-11-01 02:00 EDT falls back to 01:00 EST (06:00 UTC).
	utc := func(m time.Month, d, h, min int) time.Time {
		return time.Date(2026, m, d, h, min, 0, 0, time.UTC)
	}
	tests := []struct {
		name  string
		expr  string
		after time.Time
		want  time.Time
	}{
		{name: "skipped wall time moves to next day", expr: "30 2 * * *", after: utc(3, 7, 17, 0), want: utc(3, 9, 6, 30)},
		{name: "hour after the gap", expr: "0 3 * * *", after: utc(3, 8, 5, 30), want: utc(3, 8, 7, 0)},
		{name: "every minute crosses the gap", expr: "* * * * *", after: utc(3, 8, 6, 59), want: utc(3, 8, 7, 0)},
		{name: "hourly crosses the gap", expr: "0 * * * *", after: utc(3, 8, 6, 0), want: utc(3, 8, 7, 0)},
		{name: "repeated wall time matches again", expr: "30 1 * * *", after: utc(11, 1, 5, 30), want: utc(11, 1, 6, 30)},
		{name: "after the repeated hour", expr: "30 1 * * *", after: utc(11, 1, 6, 30), want: utc(11, 2, 6, 30)},
		{name: "hour after fall back", expr: "0 2 * * *", after: utc(11, 1, 4, 30), want: utc(11, 1, 7, 0)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := MustParse(tt.expr).Next(tt.after.In(ny))
			if err != nil {
				t.Fatalf("Next error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Next(%s) = %s, want %s", tt.after.In(ny), got, tt.want.In(ny))
			}
			if got.Location() != ny {
				t.Fatalf("result location = %s, want %s", got.Location(), ny)
			}
		})
	}
}

func TestNextTerminatesInZonesWithTransitions(t *testing.T) {
	t.Parallel()
	zones := []string{"America/New_York", "Europe/Berlin", "Australia/Lord_Howe", "America/Santiago", "Asia/Kolkata"}
	exprs := []string{"30 2 * * *", "0 0 * * *", "0 0 1 * *", "15 */2 * * 6", "*/30 1,2,3 * * *"}
	for _, zone := range zones {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			t.Fatalf("LoadLocation(%s): %v", zone, err)
		}
		for _, raw := range exprs {
			e := MustParse(raw)
			prev := time.Date(2026, 1, 1, 0, 0, 0, 0, loc)
			for i := 0; i < 400; i++ {
				next, err := e.Next(prev)
				if err != nil {
					t.Fatalf("%s %q: Next(%s) error: %v", zone, raw, prev, err)
				}
				if !next.After(prev) || !e.Matches(next) {
					t.Fatalf("%s %q: Next(%s) = %s", zone, raw, prev, next)
				}
				prev = next
			}
		}
	}
}

func TestUpcoming(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	got := MustParse("*/20 10 * * *").Upcoming(start, 4)
	want := []time.Time{
		time.Date(2026, 10, 16, 10, 20, 0, 0, time.UTC),
		time.Date(2026, 10, 16, 10, 40, 0, 0, time.UTC),
		time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 10, 17, 10, 20, 0, 0, time.UTC),
	}
	if len(got) != len(want) {
		t.Fatalf("Upcoming returned %d times, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("Upcoming[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if n := len(MustParse("0 0 31 2 *").Upcoming(start, 3)); n != 0 {
		t.Fatalf("expected no upcoming times for unsatisfiable expression, got %d", n)
	}
}

package cronexpr

import (
	"fmt"
	"time"
)

// MaxLookaheadYears bounds the search performed by Next.
//
// A date pinned to a weekday (e.g. "0 0 29 2 6") can be up to 40 years away,
// so the window must cover that gap.
const MaxLookaheadYears = 50

// Next returns the earliest minute strictly after `after` that matches e.
//
// The result is in after's location. Matching uses the wall clock of that
// location: a wall time skipped by a DST change never matches, and a wall
// time repeated by one matches at both instants. If no such minute exists
// within MaxLookaheadYears the error wraps ErrNoFutureMatch.
func (e Expression) Next(after time.Time) (time.Time, error) {
	if !e.ok {
		return time.Time{}, fmt.Errorf("%w: empty expression", ErrMalformedExpression)
	}

	loc := after.Location()
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(MaxLookaheadYears, 0, 0)

	for !t.After(limit) {
		y, m, d := t.Date()
		var next time.Time
		switch {
		case !e.fields[Month].Matches(int(m)):
			next = wallTime(time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC), loc)
		case !e.dayMatches(t):
			next = wallTime(time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC), loc)
		case !e.fields[Hour].Matches(t.Hour()):
			next = wallTime(time.Date(y, m, d, t.Hour()+1, 0, 0, 0, time.UTC), loc)
		case !e.fields[Minute].Matches(t.Minute()):
			next = t.Add(time.Minute)
		default:
			return t, nil
		}
		// Around a DST change the wall-clock candidate can resolve to t or earlier.
		if !next.After(t) {
			next = t.Add(time.Minute)
		}
		t = next
	}
	return time.Time{}, fmt.Errorf("%w: %q within %d years of %s", ErrNoFutureMatch, e.String(), MaxLookaheadYears, after.Format(time.RFC3339))
}

// wallTime returns the first instant in loc whose wall clock reads w (a UTC
// value used as a plain wall reading) or later. time.Date resolves a wall
// time inside a DST gap to an instant that can read earlier than w; that
// instant is moved forward by the difference.
func wallTime(w time.Time, loc *time.Location) time.Time {
	t := time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), 0, 0, loc)
	y, m, d := t.Date()
	read := time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, time.UTC)
	if lag := w.Sub(read); lag > 0 {
		t = t.Add(lag)
	}
	return t
}

// Upcoming returns up to n consecutive trigger times after `after`.
// It stops early (without error) if the expression runs out of matches.
func (e Expression) Upcoming(after time.Time, n int) []time.Time {
	out := make([]time.Time, 0, max(n, 0))
	t := after
	for i := 0; i < n; i++ {
		next, err := e.Next(t)
		if err != nil {
			break
		}
		out = append(out, next)
		t = next
	}
	return out
}

package cronexpr

import (
	"fmt"
	"strings"
	"time"
)

// Expression is a parsed 5-field cron expression.
//
// The zero value is not a valid expression; use Parse.
type Expression struct {
	fields [numFields]Field
	ok     bool
}

// Parse parses text of the form "minute hour day month day_of_week".
//
// Fields are separated by single spaces. On failure the returned error wraps
// ErrMalformedExpression, ErrInvalidFieldSyntax or ErrInvalidFieldValue.
func Parse(text string) (Expression, error) {
	tokens := strings.Split(strings.TrimSpace(text), " ")
	if len(tokens) != numFields {
		return Expression{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedExpression, numFields, len(tokens))
	}

	var e Expression
	for i, tok := range tokens {
		f, err := parseField(Position(i), tok)
		if err != nil {
			return Expression{}, err
		}
		e.fields[i] = f
	}
	e.ok = true
	return e, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(text string) Expression {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

// IsZero reports whether e was not produced by Parse.
func (e Expression) IsZero() bool { return !e.ok }

// Field returns the field at pos.
func (e Expression) Field(pos Position) Field {
	f := e.fields[pos]
	if len(f.Values) > 0 {
		f.Values = append([]int(nil), f.Values...)
	}
	return f
}

// String renders the expression using the syntax it was parsed from.
func (e Expression) String() string {
	if !e.ok {
		return ""
	}
	parts := make([]string, numFields)
	for i, f := range e.fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, " ")
}

// Matches reports whether t (at minute granularity) satisfies every field.
func (e Expression) Matches(t time.Time) bool {
	if !e.ok {
		return false
	}
	return e.fields[Minute].Matches(t.Minute()) &&
		e.fields[Hour].Matches(t.Hour()) &&
		e.fields[Month].Matches(int(t.Month())) &&
		e.dayMatches(t)
}

// dayMatches applies the day / day_of_week rule: both must hold when both are
// restricted, otherwise only the restricted one (if any) applies.
func (e Expression) dayMatches(t time.Time) bool {
	dom, dow := e.fields[Day], e.fields[DayOfWeek]
	domOK := dom.Matches(t.Day())
	dowOK := dow.Matches(weekday(t))
	return domOK && dowOK
}

// MarshalText implements encoding.TextMarshaler.
func (e Expression) MarshalText() ([]byte, error) {
	if !e.ok {
		return nil, fmt.Errorf("%w: empty expression", ErrMalformedExpression)
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Expression) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// weekday numbers days from Monday (0) to Sunday (6).
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

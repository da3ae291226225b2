package cronexpr

import (
	"strconv"
	"strings"
)

// Position identifies a field of an expression.
type Position int

const (
	Minute Position = iota
	Hour
	Day
	Month
	DayOfWeek

	numFields = 5
)

type bounds struct {
	name     string
	min, max int
}

var fieldBounds = [numFields]bounds{
	Minute:    {name: "minute", min: 0, max: 59},
	Hour:      {name: "hour", min: 0, max: 23},
	Day:       {name: "day", min: 1, max: 31},
	Month:     {name: "month", min: 1, max: 12},
	DayOfWeek: {name: "day_of_week", min: 0, max: 6},
}

func (p Position) String() string {
	if p < 0 || p >= numFields {
		return "unknown"
	}
	return fieldBounds[p].name
}

// Min returns the smallest valid value for the field.
func (p Position) Min() int { return fieldBounds[p].min }

// Max returns the largest valid value for the field.
func (p Position) Max() int { return fieldBounds[p].max }

// FieldKind is the syntactic form of a field.
type FieldKind uint8

const (
	Wildcard FieldKind = iota
	Single
	List
	Step
)

func (k FieldKind) String() string {
	switch k {
	case Wildcard:
		return "wildcard"
	case Single:
		return "single"
	case List:
		return "list"
	case Step:
		return "step"
	default:
		return "unknown"
	}
}

// Field is one parsed component of an expression.
//
// Values holds the literal values for Single (one entry) and List fields, in
// the order they were written. Step holds N for "*/N".
type Field struct {
	Pos    Position
	Kind   FieldKind
	Values []int
	Step   int
}

// Matches reports whether v satisfies the field.
func (f Field) Matches(v int) bool {
	switch f.Kind {
	case Wildcard:
		return true
	case Single, List:
		for _, x := range f.Values {
			if x == v {
				return true
			}
		}
		return false
	case Step:
		off := v - f.Pos.Min()
		return off >= 0 && f.Step > 0 && off%f.Step == 0
	default:
		return false
	}
}

// String renders the field in the syntax it was parsed from.
func (f Field) String() string {
	switch f.Kind {
	case Single, List:
		parts := make([]string, len(f.Values))
		for i, v := range f.Values {
			parts[i] = strconv.Itoa(v)
		}
		return strings.Join(parts, ",")
	case Step:
		return "*/" + strconv.Itoa(f.Step)
	default:
		return "*"
	}
}

func parseField(pos Position, tok string) (Field, error) {
	fail := func(err error) (Field, error) {
		return Field{}, &FieldError{Field: pos.String(), Token: tok, Err: err}
	}

	switch {
	case tok == "*":
		return Field{Pos: pos, Kind: Wildcard}, nil

	case strings.HasPrefix(tok, "*/"):
		n, err := parseNumber(tok[2:])
		if err != nil {
			return fail(err)
		}
		if n < 1 || n > pos.Max()-pos.Min()+1 {
			return fail(ErrInvalidFieldValue)
		}
		return Field{Pos: pos, Kind: Step, Step: n}, nil

	case strings.Contains(tok, ","):
		parts := strings.Split(tok, ",")
		vals := make([]int, 0, len(parts))
		for _, p := range parts {
			v, err := parseValue(pos, p)
			if err != nil {
				return fail(err)
			}
			vals = append(vals, v)
		}
		return Field{Pos: pos, Kind: List, Values: vals}, nil

	default:
		v, err := parseValue(pos, tok)
		if err != nil {
			return fail(err)
		}
		return Field{Pos: pos, Kind: Single, Values: []int{v}}, nil
	}
}

func parseValue(pos Position, s string) (int, error) {
	v, err := parseNumber(s)
	if err != nil {
		return 0, err
	}
	if v < pos.Min() || v > pos.Max() {
		return 0, ErrInvalidFieldValue
	}
	return v, nil
}

// parseNumber accepts unsigned decimal integers only.
func parseNumber(s string) (int, error) {
	if s == "" {
		return 0, ErrInvalidFieldSyntax
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrInvalidFieldSyntax
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// all digits, so the only failure left is overflow
		return 0, ErrInvalidFieldValue
	}
	return v, nil
}

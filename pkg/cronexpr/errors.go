package cronexpr

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedExpression is returned when the text does not split into exactly 5 fields.
	ErrMalformedExpression = errors.New("malformed cron expression")
	// ErrInvalidFieldSyntax is returned when a field is not "*", an integer, a list or "*/step".
	ErrInvalidFieldSyntax = errors.New("invalid field syntax")
	// ErrInvalidFieldValue is returned when a field value or step is out of range.
	ErrInvalidFieldValue = errors.New("invalid field value")
	// ErrNoFutureMatch is returned by Next when no matching time exists within the lookahead window.
	ErrNoFutureMatch = errors.New("expression has no future match")
)

// FieldError describes which field of an expression failed to parse.
type FieldError struct {
	Field string
	Token string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s field %q: %v", e.Field, e.Token, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

package validation

import "fmt"

type Kind string

const (
	KindMissingField    Kind = "missing_field"
	KindScoreOutOfRange Kind = "score_out_of_range"
	KindInvalidField    Kind = "invalid_field"
)

// Error reports the first contract violation found in a model response.
type Error struct {
	Kind  Kind
	Field string
	Value any
	// Detail is set for KindInvalidField.
	Detail string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingField:
		return fmt.Sprintf("missing required key %q in ai response", e.Field)
	case KindScoreOutOfRange:
		return fmt.Sprintf("invalid %s %v: must be an integer between %d and %d", e.Field, e.Value, MinScore, MaxScore)
	default:
		return fmt.Sprintf("invalid field %q in ai response: %s", e.Field, e.Detail)
	}
}

package extract

import "fmt"

// Kind classifies extraction failures.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindEmptyDocument Kind = "empty_document"
	KindParseFailure  Kind = "parse_failure"
	// KindUnavailable covers storage and I/O failures that may pass on retry.
	KindUnavailable   Kind = "storage_unavailable"
)

// Error is returned by Extract for every failure.
type Error struct {
	Kind Kind
	Ref  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Ref, e.Kind, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Ref, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether another attempt may succeed.
func (e *Error) Temporary() bool { return e.Kind == KindUnavailable }

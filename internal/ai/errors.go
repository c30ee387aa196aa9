package ai

import (
	"fmt"
	"net/http"
)

// Kind classifies AI client failures.
type Kind string

const (
	KindMissingKey        Kind = "missing_key"
	KindTimeout           Kind = "timeout"
	KindServiceError      Kind = "service_error"
	KindMalformedResponse Kind = "malformed_response"
)

type Error struct {
	Kind Kind
	// Status and Body are set for KindServiceError.
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindServiceError:
		return fmt.Sprintf("ai service error [%d]: %s", e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("ai %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("ai %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same request may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout:
		return true
	case KindServiceError:
		// status 0 is a transport failure before any response arrived
		return e.Status == 0 || e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
	}
	return false
}

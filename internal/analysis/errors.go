package analysis

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("analysis not found")
	// ErrAlreadyCompleted is returned when a completed analysis is started again
	// without an explicit reset.
	ErrAlreadyCompleted = errors.New("analysis already completed")
	// ErrInProgress means another attempt holds the analysis.
	ErrInProgress = errors.New("analysis is being processed by another attempt")
	// ErrStale means the snapshot changed in storage since it was read.
	ErrStale             = errors.New("analysis was modified concurrently")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicate is returned when an analysis for the (resume, role) pair exists.
	ErrDuplicate = errors.New("analysis already exists for resume and role")

	ErrResumeNotFound = errors.New("resume not found")
	ErrRoleNotFound   = errors.New("role not found")
)

// MissingRelationError reports an analysis whose resume or role could not be loaded.
type MissingRelationError struct {
	AnalysisID string
	Relation   string
}

func (e *MissingRelationError) Error() string {
	return fmt.Sprintf("analysis %s is missing its %s relation", e.AnalysisID, e.Relation)
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

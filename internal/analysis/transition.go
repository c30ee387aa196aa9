package analysis

import (
	"encoding/json"
	"errors"
	"time"
)

// Transition is a computed state change. Storage applies it only if the stored
// version still equals From.Version.
type Transition struct {
	From Analysis
	To   Analysis
	// SkillIDs replaces the skill links of the analysis when To is completed.
	SkillIDs []string
}

func next(a Analysis, status Status, now time.Time) Analysis {
	a.Status = status
	a.Version++
	a.UpdatedAt = now
	return a
}

func cleared(a Analysis) Analysis {
	a.Result = nil
	a.RawResult = nil
	a.Skills = nil
	return a
}

// Begin moves an analysis into processing. A processing analysis that has not
// been touched for longer than lease is considered abandoned and may be taken over.
func Begin(a Analysis, now time.Time, lease time.Duration) (Transition, error) {
	switch a.Status {
	case StatusPending, StatusFailed:
	case StatusProcessing:
		if lease <= 0 || now.Sub(a.UpdatedAt) < lease {
			return Transition{}, ErrInProgress
		}
	case StatusCompleted:
		return Transition{}, ErrAlreadyCompleted
	default:
		return Transition{}, transitionError(a.Status, StatusProcessing)
	}

	return Transition{From: a, To: cleared(next(a, StatusProcessing, now))}, nil
}

// Complete stores a validated result. raw is the sanitized AI payload kept for audit.
func Complete(a Analysis, result Result, raw json.RawMessage, skillIDs []string, now time.Time) (Transition, error) {
	if a.Status != StatusProcessing {
		return Transition{}, transitionError(a.Status, StatusCompleted)
	}
	if len(raw) == 0 {
		return Transition{}, errors.New("raw result is required to complete an analysis")
	}

	to := next(a, StatusCompleted, now)
	r := result
	to.Result = &r
	to.RawResult = append(json.RawMessage(nil), raw...)

	ids := make([]string, len(skillIDs))
	copy(ids, skillIDs)

	return Transition{From: a, To: to, SkillIDs: ids}, nil
}

// Fail ends the current attempt. Result fields are cleared so a failed analysis
// never exposes partial scores.
func Fail(a Analysis, now time.Time) (Transition, error) {
	switch a.Status {
	case StatusPending, StatusProcessing:
	default:
		return Transition{}, transitionError(a.Status, StatusFailed)
	}
	return Transition{From: a, To: cleared(next(a, StatusFailed, now))}, nil
}

// Reset puts a finished analysis back to pending for an explicit re-run.
func Reset(a Analysis, now time.Time) (Transition, error) {
	if !a.Status.Terminal() {
		return Transition{}, transitionError(a.Status, StatusPending)
	}
	return Transition{From: a, To: cleared(next(a, StatusPending, now))}, nil
}

package jobs

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/analysis"
	"github.com/spigell/resume-screener/internal/extract"
	"github.com/spigell/resume-screener/internal/validation"
)

// Skipped reports errors that mean the analysis needs no work from this attempt.
func Skipped(err error) bool {
	return errors.Is(err, analysis.ErrAlreadyCompleted) ||
		errors.Is(err, analysis.ErrInProgress) ||
		errors.Is(err, analysis.ErrStale)
}

// Permanent reports errors that another attempt cannot fix.
func Permanent(err error) bool {
	if err == nil {
		return false
	}
	if Skipped(err) || errors.Is(err, analysis.ErrNotFound) {
		return true
	}

	var missing *analysis.MissingRelationError
	if errors.As(err, &missing) {
		return true
	}

	var extractErr *extract.Error
	if errors.As(err, &extractErr) {
		return !extractErr.Temporary()
	}

	var aiErr *ai.Error
	if errors.As(err, &aiErr) && aiErr.Kind == ai.KindMissingKey {
		return true
	}

	return false
}

func errorFields(err error) []zap.Field {
	var (
		missing       *analysis.MissingRelationError
		extractErr    *extract.Error
		aiErr         *ai.Error
		validationErr *validation.Error
	)

	switch {
	case errors.As(err, &missing):
		return []zap.Field{zap.String("error_kind", "missing_relation"), zap.String("relation", missing.Relation)}
	case errors.As(err, &extractErr):
		return []zap.Field{zap.String("error_kind", string(extractErr.Kind))}
	case errors.As(err, &aiErr):
		fields := []zap.Field{zap.String("error_kind", string(aiErr.Kind))}
		if aiErr.Status != 0 {
			fields = append(fields, zap.Int("status", aiErr.Status))
		}
		return fields
	case errors.As(err, &validationErr):
		return []zap.Field{zap.String("error_kind", string(validationErr.Kind)), zap.String("field", validationErr.Field)}
	case errors.Is(err, context.DeadlineExceeded):
		return []zap.Field{zap.String("error_kind", "timeout")}
	}
	return nil
}

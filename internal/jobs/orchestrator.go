// Package jobs runs analyses: the orchestrator drives one attempt, the runner
// applies the attempt budget and the dispatcher creates and enqueues work.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/analysis"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/validation"
)

const failureWriteTimeout = 10 * time.Second

type AnalysisStore interface {
	Get(ctx context.Context, id string) (analysis.Analysis, error)
	Apply(ctx context.Context, t analysis.Transition) error
}

type TextExtractor interface {
	Extract(ctx context.Context, ref string) (string, error)
}

type SkillResolver interface {
	Resolve(ctx context.Context, names []string) []string
}

// Orchestrator performs a single attempt of an analysis.
type Orchestrator struct {
	store     AnalysisStore
	extractor TextExtractor
	analyzer  ai.Analyzer
	skills    SkillResolver
	logger    *zap.Logger

	// lease is how long a processing analysis may go untouched before another
	// attempt takes it over.
	lease time.Duration
	now   func() time.Time
}

func NewOrchestrator(store AnalysisStore, extractor TextExtractor, analyzer ai.Analyzer, skills SkillResolver, lease time.Duration, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		skills:    skills,
		logger:    log,
		lease:     lease,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run loads the analysis, marks it processing and takes it to completed or
// failed. A completed or in-progress analysis is left untouched and the
// corresponding analysis error is returned.
func (o *Orchestrator) Run(ctx context.Context, analysisID string) error {
	a, err := o.store.Get(ctx, analysisID)
	if err != nil {
		return fmt.Errorf("load analysis %s: %w", analysisID, err)
	}

	log := logger.WithFields(o.logger, logger.AnalysisFields(a.ID, a.ResumeID, a.RoleID)...)

	begin, err := analysis.Begin(a, o.now(), o.lease)
	if err != nil {
		return err
	}
	if err := o.store.Apply(ctx, begin); err != nil {
		return fmt.Errorf("mark analysis %s processing: %w", a.ID, err)
	}

	current := begin.To
	started := time.Now()
	log.Info("analysis started", zap.Int64("version", current.Version))

	done, err := o.process(ctx, current)
	if err != nil {
		o.fail(ctx, log, current, err)
		return err
	}

	log.Info("analysis completed",
		zap.Int("technical_score", done.Result.TechnicalScore),
		zap.Int("culture_score", done.Result.CultureScore),
		zap.Int("skills", len(done.Skills)),
		zap.Duration("duration", time.Since(started)),
	)
	return nil
}

func (o *Orchestrator) process(ctx context.Context, a analysis.Analysis) (analysis.Analysis, error) {
	if a.Resume == nil {
		return a, &analysis.MissingRelationError{AnalysisID: a.ID, Relation: "resume"}
	}
	if a.Role == nil {
		return a, &analysis.MissingRelationError{AnalysisID: a.ID, Relation: "role"}
	}

	text, err := o.extractor.Extract(ctx, a.Resume.StoragePath)
	if err != nil {
		return a, err
	}

	raw, err := o.analyzer.Analyze(ctx, ai.Request{
		RoleName:    a.Role.Name,
		Requirement: a.Role.Requirement,
		Culture:     a.Role.Culture,
		ResumeText:  text,
	})
	if err != nil {
		return a, err
	}

	result, clean, err := validation.Validate(raw)
	if err != nil {
		return a, err
	}

	rawJSON, err := json.Marshal(clean)
	if err != nil {
		return a, fmt.Errorf("encode raw result: %w", err)
	}

	skillIDs := o.skills.Resolve(ctx, result.Skills)

	// the deadline may have passed while skills were resolved
	if err := ctx.Err(); err != nil {
		return a, err
	}

	complete, err := analysis.Complete(a, *result, rawJSON, skillIDs, o.now())
	if err != nil {
		return a, err
	}
	if err := o.store.Apply(ctx, complete); err != nil {
		return a, fmt.Errorf("store result of analysis %s: %w", a.ID, err)
	}

	done := complete.To
	done.Skills = make([]analysis.Skill, 0, len(skillIDs))
	for _, id := range skillIDs {
		done.Skills = append(done.Skills, analysis.Skill{ID: id})
	}
	return done, nil
}

// fail records the failed state. It uses its own deadline so an expired
// attempt context still gets written.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, a analysis.Analysis, cause error) {
	fields := append([]zap.Field{zap.Error(cause)}, errorFields(cause)...)
	log.Error("analysis failed", fields...)

	tr, err := analysis.Fail(a, o.now())
	if err != nil {
		log.Error("cannot mark analysis failed", zap.Error(err))
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	if err := o.store.Apply(writeCtx, tr); err != nil {
		if errors.Is(err, analysis.ErrStale) {
			log.Warn("analysis was taken over before failure was recorded")
			return
		}
		log.Error("cannot mark analysis failed", zap.Error(err))
	}
}

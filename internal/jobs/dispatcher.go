package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/analysis"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/queue"
)

var (
	ErrForbidden = errors.New("role belongs to another user")
	ErrNoResumes = errors.New("no resumes available for analysis")
)

type DispatchStore interface {
	Get(ctx context.Context, id string) (analysis.Analysis, error)
	Apply(ctx context.Context, t analysis.Transition) error
	CreatePending(ctx context.Context, a analysis.Analysis) (analysis.Analysis, error)
	CreatePendingBatch(ctx context.Context, batch []analysis.Analysis) (created, existing []analysis.Analysis, err error)
	ListUnfinished(ctx context.Context, staleBefore time.Time) ([]analysis.Analysis, error)
}

type ResumeLister interface {
	ListByUser(ctx context.Context, userID string) ([]analysis.Resume, error)
}

type RoleGetter interface {
	Get(ctx context.Context, id string) (analysis.Role, error)
}

// Dispatcher creates pending analyses and enqueues them.
type Dispatcher struct {
	analyses DispatchStore
	resumes  ResumeLister
	roles    RoleGetter
	queue    queue.Queue
	logger   *zap.Logger

	newID func() string
	now   func() time.Time
}

func NewDispatcher(analyses DispatchStore, resumes ResumeLister, roles RoleGetter, q queue.Queue, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		analyses: analyses,
		resumes:  resumes,
		roles:    roles,
		queue:    q,
		logger:   log,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch creates the analysis of (resumeID, roleID) and enqueues it. If the
// pair already has an analysis, that one is returned and enqueued again only
// while it is still pending.
func (d *Dispatcher) Dispatch(ctx context.Context, resumeID, roleID string) (analysis.Analysis, bool, error) {
	a, err := d.analyses.CreatePending(ctx, analysis.NewPending(d.newID(), resumeID, roleID, d.now()))
	if errors.Is(err, analysis.ErrDuplicate) {
		d.logger.Debug("analysis already exists",
			append(logger.AnalysisFields(a.ID, resumeID, roleID), zap.String("status", string(a.Status)))...)
		if a.Status != analysis.StatusPending {
			return a, false, nil
		}
		return a, false, d.publish(ctx, a)
	}
	if err != nil {
		return analysis.Analysis{}, false, err
	}

	if err := d.publish(ctx, a); err != nil {
		return a, true, err
	}
	return a, true, nil
}

// StartForRole creates analyses of every resume of userID against the role in
// one transaction, then enqueues the new ones and the existing ones still
// pending. Publish failures are logged and do not undo the creation. The count
// of created analyses is returned.
func (d *Dispatcher) StartForRole(ctx context.Context, userID, roleID string) (int, error) {
	role, err := d.roles.Get(ctx, roleID)
	if err != nil {
		return 0, err
	}
	if role.UserID != userID {
		return 0, ErrForbidden
	}

	resumes, err := d.resumes.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(resumes) == 0 {
		return 0, ErrNoResumes
	}

	now := d.now()
	batch := make([]analysis.Analysis, 0, len(resumes))
	for _, r := range resumes {
		batch = append(batch, analysis.NewPending(d.newID(), r.ID, role.ID, now))
	}

	created, existing, err := d.analyses.CreatePendingBatch(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("create analyses for role %s: %w", role.ID, err)
	}

	d.publishAll(ctx, created)
	requeued := d.publishAll(ctx, pendingOnly(existing))

	d.logger.Info("batch analysis started",
		zap.String("user_id", userID),
		zap.String("role_id", role.ID),
		zap.Int("dispatched_count", len(created)),
		zap.Int("requeued_count", requeued),
	)
	return len(created), nil
}

// RequeueUnfinished enqueues every pending analysis and every processing one
// not touched for longer than lease. It is meant for startup when the queue
// does not survive restarts.
func (d *Dispatcher) RequeueUnfinished(ctx context.Context, lease time.Duration) (int, error) {
	unfinished, err := d.analyses.ListUnfinished(ctx, d.now().Add(-lease))
	if err != nil {
		return 0, err
	}

	n := d.publishAll(ctx, unfinished)
	if len(unfinished) > 0 {
		d.logger.Info("unfinished analyses requeued", zap.Int("requeued_count", n), zap.Int("found_count", len(unfinished)))
	}
	return n, ctx.Err()
}

// Reanalyze resets a completed or failed analysis to pending and enqueues it.
// A pending analysis is enqueued again as it is.
func (d *Dispatcher) Reanalyze(ctx context.Context, analysisID string) (analysis.Analysis, error) {
	a, err := d.analyses.Get(ctx, analysisID)
	if err != nil {
		return analysis.Analysis{}, err
	}
	if a.Status == analysis.StatusPending {
		return a, d.publish(ctx, a)
	}

	reset, err := analysis.Reset(a, d.now())
	if err != nil {
		return analysis.Analysis{}, err
	}
	if err := d.analyses.Apply(ctx, reset); err != nil {
		return analysis.Analysis{}, err
	}

	if err := d.publish(ctx, reset.To); err != nil {
		return reset.To, err
	}
	return reset.To, nil
}

// publishAll enqueues each analysis, logging failures, and returns how many made it.
func (d *Dispatcher) publishAll(ctx context.Context, list []analysis.Analysis) int {
	n := 0
	for _, a := range list {
		if err := d.publish(ctx, a); err != nil {
			d.logger.Error("failed to enqueue analysis", append(logger.AnalysisFields(a.ID, a.ResumeID, a.RoleID), zap.Error(err))...)
			continue
		}
		n++
	}
	return n
}

func pendingOnly(list []analysis.Analysis) []analysis.Analysis {
	var out []analysis.Analysis
	for _, a := range list {
		if a.Status == analysis.StatusPending {
			out = append(out, a)
		}
	}
	return out
}

func (d *Dispatcher) publish(ctx context.Context, a analysis.Analysis) error {
	task := queue.NewTask(a.ID)
	if err := d.queue.Publish(ctx, task); err != nil {
		return fmt.Errorf("enqueue analysis %s: %w", a.ID, err)
	}
	d.logger.Info("analysis enqueued", append(logger.AnalysisFields(a.ID, a.ResumeID, a.RoleID), zap.String("task_id", task.ID))...)
	return nil
}

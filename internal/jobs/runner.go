package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/queue"
	"github.com/spigell/resume-screener/internal/utils"
)

const (
	defaultWorkers        = 2
	defaultMaxAttempts    = 3
	defaultAttemptTimeout = 300 * time.Second
	defaultRetryBackoff   = 10 * time.Second
)

// sleep waits between attempts; tests replace it.
var sleep = utils.WaitFor

type Config struct {
	Workers        int           `mapstructure:"workers"`
	MaxAttempts    int           `mapstructure:"max-attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt-timeout"`
	RetryBackoff   time.Duration `mapstructure:"retry-backoff"`
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = defaultAttemptTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	return c
}

// Lease is how long a processing analysis is left alone before a worker may
// take it over. It outlives one full attempt.
func (c Config) Lease() time.Duration {
	return 2 * c.withDefaults().AttemptTimeout
}

type attemptRunner interface {
	Run(ctx context.Context, analysisID string) error
}

// Runner consumes tasks and gives each analysis up to MaxAttempts attempts,
// each bounded by AttemptTimeout.
type Runner struct {
	queue        queue.Queue
	orchestrator attemptRunner
	cfg          Config
	logger       *zap.Logger
}

func NewRunner(q queue.Queue, orchestrator attemptRunner, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{queue: q, orchestrator: orchestrator, cfg: cfg.withDefaults(), logger: logger}
}

// Start blocks until ctx is done.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info("workers started",
		zap.Int("workers", r.cfg.Workers),
		zap.Int("max_attempts", r.cfg.MaxAttempts),
		zap.Duration("attempt_timeout", r.cfg.AttemptTimeout),
	)
	return r.queue.Consume(ctx, r.cfg.Workers, r.Handle)
}

// Handle runs the attempts for one task. The returned error is the one of the
// last attempt; skipped analyses return nil.
func (r *Runner) Handle(ctx context.Context, task queue.Task) error {
	log := r.logger.With(zap.String("task_id", task.ID), zap.String("analysis_id", task.AnalysisID))

	var err error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		err = r.orchestrator.Run(attemptCtx, task.AnalysisID)
		cancel()

		if err == nil {
			return nil
		}
		if Skipped(err) {
			log.Info("analysis skipped", zap.String("reason", err.Error()))
			return nil
		}
		if Permanent(err) {
			log.Error("analysis failed permanently", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Warn("analysis attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.Duration("backoff", r.cfg.RetryBackoff),
			zap.Error(err),
		)
		if werr := sleep(ctx, r.cfg.RetryBackoff); werr != nil {
			return werr
		}
	}

	log.Error("analysis attempts exhausted", zap.Int("attempts", r.cfg.MaxAttempts), zap.Error(err))
	return err
}

// Package queue delivers analysis tasks from the dispatcher to the workers.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Task asks a worker to run one analysis.
type Task struct {
	ID         string    `json:"id" mapstructure:"id"`
	AnalysisID string    `json:"analysis_id" mapstructure:"analysis_id"`
	EnqueuedAt time.Time `json:"enqueued_at" mapstructure:"enqueued_at"`
}

func NewTask(analysisID string) Task {
	return Task{ID: uuid.NewString(), AnalysisID: analysisID, EnqueuedAt: time.Now().UTC()}
}

// Handler processes one task. Delivery is at least once.
type Handler func(ctx context.Context, task Task) error

type Queue interface {
	Publish(ctx context.Context, task Task) error
	// Consume runs workers until ctx is done.
	Consume(ctx context.Context, workers int, handler Handler) error
	Close() error
}

type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverRedis    Driver = "redis"
	DriverRabbitMQ Driver = "rabbitmq"
)

type Config struct {
	Driver   Driver         `mapstructure:"driver"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

// New builds the queue selected by cfg.Driver.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch Driver(strings.ToLower(strings.TrimSpace(string(cfg.Driver)))) {
	case "", DriverMemory:
		return NewMemory(cfg.Memory.Buffer, logger), nil
	case DriverRedis:
		return NewRedis(ctx, cfg.Redis, logger)
	case DriverRabbitMQ:
		return NewRabbitMQ(cfg.RabbitMQ, logger)
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

func taskFields(task Task) []zap.Field {
	return []zap.Field{
		zap.String("task_id", task.ID),
		zap.String("analysis_id", task.AnalysisID),
	}
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/utils"
)

const (
	defaultStream   = "analyses:tasks"
	defaultGroup    = "analysis-workers"
	defaultConsumer = "worker"
	defaultBlock    = 5 * time.Second
	readErrorDelay  = 500 * time.Millisecond
)

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Stream   string        `mapstructure:"stream"`
	Group    string        `mapstructure:"group"`
	Consumer string        `mapstructure:"consumer"`
	Block    time.Duration `mapstructure:"block"`
}

// Redis delivers tasks through a stream read by a consumer group. Each worker
// is a named consumer and first drains its own pending entries, so tasks
// interrupted by a restart are picked up again.
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
	logger *zap.Logger
}

func NewRedis(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis address is not configured")
	}
	if cfg.Stream == "" {
		cfg.Stream = defaultStream
	}
	if cfg.Group == "" {
		cfg.Group = defaultGroup
	}
	if cfg.Consumer == "" {
		cfg.Consumer = defaultConsumer
		// consumer names must be unique per process or pending entries are shared
		if host, err := os.Hostname(); err == nil && host != "" {
			cfg.Consumer = host
		}
	}
	if cfg.Block <= 0 {
		cfg.Block = defaultBlock
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	return &Redis{client: client, cfg: cfg, logger: logger}, nil
}

func (r *Redis) Publish(ctx context.Context, task Task) error {
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.cfg.Stream,
		Values: encodeTask(task),
	}).Err()
	if err != nil {
		return fmt.Errorf("publish task %s: %w", task.ID, err)
	}
	return nil
}

func (r *Redis) Consume(ctx context.Context, workers int, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}

	err := r.client.XGroupCreateMkStream(ctx, r.cfg.Stream, r.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", r.cfg.Group, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		consumer := r.cfg.Consumer + "-" + strconv.Itoa(i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runConsumer(ctx, consumer, handler)
		}()
	}

	wg.Wait()
	return nil
}

func (r *Redis) runConsumer(ctx context.Context, consumer string, handler Handler) {
	log := r.logger.With(zap.String("consumer", consumer))
	// "0" reads this consumer's unacknowledged entries, ">" reads new ones.
	cursor := "0"

	for ctx.Err() == nil {
		res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.cfg.Group,
			Consumer: consumer,
			Streams:  []string{r.cfg.Stream, cursor},
			Count:    1,
			Block:    r.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Warn("read from stream failed", zap.Error(err))
			_ = utils.WaitFor(ctx, readErrorDelay)
			continue
		}

		received := 0
		for _, stream := range res {
			for _, msg := range stream.Messages {
				received++
				r.handleMessage(ctx, log, msg, handler)
			}
		}
		if cursor == "0" && received == 0 {
			cursor = ">"
		}
	}
}

func (r *Redis) handleMessage(ctx context.Context, log *zap.Logger, msg redis.XMessage, handler Handler) {
	task, err := decodeTask(msg.Values)
	if err != nil {
		log.Error("dropping malformed task", zap.String("message_id", msg.ID), zap.Error(err))
		r.ack(log, msg.ID)
		return
	}

	if err := handler(ctx, task); err != nil {
		log.Debug("task handler returned error", append(taskFields(task), zap.Error(err))...)
	}

	// interrupted tasks stay pending and are re-read after a restart
	if ctx.Err() != nil {
		return
	}
	r.ack(log, msg.ID)
}

func (r *Redis) ack(log *zap.Logger, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.XAck(ctx, r.cfg.Stream, r.cfg.Group, id).Err(); err != nil {
		log.Warn("ack failed", zap.String("message_id", id), zap.Error(err))
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func encodeTask(task Task) map[string]any {
	return map[string]any{
		"id":          task.ID,
		"analysis_id": task.AnalysisID,
		"enqueued_at": task.EnqueuedAt.UTC().Format(time.RFC3339Nano),
	}
}

// decodeTask maps stream entry values, which Redis returns as strings, onto a Task.
func decodeTask(values map[string]any) (Task, error) {
	var task Task
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		WeaklyTypedInput: true,
		Result:           &task,
	})
	if err != nil {
		return Task{}, err
	}
	if err := decoder.Decode(values); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	if task.AnalysisID == "" {
		return Task{}, errors.New("task has no analysis id")
	}
	return task, nil
}

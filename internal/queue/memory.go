package queue

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

const defaultMemoryBuffer = 256

var ErrClosed = errors.New("queue is closed")

type MemoryConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// Memory is an in-process queue for single binary deployments and tests.
// Tasks still buffered when the process exits are lost.
type Memory struct {
	tasks  chan Task
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func NewMemory(buffer int, logger *zap.Logger) *Memory {
	if buffer <= 0 {
		buffer = defaultMemoryBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		tasks:  make(chan Task, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (m *Memory) Publish(ctx context.Context, task Task) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	select {
	case m.tasks <- task:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Consume(ctx context.Context, workers int, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-m.done:
					return
				case task := <-m.tasks:
					if err := handler(ctx, task); err != nil {
						m.logger.Debug("task handler returned error", append(taskFields(task), zap.Error(err))...)
					}
				}
			}
		}()
	}

	wg.Wait()
	return nil
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

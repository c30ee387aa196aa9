package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestMemoryDeliversEveryTask(t *testing.T) {
	q := NewMemory(0, nil)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []string
		wg   sync.WaitGroup
	)
	wg.Add(5)

	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, 3, func(_ context.Context, task Task) error {
			mu.Lock()
			seen = append(seen, task.AnalysisID)
			mu.Unlock()
			wg.Done()
			return errors.New("handler errors are not fatal")
		})
	}()

	for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		if err := q.Publish(ctx, NewTask(id)); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	wg.Wait()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("consume returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("consume did not stop after cancel")
	}

	sort.Strings(seen)
	if len(seen) != 5 || seen[0] != "a1" || seen[4] != "a5" {
		t.Fatalf("unexpected deliveries %v", seen)
	}
}

func TestMemoryPublishAfterClose(t *testing.T) {
	q := NewMemory(1, nil)
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := q.Publish(context.Background(), NewTask("a1")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestMemoryPublishRespectsContext(t *testing.T) {
	q := NewMemory(1, nil)
	defer q.Close()

	if err := q.Publish(context.Background(), NewTask("a1")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, NewTask("a2")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded on full buffer, got %v", err)
	}
}

func TestDecodeTaskFromStreamValues(t *testing.T) {
	enqueued := time.Date(2025, 7, 31, 1, 39, 52, 123, time.UTC)
	task := Task{ID: "t1", AnalysisID: "a1", EnqueuedAt: enqueued}

	values := map[string]any{}
	for k, v := range encodeTask(task) {
		values[k] = v.(string)
	}

	got, err := decodeTask(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "t1" || got.AnalysisID != "a1" || !got.EnqueuedAt.Equal(enqueued) {
		t.Fatalf("unexpected task %+v", got)
	}

	if _, err := decodeTask(map[string]any{"id": "t2"}); err == nil {
		t.Fatalf("expected error for task without analysis id")
	}
	if _, err := decodeTask(map[string]any{"analysis_id": "a1", "enqueued_at": "yesterday"}); err == nil {
		t.Fatalf("expected error for malformed timestamp")
	}
}

func TestNewUnknownDriver(t *testing.T) {
	if _, err := New(context.Background(), Config{Driver: "kafka"}, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}

	q, err := New(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatalf("default driver: %v", err)
	}
	if _, ok := q.(*Memory); !ok {
		t.Fatalf("expected memory queue by default, got %T", q)
	}
}

package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/analysis"
	"github.com/spigell/resume-screener/internal/queue"
)

type memoryStore struct {
	mu       sync.Mutex
	items    map[string]analysis.Analysis
	links    map[string][]string
	applied  []analysis.Transition
	applyErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: map[string]analysis.Analysis{}, links: map[string][]string{}}
}

func (m *memoryStore) put(a analysis.Analysis) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[a.ID] = a
}

func (m *memoryStore) snapshot(t *testing.T, id string) analysis.Analysis {
	t.Helper()
	a, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return a
}

func (m *memoryStore) Get(_ context.Context, id string) (analysis.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return analysis.Analysis{}, analysis.ErrNotFound
	}
	a.Skills = nil
	for _, skillID := range m.links[id] {
		a.Skills = append(a.Skills, analysis.Skill{ID: skillID})
	}
	return a, nil
}

func (m *memoryStore) Apply(ctx context.Context, t analysis.Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return m.applyErr
	}

	stored, ok := m.items[t.To.ID]
	if !ok {
		return analysis.ErrNotFound
	}
	if stored.Version != t.From.Version {
		return analysis.ErrStale
	}

	next := t.To
	next.Resume, next.Role = stored.Resume, stored.Role
	m.items[next.ID] = next
	m.links[next.ID] = append([]string(nil), t.SkillIDs...)
	m.applied = append(m.applied, t)
	return nil
}

func (m *memoryStore) CreatePending(_ context.Context, a analysis.Analysis) (analysis.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.ResumeID == a.ResumeID && existing.RoleID == a.RoleID {
			return existing, analysis.ErrDuplicate
		}
	}
	m.items[a.ID] = a
	return a, nil
}

func (m *memoryStore) CreatePendingBatch(ctx context.Context, batch []analysis.Analysis) ([]analysis.Analysis, []analysis.Analysis, error) {
	var created, existing []analysis.Analysis
	for _, a := range batch {
		stored, err := m.CreatePending(ctx, a)
		if err == nil {
			created = append(created, stored)
		} else {
			existing = append(existing, stored)
		}
	}
	return created, existing, nil
}

func (m *memoryStore) ListUnfinished(_ context.Context, staleBefore time.Time) ([]analysis.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []analysis.Analysis
	for _, a := range m.items {
		if a.Status == analysis.StatusPending || (a.Status == analysis.StatusProcessing && a.UpdatedAt.Before(staleBefore)) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type stubExtractor struct {
	text string
	err  error
	refs []string
}

func (s *stubExtractor) Extract(_ context.Context, ref string) (string, error) {
	s.refs = append(s.refs, ref)
	return s.text, s.err
}

// stubAnalyzer returns the queued responses in order and repeats the last one.
type stubAnalyzer struct {
	mu        sync.Mutex
	responses []analyzerResponse
	requests  []ai.Request
	block     bool
}

type analyzerResponse struct {
	payload string
	err     error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req ai.Request) (ai.RawResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	res := s.responses[idx]
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, &ai.Error{Kind: ai.KindTimeout, Err: ctx.Err()}
	}
	if res.err != nil {
		return nil, res.err
	}

	dec := json.NewDecoder(strings.NewReader(res.payload))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, &ai.Error{Kind: ai.KindMalformedResponse, Err: err}
	}
	return ai.RawResponse(raw), nil
}

func (s *stubAnalyzer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type stubSkills struct {
	names []string
}

func (s *stubSkills) Resolve(_ context.Context, names []string) []string {
	s.names = append(s.names, names...)
	ids := make([]string, 0, len(names))
	for _, n := range names {
		ids = append(ids, "skill-"+n)
	}
	return ids
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (q *recordingQueue) Publish(_ context.Context, task queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) Consume(ctx context.Context, _ int, _ queue.Handler) error {
	<-ctx.Done()
	return nil
}

func (q *recordingQueue) Close() error { return nil }

func (q *recordingQueue) published() []queue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Task(nil), q.tasks...)
}

var baseTime = time.Date(2025, 7, 31, 1, 39, 52, 0, time.UTC)

func pendingAnalysis(id string) analysis.Analysis {
	a := analysis.NewPending(id, "resume-1", "role-1", baseTime)
	a.Resume = &analysis.Resume{ID: "resume-1", UserID: "user-1", StoragePath: "resumes/jane.pdf"}
	a.Role = &analysis.Role{ID: "role-1", UserID: "user-1", Name: "Backend Engineer", Requirement: "Go", Culture: "ownership"}
	return a
}

const validPayload = `{"technical_score": 85, "culture_score": 70, "nama_kandidat":"Jane Doe","summary":"Solid backend engineer.","skills":["Go","SQL"],"justification":{"positive_points":["strong backend"],"negative_points":[]}}`

package skills

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/resume-screener/internal/analysis"
)

type memoryStore struct {
	mu     sync.Mutex
	byName map[string]analysis.Skill
	fail   map[string]error
	calls  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byName: map[string]analysis.Skill{}, fail: map[string]error{}}
}

func (m *memoryStore) FindOrCreate(_ context.Context, name string) (analysis.Skill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.fail[name]; err != nil {
		return analysis.Skill{}, err
	}
	if skill, ok := m.byName[name]; ok {
		return skill, nil
	}
	skill := analysis.Skill{ID: "skill-" + name, Name: name}
	m.byName[name] = skill
	return skill, nil
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", MaxNameLength+10)

	tests := []struct {
		name   string
		input  []string
		expect []string
	}{
		{name: "trims and dedupes", input: []string{"Go", "go ", "SQL", " Go"}, expect: []string{"Go", "go", "SQL"}},
		{name: "drops empty", input: []string{"", "  ", "\t"}, expect: []string{}},
		{name: "nil input", input: nil, expect: []string{}},
		{name: "truncates by characters", input: []string{long}, expect: []string{strings.Repeat("é", MaxNameLength)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Normalize(tt.input)
			if len(got) != len(tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
			for i := range got {
				if got[i] != tt.expect[i] {
					t.Fatalf("expected %v, got %v", tt.expect, got)
				}
				if utf8.RuneCountInString(got[i]) > MaxNameLength {
					t.Fatalf("name longer than limit: %d", utf8.RuneCountInString(got[i]))
				}
			}
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	resolver := NewResolver(store, nil)

	first := resolver.Resolve(context.Background(), []string{"Go", "go ", "SQL"})
	second := resolver.Resolve(context.Background(), []string{"Go", "go ", "SQL"})

	if len(first) != 3 {
		t.Fatalf("expected 3 ids, got %v", first)
	}
	if len(store.byName) != 3 {
		t.Fatalf("expected 3 canonical skills, got %d", len(store.byName))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("second resolve must return the same ids: %v vs %v", first, second)
		}
	}
}

func TestResolveSkipsFailures(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	store := newMemoryStore()
	store.fail["Rust"] = errors.New("value too long")
	resolver := NewResolver(store, zap.New(core))

	ids := resolver.Resolve(context.Background(), []string{"Go", "Rust", "SQL"})
	if len(ids) != 2 || ids[0] != "skill-Go" || ids[1] != "skill-SQL" {
		t.Fatalf("unexpected ids %v", ids)
	}

	entries := observed.FilterMessage("failed to find or create skill").All()
	if len(entries) != 1 || entries[0].ContextMap()["skill"] != "Rust" {
		t.Fatalf("expected one warning for the failed skill, got %v", entries)
	}
}

func TestResolveEmpty(t *testing.T) {
	store := newMemoryStore()
	ids := NewResolver(store, nil).Resolve(context.Background(), []string{" ", ""})
	if len(ids) != 0 || store.calls != 0 {
		t.Fatalf("expected no store calls, got %d (%v)", store.calls, ids)
	}
}

// Package skills maps skill names reported by the model to canonical skill records.
package skills

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/analysis"
)

// MaxNameLength is the storage limit for a skill name, in characters.
const MaxNameLength = 255

type Store interface {
	FindOrCreate(ctx context.Context, name string) (analysis.Skill, error)
}

type Resolver struct {
	store  Store
	logger *zap.Logger
}

func NewResolver(store Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

// Normalize trims names, drops empty ones, truncates to MaxNameLength and removes
// exact duplicates while keeping first-seen order. Matching is case-sensitive.
func Normalize(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = truncate(strings.TrimSpace(name), MaxNameLength)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}

// Resolve returns the IDs of the canonical skills for names, creating missing
// ones. A name that cannot be stored is logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, names []string) []string {
	normalized := Normalize(names)
	ids := make([]string, 0, len(normalized))
	seen := make(map[string]struct{}, len(normalized))

	for _, name := range normalized {
		skill, err := r.store.FindOrCreate(ctx, name)
		if err != nil {
			r.logger.Warn("failed to find or create skill",
				zap.String("skill", name),
				zap.Error(err),
			)
			continue
		}
		if _, ok := seen[skill.ID]; ok {
			continue
		}
		seen[skill.ID] = struct{}{}
		ids = append(ids, skill.ID)
	}

	return ids
}

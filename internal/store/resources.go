package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spigell/resume-screener/internal/analysis"
)

type Resumes struct {
	db *gorm.DB
}

func (r *Resumes) Get(ctx context.Context, id string) (analysis.Resume, error) {
	var row resumeModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return analysis.Resume{}, analysis.ErrResumeNotFound
	}
	if err != nil {
		return analysis.Resume{}, fmt.Errorf("load resume %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// ListByUser returns the resumes uploaded by userID, oldest first.
func (r *Resumes) ListByUser(ctx context.Context, userID string) ([]analysis.Resume, error) {
	var rows []resumeModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list resumes of user %s: %w", userID, err)
	}

	out := make([]analysis.Resume, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

type Roles struct {
	db *gorm.DB
}

func (r *Roles) Get(ctx context.Context, id string) (analysis.Role, error) {
	var row roleModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return analysis.Role{}, analysis.ErrRoleNotFound
	}
	if err != nil {
		return analysis.Role{}, fmt.Errorf("load role %s: %w", id, err)
	}
	return row.toDomain(), nil
}

type Skills struct {
	db *gorm.DB
}

// FindOrCreate returns the skill with exactly this name, inserting it first
// when needed. Concurrent callers converge on the same row.
func (r *Skills) FindOrCreate(ctx context.Context, name string) (analysis.Skill, error) {
	if strings.TrimSpace(name) == "" {
		return analysis.Skill{}, errors.New("skill name must not be empty")
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(&skillModel{ID: newID(), Name: name}).Error
	if err != nil {
		return analysis.Skill{}, fmt.Errorf("create skill %q: %w", name, err)
	}

	var row skillModel
	if err := r.db.WithContext(ctx).Where("name = ?", name).Take(&row).Error; err != nil {
		return analysis.Skill{}, fmt.Errorf("load skill %q: %w", name, err)
	}
	return analysis.Skill{ID: row.ID, Name: row.Name}, nil
}

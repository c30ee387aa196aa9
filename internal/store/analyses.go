package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spigell/resume-screener/internal/analysis"
)

type Analyses struct {
	db *gorm.DB
}

// Get loads the analysis with its resume, role and linked skills.
func (r *Analyses) Get(ctx context.Context, id string) (analysis.Analysis, error) {
	var row analysisModel
	err := r.db.WithContext(ctx).
		Preload("Resume").
		Preload("Role").
		Where("id = ?", id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return analysis.Analysis{}, analysis.ErrNotFound
	}
	if err != nil {
		return analysis.Analysis{}, fmt.Errorf("load analysis %s: %w", id, err)
	}

	skills, err := r.linkedSkills(ctx, r.db, id)
	if err != nil {
		return analysis.Analysis{}, err
	}

	return row.toDomain(skills)
}

func (r *Analyses) FindByPair(ctx context.Context, resumeID, roleID string) (analysis.Analysis, error) {
	return findByPair(ctx, r.db, resumeID, roleID)
}

func findByPair(ctx context.Context, db *gorm.DB, resumeID, roleID string) (analysis.Analysis, error) {
	var row analysisModel
	err := db.WithContext(ctx).
		Where("resume_id = ? AND role_id = ?", resumeID, roleID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return analysis.Analysis{}, analysis.ErrNotFound
	}
	if err != nil {
		return analysis.Analysis{}, fmt.Errorf("find analysis for resume %s and role %s: %w", resumeID, roleID, err)
	}
	return row.toDomain(nil)
}

func (r *Analyses) linkedSkills(ctx context.Context, db *gorm.DB, analysisID string) ([]skillModel, error) {
	var skills []skillModel
	err := db.WithContext(ctx).
		Joins("JOIN analysis_skill ON analysis_skill.skill_id = skills.id").
		Where("analysis_skill.analysis_id = ?", analysisID).
		Order("skills.name").
		Find(&skills).Error
	if err != nil {
		return nil, fmt.Errorf("load skills of analysis %s: %w", analysisID, err)
	}
	return skills, nil
}

// CreatePending inserts a pending analysis. When the (resume, role) pair already
// has one, the stored analysis is returned together with analysis.ErrDuplicate.
func (r *Analyses) CreatePending(ctx context.Context, a analysis.Analysis) (analysis.Analysis, error) {
	created, err := insertPending(ctx, r.db, a)
	if err != nil {
		return analysis.Analysis{}, err
	}
	if created {
		return a, nil
	}

	existing, err := r.FindByPair(ctx, a.ResumeID, a.RoleID)
	if err != nil {
		return analysis.Analysis{}, err
	}
	return existing, analysis.ErrDuplicate
}

// CreatePendingBatch inserts all analyses in one transaction. It returns the
// ones it created and the stored analyses of pairs that already had one.
// Nothing is written if any insert fails.
func (r *Analyses) CreatePendingBatch(ctx context.Context, batch []analysis.Analysis) ([]analysis.Analysis, []analysis.Analysis, error) {
	created := make([]analysis.Analysis, 0, len(batch))
	var existing []analysis.Analysis

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range batch {
			ok, err := insertPending(ctx, tx, a)
			if err != nil {
				return err
			}
			if ok {
				created = append(created, a)
				continue
			}
			stored, err := findByPair(ctx, tx, a.ResumeID, a.RoleID)
			if err != nil {
				return err
			}
			existing = append(existing, stored)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return created, existing, nil
}

// ListUnfinished returns pending analyses and processing ones last touched
// before staleBefore, oldest first.
func (r *Analyses) ListUnfinished(ctx context.Context, staleBefore time.Time) ([]analysis.Analysis, error) {
	var rows []analysisModel
	err := r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND updated_at < ?)",
			string(analysis.StatusPending), string(analysis.StatusProcessing), staleBefore).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list unfinished analyses: %w", err)
	}

	out := make([]analysis.Analysis, 0, len(rows))
	for _, row := range rows {
		a, err := row.toDomain(nil)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func insertPending(ctx context.Context, db *gorm.DB, a analysis.Analysis) (bool, error) {
	if a.Status != analysis.StatusPending {
		return false, fmt.Errorf("new analysis must be pending, got %s", a.Status)
	}

	row := newAnalysisModel(a)
	res := db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns:   []clause.Column{{Name: "resume_id"}, {Name: "role_id"}},
				DoNothing: true,
			},
			// a conflicting pair returns no row
			clause.Returning{Columns: []clause.Column{{Name: "id"}}},
		).
		Omit("Resume", "Role").
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("create analysis for resume %s and role %s: %w", a.ResumeID, a.RoleID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Apply persists a transition if the stored version still matches t.From.
// Skill links are replaced in the same transaction; only a completed analysis has any.
func (r *Analyses) Apply(ctx context.Context, t analysis.Transition) error {
	cols, err := pipelineColumns(t.To)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&analysisModel{}).
			Where("id = ? AND version = ?", t.To.ID, t.From.Version).
			Updates(cols)
		if res.Error != nil {
			return fmt.Errorf("update analysis %s: %w", t.To.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&analysisModel{}).Where("id = ?", t.To.ID).Count(&count).Error; err != nil {
				return fmt.Errorf("check analysis %s: %w", t.To.ID, err)
			}
			if count == 0 {
				return analysis.ErrNotFound
			}
			return analysis.ErrStale
		}

		if err := tx.Where("analysis_id = ?", t.To.ID).Delete(&analysisSkillModel{}).Error; err != nil {
			return fmt.Errorf("clear skills of analysis %s: %w", t.To.ID, err)
		}
		if t.To.Status != analysis.StatusCompleted || len(t.SkillIDs) == 0 {
			return nil
		}

		links := make([]analysisSkillModel, 0, len(t.SkillIDs))
		for _, id := range t.SkillIDs {
			links = append(links, analysisSkillModel{AnalysisID: t.To.ID, SkillID: id})
		}
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
		if err != nil {
			return fmt.Errorf("link skills of analysis %s: %w", t.To.ID, err)
		}
		return nil
	})
}

// SetRecruitmentStatus changes the human workflow state. The pipeline version is
// left untouched.
func (r *Analyses) SetRecruitmentStatus(ctx context.Context, id string, status analysis.RecruitmentStatus) error {
	res := r.db.WithContext(ctx).
		Model(&analysisModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"recruitment_status": string(status),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update recruitment status of analysis %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return analysis.ErrNotFound
	}
	return nil
}

type roleStatsRow struct {
	Total        int64
	Completed    int64
	Failed       int64
	AvgTechnical *float64
	AvgCulture   *float64
}

// RoleStats counts the analyses of a role and averages the scores of completed ones.
func (r *Analyses) RoleStats(ctx context.Context, roleID string) (analysis.RoleStats, error) {
	completed := string(analysis.StatusCompleted)

	var row roleStatsRow
	err := r.db.WithContext(ctx).
		Model(&analysisModel{}).
		Select(`COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = ?) AS completed,
			COUNT(*) FILTER (WHERE status = ?) AS failed,
			AVG(technical_score) FILTER (WHERE status = ?) AS avg_technical,
			AVG(culture_score) FILTER (WHERE status = ?) AS avg_culture`,
			completed, string(analysis.StatusFailed), completed, completed).
		Where("role_id = ?", roleID).
		Scan(&row).Error
	if err != nil {
		return analysis.RoleStats{}, fmt.Errorf("role %s stats: %w", roleID, err)
	}

	return analysis.RoleStats{
		RoleID:                roleID,
		Total:                 row.Total,
		Completed:             row.Completed,
		Failed:                row.Failed,
		AverageTechnicalScore: row.AvgTechnical,
		AverageCultureScore:   row.AvgCulture,
	}, nil
}

package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/spigell/resume-screener/internal/analysis"
)

type resumeModel struct {
	ID               string    `gorm:"column:id;type:uuid;primaryKey"`
	UserID           string    `gorm:"column:user_id;type:uuid;index"`
	OriginalFilename string    `gorm:"column:original_filename;type:varchar(255)"`
	StoragePath      string    `gorm:"column:storage_path;type:text"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (resumeModel) TableName() string { return "resumes" }

type roleModel struct {
	ID          string    `gorm:"column:id;type:uuid;primaryKey"`
	UserID      string    `gorm:"column:user_id;type:uuid;index"`
	Name        string    `gorm:"column:name;type:varchar(255)"`
	Slug        string    `gorm:"column:slug;type:varchar(255);index"`
	Requirement string    `gorm:"column:requirement;type:text"`
	Culture     string    `gorm:"column:culture;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (roleModel) TableName() string { return "roles" }

type skillModel struct {
	ID        string    `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;type:varchar(255);uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (skillModel) TableName() string { return "skills" }

type analysisModel struct {
	ID                string         `gorm:"column:id;type:uuid;primaryKey"`
	ResumeID          string         `gorm:"column:resume_id;type:uuid;not null;uniqueIndex:idx_analyses_resume_role,priority:1"`
	RoleID            string         `gorm:"column:role_id;type:uuid;not null;uniqueIndex:idx_analyses_resume_role,priority:2;index"`
	Status            string         `gorm:"column:status;type:varchar(20);not null;index"`
	RecruitmentStatus string         `gorm:"column:recruitment_status;type:varchar(20);not null;default:new"`
	Version           int64          `gorm:"column:version;not null;default:0"`
	CandidateName     *string        `gorm:"column:candidate_name;type:varchar(255)"`
	TechnicalScore    *int           `gorm:"column:technical_score"`
	CultureScore      *int           `gorm:"column:culture_score"`
	Summary           *string        `gorm:"column:summary;type:text"`
	Justification     datatypes.JSON `gorm:"column:justification;type:jsonb"`
	RawResult         datatypes.JSON `gorm:"column:raw_result;type:jsonb"`
	CreatedAt         time.Time      `gorm:"column:created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at"`

	Resume *resumeModel `gorm:"foreignKey:ResumeID;constraint:OnDelete:CASCADE"`
	Role   *roleModel   `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
}

func (analysisModel) TableName() string { return "analyses" }

type analysisSkillModel struct {
	AnalysisID string `gorm:"column:analysis_id;type:uuid;primaryKey"`
	SkillID    string `gorm:"column:skill_id;type:uuid;primaryKey;index"`
}

func (analysisSkillModel) TableName() string { return "analysis_skill" }

func (m resumeModel) toDomain() analysis.Resume {
	return analysis.Resume{
		ID:               m.ID,
		UserID:           m.UserID,
		OriginalFilename: m.OriginalFilename,
		StoragePath:      m.StoragePath,
	}
}

func (m roleModel) toDomain() analysis.Role {
	return analysis.Role{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Slug:        m.Slug,
		Requirement: m.Requirement,
		Culture:     m.Culture,
	}
}

func newAnalysisModel(a analysis.Analysis) analysisModel {
	return analysisModel{
		ID:                a.ID,
		ResumeID:          a.ResumeID,
		RoleID:            a.RoleID,
		Status:            string(a.Status),
		RecruitmentStatus: string(a.RecruitmentStatus),
		Version:           a.Version,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

// toDomain builds the snapshot. Result is only set when the row is completed.
func (m analysisModel) toDomain(skills []skillModel) (analysis.Analysis, error) {
	if !analysis.Status(m.Status).Valid() {
		return analysis.Analysis{}, fmt.Errorf("analysis %s has unknown status %q", m.ID, m.Status)
	}

	a := analysis.Analysis{
		ID:                m.ID,
		ResumeID:          m.ResumeID,
		RoleID:            m.RoleID,
		Status:            analysis.Status(m.Status),
		RecruitmentStatus: analysis.RecruitmentStatus(m.RecruitmentStatus),
		Version:           m.Version,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.Resume != nil {
		r := m.Resume.toDomain()
		a.Resume = &r
	}
	if m.Role != nil {
		r := m.Role.toDomain()
		a.Role = &r
	}

	for _, s := range skills {
		a.Skills = append(a.Skills, analysis.Skill{ID: s.ID, Name: s.Name})
	}

	if a.Status != analysis.StatusCompleted {
		return a, nil
	}

	result := analysis.Result{
		CandidateName: deref(m.CandidateName),
		Summary:       deref(m.Summary),
		Skills:        make([]string, 0, len(skills)),
	}
	if m.TechnicalScore != nil {
		result.TechnicalScore = *m.TechnicalScore
	}
	if m.CultureScore != nil {
		result.CultureScore = *m.CultureScore
	}
	if len(m.Justification) > 0 {
		if err := json.Unmarshal(m.Justification, &result.Justification); err != nil {
			return analysis.Analysis{}, fmt.Errorf("decode justification of analysis %s: %w", m.ID, err)
		}
	}
	for _, s := range skills {
		result.Skills = append(result.Skills, s.Name)
	}

	a.Result = &result
	a.RawResult = json.RawMessage(m.RawResult)
	return a, nil
}

// pipelineColumns returns the columns written by a transition. Result columns
// are cleared whenever the target snapshot carries no result.
func pipelineColumns(to analysis.Analysis) (map[string]any, error) {
	cols := map[string]any{
		"status":          string(to.Status),
		"version":         to.Version,
		"updated_at":      to.UpdatedAt,
		"candidate_name":  nil,
		"technical_score": nil,
		"culture_score":   nil,
		"summary":         nil,
		"justification":   nil,
		"raw_result":      nil,
	}

	if to.Result == nil {
		return cols, nil
	}

	justification, err := json.Marshal(to.Result.Justification)
	if err != nil {
		return nil, fmt.Errorf("encode justification: %w", err)
	}

	cols["candidate_name"] = to.Result.CandidateName
	cols["technical_score"] = to.Result.TechnicalScore
	cols["culture_score"] = to.Result.CultureScore
	cols["summary"] = to.Result.Summary
	cols["justification"] = datatypes.JSON(justification)
	if len(to.RawResult) > 0 {
		cols["raw_result"] = datatypes.JSON(to.RawResult)
	}
	return cols, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

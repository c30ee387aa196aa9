// Package analysis holds the domain model of a resume evaluated against a role and
// the pure state transitions that drive it through the pipeline.
package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Status is the pipeline state of an Analysis.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status ends an attempt.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// RecruitmentStatus is the human workflow state. The pipeline never touches it.
type RecruitmentStatus string

const (
	RecruitmentNew         RecruitmentStatus = "new"
	RecruitmentReviewed    RecruitmentStatus = "reviewed"
	RecruitmentShortlisted RecruitmentStatus = "shortlisted"
	RecruitmentRejected    RecruitmentStatus = "rejected"
)

// ParseRecruitmentStatus accepts the status name in any case.
func ParseRecruitmentStatus(v string) (RecruitmentStatus, error) {
	switch rs := RecruitmentStatus(strings.ToLower(strings.TrimSpace(v))); rs {
	case RecruitmentNew, RecruitmentReviewed, RecruitmentShortlisted, RecruitmentRejected:
		return rs, nil
	}
	return "", fmt.Errorf("unknown recruitment status %q", v)
}

// Resume is an uploaded candidate document.
type Resume struct {
	ID               string
	UserID           string
	OriginalFilename string
	StoragePath      string
}

// Role is an evaluation profile.
type Role struct {
	ID          string
	UserID      string
	Name        string
	Slug        string
	Requirement string
	Culture     string
}

// Skill is a canonical skill name shared by all users.
type Skill struct {
	ID   string
	Name string
}

// Justification lists the reasons behind the scores.
type Justification struct {
	PositivePoints []string `json:"positive_points"`
	NegativePoints []string `json:"negative_points"`
}

// Result is the validated outcome of an AI evaluation.
type Result struct {
	CandidateName  string        `json:"nama_kandidat"`
	TechnicalScore int           `json:"technical_score"`
	CultureScore   int           `json:"culture_score"`
	Summary        string        `json:"summary"`
	Skills         []string      `json:"skills"`
	Justification  Justification `json:"justification"`
}

const unknownCandidate = "Unknown Candidate"

// Analysis is an immutable snapshot of one (resume, role) evaluation.
// Result and RawResult are set together, and only while Status is completed.
type Analysis struct {
	ID                string
	ResumeID          string
	RoleID            string
	Status            Status
	RecruitmentStatus RecruitmentStatus
	Version           int64

	Result    *Result
	RawResult json.RawMessage

	Resume *Resume
	Role   *Role
	Skills []Skill

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPending returns the initial snapshot for a (resume, role) pair.
func NewPending(id, resumeID, roleID string, now time.Time) Analysis {
	return Analysis{
		ID:                id,
		ResumeID:          resumeID,
		RoleID:            roleID,
		Status:            StatusPending,
		RecruitmentStatus: RecruitmentNew,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// OverallScore is the mean of both scores rounded to one decimal.
func (a Analysis) OverallScore() (float64, bool) {
	if a.Status != StatusCompleted || a.Result == nil {
		return 0, false
	}
	mean := float64(a.Result.TechnicalScore+a.Result.CultureScore) / 2
	return math.Round(mean*10) / 10, true
}

func (a Analysis) CandidateName() string {
	if a.Result == nil || strings.TrimSpace(a.Result.CandidateName) == "" {
		return unknownCandidate
	}
	return a.Result.CandidateName
}

// RoleStats aggregates the analyses of one role.
type RoleStats struct {
	RoleID                string
	Total                 int64
	Completed             int64
	Failed                int64
	AverageTechnicalScore *float64
	AverageCultureScore   *float64
}

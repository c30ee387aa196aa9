// Package api exposes analysis dispatch and results over HTTP.
package api

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/analysis"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, resumeID, roleID string) (analysis.Analysis, bool, error)
	StartForRole(ctx context.Context, userID, roleID string) (int, error)
	Reanalyze(ctx context.Context, analysisID string) (analysis.Analysis, error)
}

type AnalysisStore interface {
	Get(ctx context.Context, id string) (analysis.Analysis, error)
	SetRecruitmentStatus(ctx context.Context, id string, status analysis.RecruitmentStatus) error
	RoleStats(ctx context.Context, roleID string) (analysis.RoleStats, error)
}

type ResumeGetter interface {
	Get(ctx context.Context, id string) (analysis.Resume, error)
}

type RoleGetter interface {
	Get(ctx context.Context, id string) (analysis.Role, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies wires the handlers. Health is optional.
type Dependencies struct {
	Dispatcher Dispatcher
	Analyses   AnalysisStore
	Resumes    ResumeGetter
	Roles      RoleGetter
	Health     Pinger
	Logger     *zap.Logger
}

type handler struct {
	deps Dependencies
}

// validID reports whether id can name a stored record. Every key is a UUID.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// pathID returns the :id parameter, answering with notFound when it is not a UUID.
func pathID(c *gin.Context, notFound error) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if !validID(id) {
		writeError(c, notFound)
		return "", false
	}
	return id, true
}

type createAnalysisRequest struct {
	ResumeID string `json:"resume_id"`
	RoleID   string `json:"role_id"`
}

func (h *handler) createAnalysis(c *gin.Context) {
	var req createAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalid("request body must be a json object", err))
		return
	}
	req.ResumeID = strings.TrimSpace(req.ResumeID)
	req.RoleID = strings.TrimSpace(req.RoleID)
	if req.ResumeID == "" || req.RoleID == "" {
		writeError(c, invalid("resume_id and role_id are required", nil))
		return
	}
	if !validID(req.ResumeID) {
		writeError(c, analysis.ErrResumeNotFound)
		return
	}
	if !validID(req.RoleID) {
		writeError(c, analysis.ErrRoleNotFound)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.deps.Resumes.Get(ctx, req.ResumeID); err != nil {
		writeError(c, err)
		return
	}
	if _, err := h.deps.Roles.Get(ctx, req.RoleID); err != nil {
		writeError(c, err)
		return
	}

	a, created, err := h.deps.Dispatcher.Dispatch(ctx, req.ResumeID, req.RoleID)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, newAnalysisResponse(a))
}

type startRequest struct {
	UserID string `json:"user_id"`
}

func (h *handler) startForRole(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalid("request body must be a json object", err))
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(c, invalid("user_id is required", nil))
		return
	}
	if !validID(userID) {
		writeError(c, invalid("user_id must be a uuid", nil))
		return
	}
	roleID, ok := pathID(c, analysis.ErrRoleNotFound)
	if !ok {
		return
	}

	count, err := h.deps.Dispatcher.StartForRole(c.Request.Context(), userID, roleID)
	if err != nil {
		writeError(c, err)
		return
	}

	if count == 0 {
		c.JSON(http.StatusOK, gin.H{"dispatched": 0, "message": "every resume already has an analysis for this role"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"dispatched": count})
}

func (h *handler) reanalyze(c *gin.Context) {
	id, ok := pathID(c, analysis.ErrNotFound)
	if !ok {
		return
	}

	a, err := h.deps.Dispatcher.Reanalyze(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, newAnalysisResponse(a))
}

func (h *handler) getAnalysis(c *gin.Context) {
	id, ok := pathID(c, analysis.ErrNotFound)
	if !ok {
		return
	}

	a, err := h.deps.Analyses.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAnalysisResponse(a))
}

type recruitmentStatusRequest struct {
	RecruitmentStatus string `json:"recruitment_status"`
}

func (h *handler) setRecruitmentStatus(c *gin.Context) {
	id, ok := pathID(c, analysis.ErrNotFound)
	if !ok {
		return
	}

	var req recruitmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalid("request body must be a json object", err))
		return
	}
	status, err := analysis.ParseRecruitmentStatus(req.RecruitmentStatus)
	if err != nil {
		writeError(c, invalid("recruitment_status must be one of new, reviewed, shortlisted, rejected", err))
		return
	}

	if err := h.deps.Analyses.SetRecruitmentStatus(c.Request.Context(), id, status); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type roleStatsResponse struct {
	RoleID                string   `json:"role_id"`
	Total                 int64    `json:"total"`
	Completed             int64    `json:"completed"`
	Failed                int64    `json:"failed"`
	AverageTechnicalScore *float64 `json:"average_technical_score"`
	AverageCultureScore   *float64 `json:"average_culture_score"`
}

func (h *handler) roleStats(c *gin.Context) {
	roleID, ok := pathID(c, analysis.ErrRoleNotFound)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	role, err := h.deps.Roles.Get(ctx, roleID)
	if err != nil {
		writeError(c, err)
		return
	}

	stats, err := h.deps.Analyses.RoleStats(ctx, role.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, roleStatsResponse{
		RoleID:                stats.RoleID,
		Total:                 stats.Total,
		Completed:             stats.Completed,
		Failed:                stats.Failed,
		AverageTechnicalScore: round1(stats.AverageTechnicalScore),
		AverageCultureScore:   round1(stats.AverageCultureScore),
	})
}

func (h *handler) healthz(c *gin.Context) {
	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Health.Ping(ctx); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, APIError{Code: CodeUnavailable, Message: "database unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type analysisResponse struct {
	ID                string                     `json:"id"`
	ResumeID          string                     `json:"resume_id"`
	RoleID            string                     `json:"role_id"`
	Status            analysis.Status            `json:"status"`
	RecruitmentStatus analysis.RecruitmentStatus `json:"recruitment_status"`
	CandidateName     string                     `json:"candidate_name"`
	TechnicalScore    *int                       `json:"technical_score"`
	CultureScore      *int                       `json:"culture_score"`
	OverallScore      *float64                   `json:"overall_score"`
	Summary           string                     `json:"summary,omitempty"`
	Skills            []string                   `json:"skills"`
	Justification     *analysis.Justification    `json:"justification,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

func newAnalysisResponse(a analysis.Analysis) analysisResponse {
	resp := analysisResponse{
		ID:                a.ID,
		ResumeID:          a.ResumeID,
		RoleID:            a.RoleID,
		Status:            a.Status,
		RecruitmentStatus: a.RecruitmentStatus,
		CandidateName:     a.CandidateName(),
		Skills:            []string{},
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}

	if overall, ok := a.OverallScore(); ok {
		resp.OverallScore = &overall
	}

	if a.Status == analysis.StatusCompleted && a.Result != nil {
		technical, culture := a.Result.TechnicalScore, a.Result.CultureScore
		resp.TechnicalScore = &technical
		resp.CultureScore = &culture
		resp.Summary = a.Result.Summary
		j := a.Result.Justification
		resp.Justification = &j
		for _, s := range a.Skills {
			resp.Skills = append(resp.Skills, s.Name)
		}
	}

	return resp
}

func round1(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*10) / 10
	return &r
}

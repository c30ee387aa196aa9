package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spigell/resume-screener/internal/analysis"
	"github.com/spigell/resume-screener/internal/jobs"
)

const (
	resumeID      = "3f0c2a9e-6b1d-4e8a-9c47-5d2e8b1f0a11"
	roleID        = "7a4e1c9b-2d3f-4b6a-8e15-0c9d7f2a6b22"
	userID        = "c2b8f4e1-9a6d-4c3e-b7f0-1e5a9d3c8f33"
	analysisID    = "9e1d5b7c-3a2f-4d8e-b6c0-4a7f2e9d1c55"
	newAnalysisID = "5c9a2e4f-8b1d-4f6c-a3e7-2d8b6f0a4e77"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubDispatcher struct {
	existing   map[string]analysis.Analysis
	startCount int
	startErr   error
	reanalyze  func(id string) (analysis.Analysis, error)
	calls      int
}

func (s *stubDispatcher) Dispatch(_ context.Context, resumeID, roleID string) (analysis.Analysis, bool, error) {
	s.calls++
	key := resumeID + "/" + roleID
	if a, ok := s.existing[key]; ok {
		return a, false, nil
	}
	a := analysis.NewPending(newAnalysisID, resumeID, roleID, time.Now())
	s.existing[key] = a
	return a, true, nil
}

func (s *stubDispatcher) StartForRole(context.Context, string, string) (int, error) {
	s.calls++
	return s.startCount, s.startErr
}

func (s *stubDispatcher) Reanalyze(_ context.Context, id string) (analysis.Analysis, error) {
	s.calls++
	return s.reanalyze(id)
}

type stubAnalyses struct {
	items map[string]analysis.Analysis
	stats analysis.RoleStats
}

func (s *stubAnalyses) Get(_ context.Context, id string) (analysis.Analysis, error) {
	a, ok := s.items[id]
	if !ok {
		return analysis.Analysis{}, analysis.ErrNotFound
	}
	return a, nil
}

func (s *stubAnalyses) SetRecruitmentStatus(_ context.Context, id string, status analysis.RecruitmentStatus) error {
	a, ok := s.items[id]
	if !ok {
		return analysis.ErrNotFound
	}
	a.RecruitmentStatus = status
	s.items[id] = a
	return nil
}

func (s *stubAnalyses) RoleStats(_ context.Context, roleID string) (analysis.RoleStats, error) {
	stats := s.stats
	stats.RoleID = roleID
	return stats, nil
}

type stubResumes struct{}

func (stubResumes) Get(_ context.Context, id string) (analysis.Resume, error) {
	if id != resumeID {
		return analysis.Resume{}, analysis.ErrResumeNotFound
	}
	return analysis.Resume{ID: id}, nil
}

type stubRoles struct{}

func (stubRoles) Get(_ context.Context, id string) (analysis.Role, error) {
	if id != roleID {
		return analysis.Role{}, analysis.ErrRoleNotFound
	}
	return analysis.Role{ID: id, UserID: userID}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func completedAnalysis() analysis.Analysis {
	a := analysis.NewPending(analysisID, resumeID, roleID, time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC))
	a.Status = analysis.StatusCompleted
	a.Version = 2
	a.Result = &analysis.Result{
		CandidateName:  "Jane Doe",
		TechnicalScore: 85,
		CultureScore:   70,
		Summary:        "Backend engineer.",
		Skills:         []string{"Go", "SQL"},
		Justification:  analysis.Justification{PositivePoints: []string{"strong backend"}, NegativePoints: []string{}},
	}
	a.Skills = []analysis.Skill{{ID: "s1", Name: "Go"}, {ID: "s2", Name: "SQL"}}
	return a
}

type fixture struct {
	router     *gin.Engine
	dispatcher *stubDispatcher
	analyses   *stubAnalyses
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dispatcher: &stubDispatcher{existing: map[string]analysis.Analysis{}},
		analyses:   &stubAnalyses{items: map[string]analysis.Analysis{analysisID: completedAnalysis()}},
	}
	f.router = NewRouter(Dependencies{
		Dispatcher: f.dispatcher,
		Analyses:   f.analyses,
		Resumes:    stubResumes{},
		Roles:      stubRoles{},
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestCreateAnalysis(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/analyses", `{"resume_id":"3f0c2a9e-6b1d-4e8a-9c47-5d2e8b1f0a11","role_id":"7a4e1c9b-2d3f-4b6a-8e15-0c9d7f2a6b22"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "pending" || body["id"] != newAnalysisID {
		t.Fatalf("unexpected body %v", body)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}

	rec = f.do(t, http.MethodPost, "/api/analyses", `{"resume_id":"3f0c2a9e-6b1d-4e8a-9c47-5d2e8b1f0a11","role_id":"7a4e1c9b-2d3f-4b6a-8e15-0c9d7f2a6b22"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for existing analysis, got %d", rec.Code)
	}
}

func TestCreateAnalysisValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   Code
	}{
		{name: "malformed body", body: `[`, status: http.StatusBadRequest, code: CodeInvalidArgument},
		{name: "missing role", body: `{"resume_id":"3f0c2a9e-6b1d-4e8a-9c47-5d2e8b1f0a11"}`, status: http.StatusBadRequest, code: CodeInvalidArgument},
		{name: "unknown resume", body: `{"resume_id":"e8f2c6a4-0b9d-4c1e-8a3f-5b7d2e9c6a99","role_id":"7a4e1c9b-2d3f-4b6a-8e15-0c9d7f2a6b22"}`, status: http.StatusNotFound, code: CodeNotFound},
		{name: "unknown role", body: `{"resume_id":"3f0c2a9e-6b1d-4e8a-9c47-5d2e8b1f0a11","role_id":"e8f2c6a4-0b9d-4c1e-8a3f-5b7d2e9c6a99"}`, status: http.StatusNotFound, code: CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/analyses", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if body := decodeBody(t, rec); body["code"] != string(tt.code) {
				t.Fatalf("expected code %s, got %v", tt.code, body["code"])
			}
		})
	}
}

func TestGetAnalysis(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/analyses/"+analysisID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["candidate_name"] != "Jane Doe" || body["technical_score"] != float64(85) || body["overall_score"] != 77.5 {
		t.Fatalf("unexpected body %v", body)
	}
	if skills, ok := body["skills"].([]any); !ok || len(skills) != 2 {
		t.Fatalf("unexpected skills %v", body["skills"])
	}

	if rec := f.do(t, http.MethodGet, "/api/analyses/6d0b4f8a-1e3c-4a5d-9f2b-8e6c4a1d7f88", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetPendingAnalysisHasNoScores(t *testing.T) {
	f := newFixture(t)
	pendingID := "1b7f3d9e-6c4a-4e2b-8d1f-7c5a0e3b9d66"
	f.analyses.items[pendingID] = analysis.NewPending(pendingID, resumeID, roleID, time.Now())

	body := decodeBody(t, f.do(t, http.MethodGet, "/api/analyses/"+pendingID, ""))
	if body["technical_score"] != nil || body["overall_score"] != nil {
		t.Fatalf("pending analysis must not expose scores: %v", body)
	}
	if body["candidate_name"] != "Unknown Candidate" {
		t.Fatalf("unexpected candidate name %v", body["candidate_name"])
	}
}

func TestSetRecruitmentStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPatch, "/api/analyses/"+analysisID+"/recruitment-status", `{"recruitment_status":"Shortlisted"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.analyses.items[analysisID].RecruitmentStatus != analysis.RecruitmentShortlisted {
		t.Fatalf("recruitment status not stored")
	}

	rec = f.do(t, http.MethodPatch, "/api/analyses/"+analysisID+"/recruitment-status", `{"recruitment_status":"hired"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestStartForRole(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.startCount = 3

	rec := f.do(t, http.MethodPost, "/api/roles/"+roleID+"/analyses/start", `{"user_id":"c2b8f4e1-9a6d-4c3e-b7f0-1e5a9d3c8f33"}`)
	if rec.Code != http.StatusAccepted || decodeBody(t, rec)["dispatched"] != float64(3) {
		t.Fatalf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}

	f.dispatcher.startCount = 0
	if rec := f.do(t, http.MethodPost, "/api/roles/"+roleID+"/analyses/start", `{"user_id":"c2b8f4e1-9a6d-4c3e-b7f0-1e5a9d3c8f33"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when nothing new, got %d", rec.Code)
	}

	f.dispatcher.startErr = jobs.ErrForbidden
	if rec := f.do(t, http.MethodPost, "/api/roles/"+roleID+"/analyses/start", `{"user_id":"d4e6a1b3-5c7f-4e9d-a2b8-6f0c1e7d9a44"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	f.dispatcher.startErr = jobs.ErrNoResumes
	if rec := f.do(t, http.MethodPost, "/api/roles/"+roleID+"/analyses/start", `{"user_id":"c2b8f4e1-9a6d-4c3e-b7f0-1e5a9d3c8f33"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestReanalyze(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.reanalyze = func(id string) (analysis.Analysis, error) {
		if id == analysisID {
			return analysis.NewPending(analysisID, resumeID, roleID, time.Now()), nil
		}
		return analysis.Analysis{}, analysis.ErrInvalidTransition
	}

	if rec := f.do(t, http.MethodPost, "/api/analyses/"+analysisID+"/reanalyze", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/analyses/1b7f3d9e-6c4a-4e2b-8d1f-7c5a0e3b9d66/reanalyze", ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestRoleStats(t *testing.T) {
	f := newFixture(t)
	avg := 77.333
	f.analyses.stats = analysis.RoleStats{Total: 4, Completed: 3, Failed: 1, AverageTechnicalScore: &avg}

	rec := f.do(t, http.MethodGet, "/api/roles/"+roleID+"/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["total"] != float64(4) || body["average_technical_score"] != 77.3 || body["average_culture_score"] != nil {
		t.Fatalf("unexpected stats %v", body)
	}

	if rec := f.do(t, http.MethodGet, "/api/roles/e8f2c6a4-0b9d-4c1e-8a3f-5b7d2e9c6a99/stats", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMalformedIdentifiers(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   Code
	}{
		{name: "get analysis", method: http.MethodGet, path: "/api/analyses/not-a-uuid", status: http.StatusNotFound, code: CodeNotFound},
		{name: "reanalyze", method: http.MethodPost, path: "/api/analyses/123/reanalyze", status: http.StatusNotFound, code: CodeNotFound},
		{name: "recruitment status", method: http.MethodPatch, path: "/api/analyses/a1/recruitment-status", body: `{"recruitment_status":"reviewed"}`, status: http.StatusNotFound, code: CodeNotFound},
		{name: "role stats", method: http.MethodGet, path: "/api/roles/backend/stats", status: http.StatusNotFound, code: CodeNotFound},
		{name: "start for role", method: http.MethodPost, path: "/api/roles/backend/analyses/start", body: `{"user_id":"c2b8f4e1-9a6d-4c3e-b7f0-1e5a9d3c8f33"}`, status: http.StatusNotFound, code: CodeNotFound},
		{name: "start with bad user", method: http.MethodPost, path: "/api/roles/" + roleID + "/analyses/start", body: `{"user_id":"user-1"}`, status: http.StatusBadRequest, code: CodeInvalidArgument},
		{name: "create with bad resume", method: http.MethodPost, path: "/api/analyses", body: `{"resume_id":"resume-1","role_id":"7a4e1c9b-2d3f-4b6a-8e15-0c9d7f2a6b22"}`, status: http.StatusNotFound, code: CodeNotFound},
		{name: "create with bad role", method: http.MethodPost, path: "/api/analyses", body: `{"resume_id":"3f0c2a9e-6b1d-4e8a-9c47-5d2e8b1f0a11","role_id":"role-1"}`, status: http.StatusNotFound, code: CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.dispatcher.reanalyze = func(string) (analysis.Analysis, error) {
				return analysis.Analysis{}, errors.New("must not be reached")
			}

			rec := f.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if body := decodeBody(t, rec); body["code"] != string(tt.code) {
				t.Fatalf("expected code %s, got %v", tt.code, body["code"])
			}
			if f.dispatcher.calls != 0 {
				t.Fatalf("dispatcher must not be called for a malformed identifier")
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	router := NewRouter(Dependencies{Health: stubPinger{err: errors.New("down")}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	router = NewRouter(Dependencies{Health: stubPinger{}})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

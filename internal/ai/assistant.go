package ai

import "context"

// Request carries the role profile and the resume text to evaluate.
type Request struct {
	RoleName    string
	Requirement string
	Culture     string
	ResumeText  string
}

// RawResponse is the decoded JSON object returned by the model. Numbers are kept
// as json.Number so integer checks stay exact.
type RawResponse map[string]any

// Analyzer scores a resume against a role with a generative model. It only
// guarantees that the response is a JSON object; field validation happens later.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (RawResponse, error)
}

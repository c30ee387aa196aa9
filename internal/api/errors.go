package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spigell/resume-screener/internal/analysis"
	"github.com/spigell/resume-screener/internal/jobs"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnprocessable   Code = "UNPROCESSABLE"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

type requestError struct {
	message string
	err     error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *requestError) Unwrap() error { return e.err }

func invalid(message string, err error) error {
	return &requestError{message: message, err: err}
}

func classify(err error) (int, Code, string) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, CodeInvalidArgument, reqErr.message
	case errors.Is(err, analysis.ErrNotFound),
		errors.Is(err, analysis.ErrResumeNotFound),
		errors.Is(err, analysis.ErrRoleNotFound):
		return http.StatusNotFound, CodeNotFound, err.Error()
	case errors.Is(err, jobs.ErrForbidden):
		return http.StatusForbidden, CodeForbidden, err.Error()
	case errors.Is(err, jobs.ErrNoResumes):
		return http.StatusUnprocessableEntity, CodeUnprocessable, err.Error()
	case errors.Is(err, analysis.ErrInvalidTransition),
		errors.Is(err, analysis.ErrStale),
		errors.Is(err, analysis.ErrInProgress):
		return http.StatusConflict, CodeConflict, err.Error()
	}
	return http.StatusInternalServerError, CodeInternal, http.StatusText(http.StatusInternalServerError)
}

func writeError(c *gin.Context, err error) {
	status, code, message := classify(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, APIError{Code: code, Message: message})
}

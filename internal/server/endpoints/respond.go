package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cuentosapp/cuentos-server/internal/processor"
	"github.com/cuentosapp/cuentos-server/internal/store"
)

// Error codes returned in the error envelope.
const (
	CodeSourceNotFound  = "BOOK_SOURCE_NOT_FOUND"
	CodeJobNotFound     = "JOB_NOT_FOUND"
	CodeJobRunning      = "JOB_ALREADY_RUNNING"
	CodeJobCompleted    = "JOB_COMPLETED"
	CodeJobFailed       = "JOB_FAILED"
	CodeChaptersExist   = "CHAPTERS_ALREADY_EXIST"
	CodeNoParsingResult = "NO_PARSING_RESULT"
	CodeNoApproved      = "NO_APPROVED_CHAPTERS"
	CodeBadRequest      = "BAD_REQUEST"
	CodeInternal        = "INTERNAL"
)

// ErrorResponse is the error envelope for all API endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with a machine-readable code.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// writeProcessorError maps processor sentinel errors onto HTTP status
// codes and envelope codes. Unknown errors become a 500.
func writeProcessorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, processor.ErrSourceNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeSourceNotFound, err.Error())
	case errors.Is(err, processor.ErrJobNotFound):
		writeError(w, http.StatusNotFound, CodeJobNotFound, err.Error())
	case errors.Is(err, processor.ErrJobAlreadyRunning):
		writeError(w, http.StatusConflict, CodeJobRunning, err.Error())
	case errors.Is(err, processor.ErrJobCompleted):
		writeError(w, http.StatusBadRequest, CodeJobCompleted, err.Error())
	case errors.Is(err, processor.ErrJobFailed):
		writeError(w, http.StatusBadRequest, CodeJobFailed, err.Error())
	case errors.Is(err, processor.ErrChaptersExist):
		writeError(w, http.StatusConflict, CodeChaptersExist, err.Error())
	case errors.Is(err, processor.ErrNoParsingResult):
		writeError(w, http.StatusBadRequest, CodeNoParsingResult, err.Error())
	case errors.Is(err, processor.ErrNoApprovedChapters):
		writeError(w, http.StatusBadRequest, CodeNoApproved, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}

// JobResponse is the wire shape for a processing job snapshot.
type JobResponse struct {
	JobID        string `json:"job_id"`
	BookSourceID string `json:"book_source_id"`
	BookID       string `json:"book_id,omitempty"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ErrorMessage string `json:"error_message,omitempty"`
	ResultJSON   string `json:"result_json,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	StartedAt    string `json:"started_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

func jobResponse(j *store.ProcessingJob) JobResponse {
	resp := JobResponse{
		JobID:        j.ID,
		BookSourceID: j.BookSourceID,
		BookID:       j.BookID,
		Kind:         j.Kind,
		Status:       j.Status,
		Progress:     j.Progress,
		ErrorMessage: j.ErrorMessage,
		ResultJSON:   j.ResultJSON,
	}
	if !j.CreatedAt.IsZero() {
		resp.CreatedAt = j.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !j.StartedAt.IsZero() {
		resp.StartedAt = j.StartedAt.UTC().Format(time.RFC3339)
	}
	if !j.CompletedAt.IsZero() {
		resp.CompletedAt = j.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

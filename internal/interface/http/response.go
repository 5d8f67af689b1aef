package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of every response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
	Page       int       `json:"page,omitempty"`
	PageSize   int       `json:"page_size,omitempty"`
	HasMore    bool      `json:"has_more,omitempty"`
	FromCache  bool      `json:"from_cache,omitempty"`
}

// Error codes.
const (
	codeNotFound               = "NOT_FOUND"
	codeValidation             = "VALIDATION_ERROR"
	codeInvalidQuizDefinition  = "INVALID_QUIZ_DEFINITION"
	codeAlreadyExists          = "ALREADY_EXISTS"
	codeNotJoined              = "NOT_JOINED"
	codeConcurrentModification = "CONCURRENT_MODIFICATION"
	codeUnauthorized           = "UNAUTHORIZED"
	codeServiceUnavailable     = "SERVICE_UNAVAILABLE"
	codeInternal               = "INTERNAL_ERROR"
)

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeDataWithMeta(w, r, status, data, nil)
}

func writeDataWithMeta(w http.ResponseWriter, r *http.Request, status int, data any, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = "v1"

	writeEnvelope(w, status, JSONResponse{
		Success:   true,
		Data:      data,
		Meta:      meta,
		RequestID: getRequestID(r.Context()),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeAPIError(w, r, status, &APIError{Code: code, Message: message})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *APIError) {
	writeEnvelope(w, status, JSONResponse{
		Success:   false,
		Error:     apiErr,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: getRequestID(r.Context()),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// statusFor maps a domain error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNotJoined):
		return http.StatusConflict, codeNotJoined
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, codeAlreadyExists
	case shared.IsNotFound(err):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, shared.ErrInvalidDefinition):
		return http.StatusUnprocessableEntity, codeInvalidQuizDefinition
	case shared.IsValidation(err):
		return http.StatusBadRequest, codeValidation
	case shared.IsConcurrentModification(err):
		return http.StatusServiceUnavailable, codeConcurrentModification
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, shared.ErrServiceUnavailable), errors.Is(err, shared.ErrTimeout):
		return http.StatusServiceUnavailable, codeServiceUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// writeDomainError maps err to the error envelope. Internal errors are
// logged and their message is not exposed.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	message := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) && error(de) == err {
		message = de.Message
	}

	switch status {
	case http.StatusInternalServerError:
		s.logger.Error("request failed", logger.Err(err), logger.String("path", r.URL.Path))
		message = "internal error"
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		s.logger.Warn("request rejected", logger.Err(err), logger.String("path", r.URL.Path))
	}

	writeError(w, r, status, code, message)
}

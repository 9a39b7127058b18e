package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/telemetry"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error API response. Code carries the domain
// error code when there is one.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("failed to encode response: %v", err)
		}
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

var codeStatus = map[string]int{
	domain.ErrCodeValidation:          http.StatusBadRequest,
	domain.ErrCodeNotFound:            http.StatusNotFound,
	domain.ErrCodeAlreadyExists:       http.StatusConflict,
	domain.ErrCodeUnauthorized:        http.StatusUnauthorized,
	domain.ErrCodeForbidden:           http.StatusForbidden,
	domain.ErrCodeInvalidOperation:    http.StatusConflict,
	domain.ErrCodeExtractionFailed:    http.StatusUnprocessableEntity,
	domain.ErrCodeExpired:             http.StatusGone,
	domain.ErrCodeUpstreamUnavailable: http.StatusServiceUnavailable,
	domain.ErrCodeInternalError:       http.StatusInternalServerError,
}

// DomainErrorToHTTP maps domain errors, wrapped or not, to HTTP status codes.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}
	if status, ok := codeStatus[domainErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError writes an error response for err. Internal failures are
// reported to telemetry and their details kept out of the response body.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status := DomainErrorToHTTP(err)

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		telemetry.CaptureError(r.Context(), err)
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		if status == http.StatusRequestEntityTooLarge {
			Error(w, status, "request body too large")
			return
		}
		Error(w, status, "internal server error")
		return
	}

	if status >= http.StatusInternalServerError {
		telemetry.CaptureError(r.Context(), err)
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	JSON(w, status, ErrorResponse{Error: domainErr.Message, Code: domainErr.Code})
}

package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches sentinels by code and message so wrapped copies still compare equal.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeInvalidOperation    = "INVALID_OPERATION"
	ErrCodeExtractionFailed    = "EXTRACTION_FAILED"
	ErrCodeExpired             = "EXPIRED"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// Validation errors
var (
	ErrInvalidKnowledgeType = NewDomainError(ErrCodeValidation, "invalid knowledge type")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidURL           = NewDomainError(ErrCodeValidation, "invalid url: must be an absolute http or https url")
	ErrUnsupportedFileType  = NewDomainError(ErrCodeValidation, "unsupported file type")
	ErrNoOriginalContent    = NewDomainError(ErrCodeValidation, "item has no original_content snapshot to reprocess")
)

// Not found errors
var (
	ErrKnowledgeNotFound   = NewDomainError(ErrCodeNotFound, "knowledge item not found")
	ErrEditRequestNotFound = NewDomainError(ErrCodeNotFound, "edit request not found")
	ErrProductNotFound     = NewDomainError(ErrCodeNotFound, "product not found")
	ErrImportLogNotFound   = NewDomainError(ErrCodeNotFound, "import log not found")
)

// Authorization errors
var (
	ErrInvalidServiceToken = NewDomainError(ErrCodeUnauthorized, "invalid service token")
)

// Operation errors
var (
	ErrEditRequestExpired       = NewDomainError(ErrCodeExpired, "edit request expired")
	ErrKnowledgeInactive        = NewDomainError(ErrCodeInvalidOperation, "knowledge item is inactive")
	ErrNoChunks                 = NewDomainError(ErrCodeInvalidOperation, "content produced no chunks")
	ErrEditRequestNotApplicable = NewDomainError(ErrCodeInvalidOperation, "edit request is no longer pending")
	ErrStalePass                = NewDomainError(ErrCodeInvalidOperation, "item content changed while it was being processed")
)

// Extraction errors
var (
	ErrScannedPDF          = NewDomainError(ErrCodeExtractionFailed, "could not extract text from PDF: it looks like a scanned/image-only document")
	ErrDOCXUnreadable      = NewDomainError(ErrCodeExtractionFailed, "could not extract enough text from DOCX document")
	ErrInsufficientContent = NewDomainError(ErrCodeExtractionFailed, "insufficient content extracted from page")
	ErrEmptyDocument       = NewDomainError(ErrCodeExtractionFailed, "document is empty")
	ErrFetchFailed         = NewDomainError(ErrCodeExtractionFailed, "failed to fetch url")
)

// Upstream errors
var (
	ErrEmbeddingUnavailable = NewDomainError(ErrCodeUpstreamUnavailable, "embedding provider unavailable")
	ErrLLMUnavailable       = NewDomainError(ErrCodeUpstreamUnavailable, "language model unavailable")
	ErrStorageUnavailable   = NewDomainError(ErrCodeUpstreamUnavailable, "object storage not configured")
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)

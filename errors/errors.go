package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Common Error Constructors ---

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false, Details: details,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// MissingField creates a new AppError for a missing required field.
func MissingField(field string) *AppError {
	return &AppError{
		Code: ErrCodeMissingField, Message: fmt.Sprintf("Missing required field: %s", field),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"field": field},
	}
}

// UnsupportedMedia creates a new AppError for audio that cannot be decoded.
func UnsupportedMedia(contentType string) *AppError {
	return &AppError{
		Code: ErrCodeUnsupportedMedia, Message: fmt.Sprintf("Unsupported audio type %q.", contentType),
		HTTPStatus: http.StatusUnsupportedMediaType, Retryable: false,
		Details: map[string]any{"content_type": contentType},
	}
}

// Internal creates a new AppError for an internal server error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred. Please try again or contact support.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// ExternalServiceError creates a new AppError for an error from an external service.
func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeExternalService, Message: fmt.Sprintf("The %s service encountered an error. Please try again.", service),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"service": service}, Cause: cause,
	}
}

// --- Inference Error Constructors ---

// BackendUnavailable creates a new AppError for a backend that failed to load.
func BackendUnavailable(pipeline string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeBackendUnavailable, Message: fmt.Sprintf("The %s model could not be loaded.", pipeline),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"pipeline": pipeline}, Cause: cause,
	}
}

// NotLoaded creates a new AppError for a run requested before loading.
func NotLoaded(pipeline string) *AppError {
	return &AppError{
		Code: ErrCodeNotLoaded, Message: fmt.Sprintf("The %s model is not loaded.", pipeline),
		HTTPStatus: http.StatusConflict, Retryable: false,
		Details: map[string]any{"pipeline": pipeline},
	}
}

// RunInProgress creates a new AppError for a run requested while another is active.
func RunInProgress(pipeline string) *AppError {
	return &AppError{
		Code: ErrCodeRunInProgress, Message: fmt.Sprintf("A %s run is already in progress.", pipeline),
		HTTPStatus: http.StatusConflict, Retryable: true,
		Details: map[string]any{"pipeline": pipeline},
	}
}

// NoTargetLanguage creates a new AppError for a translation without a target language.
func NoTargetLanguage() *AppError {
	return &AppError{
		Code: ErrCodeNoTargetLanguage, Message: "A target language must be selected.",
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// NoSourceText creates a new AppError for a translation without text.
func NoSourceText() *AppError {
	return &AppError{
		Code: ErrCodeNoSourceText, Message: "There is no transcript to translate.",
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// InferenceFailed creates a new AppError for a backend failure during a run.
func InferenceFailed(pipeline string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeInferenceFailed, Message: fmt.Sprintf("The %s run failed.", pipeline),
		HTTPStatus: http.StatusBadGateway, Retryable: false,
		Details: map[string]any{"pipeline": pipeline}, Cause: cause,
	}
}

// ContractViolation creates a new AppError for a backend that broke its callback contract.
func ContractViolation(reason string) *AppError {
	return &AppError{
		Code: ErrCodeContractViolation, Message: reason,
		HTTPStatus: http.StatusBadGateway, Retryable: false,
	}
}

// ChunkDecodeFailed creates a new AppError for a failed cumulative chunk decode.
func ChunkDecodeFailed(chunks int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeChunkDecodeFailed, Message: "Decoding the accumulated chunks failed.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"chunks": chunks}, Cause: cause,
	}
}

package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Availability errors (retryable)
const (
	// ErrCodeServiceUnavailable indicates the service is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeBackendUnavailable indicates the inference backend could not be instantiated.
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeConflict indicates a conflict with the current state of the resource.
	ErrCodeConflict ErrorCode = "CONFLICT"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodeUnsupportedMedia indicates the audio payload cannot be decoded.
	ErrCodeUnsupportedMedia ErrorCode = "UNSUPPORTED_MEDIA"
)

// Inference request errors
const (
	// ErrCodeNotLoaded indicates a run was requested before the backend was loaded.
	ErrCodeNotLoaded ErrorCode = "NOT_LOADED"
	// ErrCodeRunInProgress indicates the pipeline is already running.
	ErrCodeRunInProgress ErrorCode = "RUN_IN_PROGRESS"
	// ErrCodeNoTargetLanguage indicates a translation was requested without a target language.
	ErrCodeNoTargetLanguage ErrorCode = "NO_TARGET_LANGUAGE"
	// ErrCodeNoSourceText indicates a translation was requested without a transcript.
	ErrCodeNoSourceText ErrorCode = "NO_SOURCE_TEXT"
)

// Inference run errors
const (
	// ErrCodeInferenceFailed indicates the backend failed during a run.
	ErrCodeInferenceFailed ErrorCode = "INFERENCE_FAILED"
	// ErrCodeContractViolation indicates the backend broke its callback contract.
	ErrCodeContractViolation ErrorCode = "CONTRACT_VIOLATION"
	// ErrCodeChunkDecodeFailed indicates a cumulative chunk decode failed.
	ErrCodeChunkDecodeFailed ErrorCode = "CHUNK_DECODE_FAILED"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeExternalService indicates an error from an external service.
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeTimeout:            true,
	ErrCodeBackendUnavailable: true,
	ErrCodeRunInProgress:      true,
	ErrCodeExternalService:    true,
	ErrCodeInternal:           false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

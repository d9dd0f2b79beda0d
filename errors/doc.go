// Package errors provides unified error handling for scribe.
// It implements structured error types with error codes, HTTP status mapping,
// and retryable detection following RFC 7807 and Google AIP-193.
//
// Inference failures are classified with the domain codes in codes.go so the
// orchestration layer, the worker protocol and the HTTP API all agree on what
// went wrong.
package errors

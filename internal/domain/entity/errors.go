package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations. They classify failures into
// the handling policies the pipeline stages apply: validation failures are
// dead-lettered, quota failures are abandoned without retry, fatal failures
// abort the job but not the process.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidationFailed indicates that validation checks have failed
	ErrValidationFailed = errors.New("validation failed")

	// ErrQuotaExceeded indicates a session or per-attempt cost cap was hit.
	// Handlers abandon the message without recommending retry.
	ErrQuotaExceeded = errors.New("cost quota exceeded")

	// ErrUpstreamMalformed indicates a third-party response that could not
	// be parsed. The offending item is skipped and the stream continues.
	ErrUpstreamMalformed = errors.New("upstream response malformed")

	// ErrFatal indicates a job-level failure such as a site build error or
	// a blob-name validation failure at deploy time. The job aborts; the
	// process keeps serving.
	ErrFatal = errors.New("fatal job error")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Is lets errors.Is treat every ValidationError as ErrValidationFailed, so
// queue consumers can classify dead-letter candidates with one check.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// IsValidation reports whether err is a validation failure that should be
// dead-lettered rather than retried.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrValidationFailed)
}

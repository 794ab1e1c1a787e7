package mlrcontent

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrContentNotFound indicates a content item was not found
	ErrContentNotFound = errors.New("content not found")

	// ErrFeedbackNotFound indicates no feedback exists for a proof id
	ErrFeedbackNotFound = errors.New("feedback not found")

	// ErrInvalidContentType indicates a content type outside the enumerated set
	ErrInvalidContentType = errors.New("invalid content type")

	// ErrInvalidAudience indicates an audience outside the enumerated set
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrInvalidStatus indicates an unknown content status
	ErrInvalidStatus = errors.New("invalid content status")

	// ErrInvalidTransition indicates a status change the workflow does not allow
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMissingProofID indicates a webhook payload without proof.id
	ErrMissingProofID = errors.New("proof id is required")

	// ErrVersionConflict indicates two writers raced for the same version sequence
	ErrVersionConflict = errors.New("version sequence conflict")
)

// IsNotFound reports whether err refers to a missing content item or feedback row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContentNotFound) || errors.Is(err, ErrFeedbackNotFound)
}

// ValidationError reports malformed or missing input. No side effects have
// been performed when it is returned.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}
	return fmt.Sprintf("validation failed for %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError builds a ValidationError from a formatted message.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Err: fmt.Errorf(format, args...)}
}

// ContentError represents an error related to content operations
type ContentError struct {
	ContentID uuid.UUID
	Op        string
	Err       error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content operation %s failed for content %s: %v", e.Op, e.ContentID, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// PersistenceError represents a failed store operation
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence operation %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UpstreamServiceError represents a failure reported by, or while reaching,
// an external service. StatusCode is zero when no response was received.
type UpstreamServiceError struct {
	Service    string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed with status %d: %s", e.Service, e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *UpstreamServiceError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates an external call exceeded its deadline
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ConfigurationError indicates a required setting is missing at construction time
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration error: %s is required", e.Key)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// RetryableFailure is returned by SubmitForApproval when the content was
// persisted but proof creation failed. Retrying with ContentID reuses the
// stored item and URL.
type RetryableFailure struct {
	ContentID uuid.UUID
	FileURL   string
	Reason    string
	Err       error
}

func (e *RetryableFailure) Error() string {
	return fmt.Sprintf("submission of content %s failed: %s", e.ContentID, e.Reason)
}

func (e *RetryableFailure) Unwrap() error {
	return e.Err
}

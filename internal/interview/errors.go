package interview

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionClosed     = errors.New("session is closed")
	ErrNotStarted        = errors.New("session has not started")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownEventKind  = errors.New("unknown proctoring event kind")
)

// ExtractionError is returned when a profile cannot be derived from the resume.
// It is user-correctable: the candidate should upload another file.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract profile: %s", e.Reason)
	}
	return fmt.Sprintf("extract profile: %s: %v", e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

type GenerationFailure string

const (
	// FailureTransient covers network and 5xx service errors.
	FailureTransient GenerationFailure = "transient"
	// FailureQuota is a rate limit; RetryAfter carries the advised delay when known.
	FailureQuota GenerationFailure = "quota"
	// FailureMalformed means the service answered but the payload was unusable.
	FailureMalformed GenerationFailure = "malformed"
	// FailureRejected is a non-retryable request error such as an invalid key.
	FailureRejected GenerationFailure = "rejected"
)

// Retryable reports whether another attempt could succeed.
func (k GenerationFailure) Retryable() bool {
	return k != FailureRejected
}

// GenerationError wraps failures of the generative-text capability.
type GenerationError struct {
	Kind       GenerationFailure
	RetryAfter time.Duration
	Err        error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func NewTransientError(err error) *GenerationError {
	return &GenerationError{Kind: FailureTransient, Err: err}
}

func NewMalformedError(err error) *GenerationError {
	return &GenerationError{Kind: FailureMalformed, Err: err}
}

// IsGenerationError reports whether err carries a *GenerationError.
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}

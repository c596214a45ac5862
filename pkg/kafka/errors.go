package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrProducerClosed = errors.New("kafka producer is closed")
	ErrConsumerClosed = errors.New("kafka consumer is closed")
	ErrEmptyKey       = errors.New("message key cannot be empty")
	ErrEmptyValue     = errors.New("message value cannot be empty")
)

const maxRetryBackoff = 30 * time.Second

// PermanentError marks a handler failure that retrying cannot fix. The consumer sends it to
// the DLQ immediately.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent: " + e.Reason
	}
	return fmt.Sprintf("permanent: %s: %v", e.Reason, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(reason string, err error) *PermanentError {
	return &PermanentError{Reason: reason, Err: err}
}

func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// ShouldRetry reports whether a failed message gets another attempt. Cancellation means the
// consumer is shutting down, and the offset stays uncommitted for the next run.
func ShouldRetry(err error, currentRetries, maxRetries int) bool {
	switch {
	case err == nil, currentRetries >= maxRetries:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return !IsPermanent(err)
	}
}

// RetryBackoff doubles base for every previous attempt, capped at 30s.
func RetryBackoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < maxRetryBackoff; i++ {
		d *= 2
	}
	return min(d, maxRetryBackoff)
}

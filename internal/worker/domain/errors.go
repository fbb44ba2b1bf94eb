package domain

import (
	"errors"
	"fmt"
)

// Reason is the failure classification recorded on a dead letter.
type Reason string

const (
	ReasonInvalidJob                    Reason = "InvalidJob"
	ReasonSourceUnavailable             Reason = "SourceUnavailable"
	ReasonPipelineInfrastructureFailure Reason = "PipelineInfrastructureFailure"
	ReasonPublishPartialFailure         Reason = "PublishPartialFailure"
)

var (
	// ErrInvalidJob is returned for messages that cannot be decoded or carry no usable jobId
	ErrInvalidJob = errors.New("invalid job")

	// ErrSourceUnavailable is returned when the fetch process fails for the requested source
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrPipelineInfrastructure is returned when the encoder, the local disk or a timeout breaks the run
	ErrPipelineInfrastructure = errors.New("pipeline infrastructure failure")

	// ErrPublishPartial is returned when at least one artifact could not be uploaded
	ErrPublishPartial = errors.New("publish partial failure")
)

// Permanent reports whether a retry of the same job is expected to fail again.
func (r Reason) Permanent() bool {
	return r == ReasonInvalidJob || r == ReasonSourceUnavailable
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonInvalidJob:
		return ErrInvalidJob
	case ReasonSourceUnavailable:
		return ErrSourceUnavailable
	case ReasonPublishPartialFailure:
		return ErrPublishPartial
	default:
		return ErrPipelineInfrastructure
	}
}

// FailureError attaches a failure reason to the underlying error
type FailureError struct {
	Reason Reason
	Err    error
}

func (e *FailureError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel that belongs to the reason.
func (e *FailureError) Is(target error) bool {
	return target == e.Reason.sentinel()
}

// NewFailure wraps err with a classification.
func NewFailure(reason Reason, err error) error {
	return &FailureError{Reason: reason, Err: err}
}

// Failuref formats a classified error.
func Failuref(reason Reason, format string, args ...any) error {
	return &FailureError{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// Classify maps any error to a failure reason. Unclassified errors are
// treated as infrastructure failures.
func Classify(err error) Reason {
	var failure *FailureError
	if errors.As(err, &failure) {
		return failure.Reason
	}

	switch {
	case errors.Is(err, ErrInvalidJob):
		return ReasonInvalidJob
	case errors.Is(err, ErrSourceUnavailable):
		return ReasonSourceUnavailable
	case errors.Is(err, ErrPublishPartial):
		return ReasonPublishPartialFailure
	default:
		return ReasonPipelineInfrastructureFailure
	}
}

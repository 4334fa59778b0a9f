package studio

import (
	"errors"
	"fmt"
)

// RefundNotice is appended to the message of every failure that was refunded.
const RefundNotice = "tokens have been refunded"

// Kind classifies orchestrator failures.
type Kind string

const (
	// Precondition failures. Nothing was debited.
	KindNoIdentity     Kind = "NoIdentity"
	KindInvalidRequest Kind = "InvalidRequest"
	KindBusy           Kind = "Busy"
	KindUnavailable    Kind = "Unavailable"

	// Reservation failed. Nothing was debited.
	KindReservationFailed Kind = "ReservationFailed"

	// Failures after the reservation. The cost is refunded.
	KindSourceUnavailable Kind = "SourceUnavailable"
	KindContentRejected   Kind = "ContentRejected"
	KindGenerationFailed  Kind = "GenerationFailed"
	KindStorageError      Kind = "StorageError"
	KindMetadataError     Kind = "MetadataError"
)

// Precondition sentinels, matched with errors.Is.
var (
	ErrNoIdentity      = errors.New("studio: no user identity")
	ErrEmptyPrompt     = errors.New("studio: prompt is required")
	ErrBatchInProgress = errors.New("studio: a generation is already running for this user")
	ErrShuttingDown    = errors.New("studio: service is shutting down")
)

// Error is the single error type returned by the orchestrator. Message is
// safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
	// Refunded reports that the reservation was credited back.
	Refunded bool
	// RefundFailed reports that the refund credit itself failed.
	RefundFailed bool
	// Completed is the number of artifacts persisted before the failure.
	Completed int
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Refunded:
		return e.Message + "; " + RefundNotice
	case e.RefundFailed:
		return e.Message + "; the refund could not be completed, please contact support"
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

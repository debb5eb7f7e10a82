package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error into one of the categories the API surface maps
// to HTTP statuses.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindForbidden       Kind = "FORBIDDEN"
	KindConflict        Kind = "CONFLICT"
	KindAlreadyResolved Kind = "ALREADY_RESOLVED"
	KindOfferExpired    Kind = "OFFER_EXPIRED"
	KindNoApprover      Kind = "NO_APPROVER_CONFIGURED"
	KindTransient       Kind = "TRANSIENT"
	KindStore           Kind = "STORE"
)

// Error is the error type surfaced by the core services.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindStore for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return KindConflict
	}
	return KindStore
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// TimeWindow is an occupied [Start, End) interval reported back on conflicts.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w TimeWindow) String() string {
	return w.Start.UTC().Format("15:04") + "-" + w.End.UTC().Format("15:04")
}

// ConflictError reports an overlap with existing active reservations and
// carries the occupied windows so clients can re-pick a slot.
type ConflictError struct {
	ResourceID int64        `json:"resource_id"`
	Windows    []TimeWindow `json:"windows"`
}

func (e *ConflictError) Error() string {
	msg := "requested time overlaps existing reservations:"
	for _, w := range e.Windows {
		msg += " " + w.String()
	}
	return msg
}

// HTTPStatus maps an error to the status code the API boundary responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict, KindAlreadyResolved:
		return http.StatusConflict
	case KindOfferExpired:
		return http.StatusGone
	case KindNoApprover:
		return http.StatusBadRequest
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

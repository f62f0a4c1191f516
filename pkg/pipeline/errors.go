package pipeline

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Kind classifies an error for retry and reporting purposes. Kinds, not
// types: callers should branch on the kind, never on concrete errors
// from the raster or storage layers.
type Kind string

const (
	// KindValidation marks caller mistakes: unsupported file kind, no
	// raster in an archive, unsupported band configuration, empty file.
	// Never retried.
	KindValidation Kind = "validation"

	// KindTransient marks I/O failures worth retrying: object-store
	// timeouts, broker reconnects, transient Postgres errors.
	KindTransient Kind = "io_transient"

	// KindFatal marks unrecoverable I/O: raster read failures, corrupt
	// archives. Never retried.
	KindFatal Kind = "io_fatal"

	// KindTimeout marks a task that exceeded its hard time limit.
	KindTimeout Kind = "timeout"

	// KindCancelled marks user-initiated cancellation; distinct from failure.
	KindCancelled Kind = "cancelled"

	// KindInternal is the catch-all for unclassified errors. Not retried.
	KindInternal Kind = "internal"
)

// Well-known validation reasons surfaced in job metadata.
const (
	ReasonUnsupportedKind  = "unsupported_kind"
	ReasonNoRaster         = "no_raster_in_archive"
	ReasonUnsupportedBands = "unsupported_band_configuration"
	ReasonMissingCRS       = "missing_crs"
	ReasonEmptyFile        = "empty_file"
)

// Error carries a Kind alongside the underlying cause.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	if e.Reason == "" {
		return e.Err.Error()
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a non-retriable caller error with a well-known reason.
func Validation(reason string) error {
	return &Error{Kind: KindValidation, Reason: reason}
}

// Validationf returns a non-retriable caller error with a one-off message.
func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Err: errors.Errorf(format, args...)}
}

// Transient wraps err as retriable I/O.
func Transient(err error, msg string) error {
	return &Error{Kind: KindTransient, Err: errors.Wrap(err, msg)}
}

// Fatal wraps err as non-retriable I/O.
func Fatal(err error, msg string) error {
	return &Error{Kind: KindFatal, Err: errors.Wrap(err, msg)}
}

// Cancelled marks a task aborted by a user cancellation.
func Cancelled() error {
	return &Error{Kind: KindCancelled, Reason: "job cancelled"}
}

// KindOf extracts the Kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var pe *Error
	if stderrors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// ReasonOf extracts the well-known reason from err, if any.
func ReasonOf(err error) string {
	var pe *Error
	if stderrors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}

// Retriable reports whether the worker runtime should retry err.
// Only transient I/O qualifies.
func Retriable(err error) bool {
	return KindOf(err) == KindTransient
}

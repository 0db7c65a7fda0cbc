// Package calerr defines the error kinds shared across the calendar
// provider core (spec §7). Components return these via errors.Is/As
// instead of ad hoc string matching.
package calerr

import "errors"

// Sentinel error kinds. Wrap with fmt.Errorf("...: %w", Err...) to attach
// the offending entity id or substring.
var (
	// ErrInvalidArgument: ill-formed URI, missing required column,
	// malformed recurrence/duration string. No state changed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange: a date outside representable bounds. The caller
	// should sentinel-mark the owning event (dtStart := -1).
	ErrOutOfRange = errors.New("out of range")

	// ErrInvalidFormat: the individual event is skipped during
	// expansion; does not abort window-wide materialization.
	ErrInvalidFormat = errors.New("invalid recurrence format")

	// ErrConflict: violation of a uniqueness or referential invariant.
	// Fatal to the current transaction.
	ErrConflict = errors.New("conflict")

	// ErrTransient: SQL/IO error. Caller should roll back and retry.
	ErrTransient = errors.New("transient error")

	// ErrResourceUnavailable: disk full at open time. Surfaces on every
	// write until a storage-ok signal arrives.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrUnsupported: write attempted on a read-only URI/field.
	ErrUnsupported = errors.New("unsupported")
)

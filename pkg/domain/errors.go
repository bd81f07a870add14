package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy per spec §7. Sentinel values are matched with errors.Is;
// the two detail-carrying wrappers below implement Is(target) against
// their sentinel so callers can still errors.Is(err, ErrConcurrencyMismatch)
// after unwrapping, mirroring UniqueConstraintError/ErrUniqueConstraintViolation
// in the teacher's eventsourcing/errors.go.
var (
	// ErrInvalidArgument is returned for null/empty events, malformed
	// queries or missing required fields. Raised before any I/O.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConcurrencyMismatch is returned when AfterSequencePosition
	// disagrees with the ledger's last position.
	ErrConcurrencyMismatch = errors.New("concurrency mismatch")

	// ErrAppendConditionFailed is returned when FailIfEventsMatch found
	// disqualifying events.
	ErrAppendConditionFailed = errors.New("append condition failed")

	// ErrStorageCorruption is returned for a missing event file at a
	// known position, or a malformed event that cannot be deserialized.
	ErrStorageCorruption = errors.New("storage corruption")

	// ErrIOFault wraps an underlying filesystem error (disk full,
	// permission denied, rename race).
	ErrIOFault = errors.New("io fault")

	// ErrProjectionNotFound is returned when a projection name is not
	// registered with the manager. A missing instance or checkpoint is
	// reported as found=false, not as this error.
	ErrProjectionNotFound = errors.New("projection not found")
)

// ConcurrencyMismatchError carries the ledger position observed at
// conflict time.
type ConcurrencyMismatchError struct {
	Expected *int64
	Actual   int64
}

func (e *ConcurrencyMismatchError) Error() string {
	expected := "nil"
	if e.Expected != nil {
		expected = fmt.Sprintf("%d", *e.Expected)
	}
	return fmt.Sprintf("concurrency mismatch: expected last position %s, ledger is at %d", expected, e.Actual)
}

func (e *ConcurrencyMismatchError) Is(target error) bool {
	return target == ErrConcurrencyMismatch
}

// AppendConditionFailedError carries the query that disqualified the
// append and the offending position.
type AppendConditionFailedError struct {
	Query              Query
	DisqualifyingPosition int64
}

func (e *AppendConditionFailedError) Error() string {
	return fmt.Sprintf("append condition failed: disqualifying event at position %d", e.DisqualifyingPosition)
}

func (e *AppendConditionFailedError) Is(target error) bool {
	return target == ErrAppendConditionFailed
}

// StorageCorruptionError names the position and path found to be corrupt.
type StorageCorruptionError struct {
	Position int64
	Path     string
	Cause    error
}

func (e *StorageCorruptionError) Error() string {
	return fmt.Sprintf("storage corruption at position %d (%s): %v", e.Position, e.Path, e.Cause)
}

func (e *StorageCorruptionError) Unwrap() error {
	return e.Cause
}

func (e *StorageCorruptionError) Is(target error) bool {
	return target == ErrStorageCorruption
}

package booking

import "fmt"

// ValidationError rejects malformed input before any storage access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SlotUnavailableError reports a booking that lost to an existing or
// concurrent reservation. Retrying with the same arguments cannot succeed
// until the holding reservation is retired.
type SlotUnavailableError struct {
	Date string
	Time string
	// HeldBy is the application holding the slot, empty when the holder won
	// a concurrent race and was never read.
	HeldBy string
}

func (e *SlotUnavailableError) Error() string {
	if e.HeldBy != "" {
		return fmt.Sprintf("slot %s %s is held by application %s", e.Date, e.Time, e.HeldBy)
	}
	return fmt.Sprintf("slot %s %s is no longer available", e.Date, e.Time)
}

// StorageError wraps a transient storage failure. The operation may be
// retried as-is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

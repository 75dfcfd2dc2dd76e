package audience

import (
	"errors"
	"fmt"
)

// Sentinel errors for the condition compiler and resolver. Compilation
// failures are recovered locally (the offending condition is skipped);
// segment and store failures are surfaced to the caller.
var (
	// ErrUnsupportedCategory means the condition's category (or kind)
	// has no registered compiler.
	ErrUnsupportedCategory = errors.New("unsupported condition category")

	// ErrIncompleteCondition means a required value slot for the chosen
	// operator is missing.
	ErrIncompleteCondition = errors.New("incomplete condition")

	// ErrSegmentNotFound means the segment does not exist or does not
	// belong to the requesting tenant.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrStoreTimeout means the subscriber store did not answer within
	// the configured request timeout.
	ErrStoreTimeout = errors.New("subscriber store timeout")
)

// StoreError wraps a failure from the subscriber store so callers can
// distinguish infrastructure faults from empty results.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("subscriber store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsCompileError reports whether err is a condition-level compilation
// failure that the assembler recovers from by skipping the condition.
func IsCompileError(err error) bool {
	return errors.Is(err, ErrUnsupportedCategory) || errors.Is(err, ErrIncompleteCondition)
}

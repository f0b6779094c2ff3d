package scriptrunner

import (
	"errors"
	"fmt"

	"github.com/MaksGolikov/ScriptRunner/pkg/script"
)

// Sentinel errors for public operations. Match with errors.Is.
var (
	// ErrInvalidArgument indicates malformed input: an empty script body
	// or a non-positive id.
	ErrInvalidArgument = script.ErrInvalidArgument

	// ErrNotFound indicates the referenced script id is not in the
	// registry, either never issued or already evicted.
	ErrNotFound = script.ErrNotFound

	// ErrClosed indicates the runner has been closed.
	ErrClosed = errors.New("runner is closed")
)

// OperationError wraps a failure with the operation and script it concerns.
type OperationError struct {
	Op       string // operation that failed: "submit", "get", "stop", ...
	ScriptID int64  // zero when no script is involved
	Err      error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.ScriptID > 0 {
		return fmt.Sprintf("%s script %d: %v", e.Op, e.ScriptID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewError creates an OperationError.
func NewError(op string, scriptID int64, err error) *OperationError {
	return &OperationError{
		Op:       op,
		ScriptID: scriptID,
		Err:      err,
	}
}

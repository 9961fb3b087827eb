// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrProcessNotFound indicates a process was not found for the given company and identifier.
	ErrProcessNotFound = errors.New("process not found")

	// ErrRunNotFound indicates an execution run was not found.
	ErrRunNotFound = errors.New("execution run not found")

	// ErrInvalidID indicates an identifier that cannot be stored safely.
	ErrInvalidID = errors.New("invalid identifier")
)

// ProcessError wraps process-related errors with additional context.
type ProcessError struct {
	Op        string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	CompanyID string
	ProcessID string
	Err       error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s operation failed for process %s/%s: %v", e.Op, e.CompanyID, e.ProcessID, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for process errors.
func (e *ProcessError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewProcessError creates a new process error with context.
func NewProcessError(op, companyID, processID string, err error) *ProcessError {
	return &ProcessError{
		Op:        op,
		CompanyID: companyID,
		ProcessID: processID,
		Err:       err,
	}
}

// RunError wraps execution run errors with additional context.
type RunError struct {
	Op        string
	CompanyID string
	RunID     string
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s/%s: %v", e.Op, e.CompanyID, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for run errors.
func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, companyID, runID string, err error) *RunError {
	return &RunError{
		Op:        op,
		CompanyID: companyID,
		RunID:     runID,
		Err:       err,
	}
}

// IsProcessNotFound checks if an error indicates a process was not found.
func IsProcessNotFound(err error) bool {
	return errors.Is(err, ErrProcessNotFound)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsNotFound checks if an error indicates any entity was not found.
func IsNotFound(err error) bool {
	return IsProcessNotFound(err) || IsRunNotFound(err)
}

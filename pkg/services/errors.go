// Package services provides the caller-facing operations on consolidation processes.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/consolidation/pkg/catalog"
	"github.com/dukex/consolidation/pkg/graph"
	"github.com/dukex/consolidation/pkg/lifecycle"
	"github.com/dukex/consolidation/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidSchedule = errors.New("invalid simulation schedule")
	ErrEmptyCompanyID  = errors.New("company ID cannot be empty")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks if an error is a rejected request that should return HTTP 400.
func IsValidationError(err error) bool {
	var fieldErrs validator.ValidationErrors

	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrEmptyCompanyID) ||
		errors.Is(err, persistence.ErrInvalidID) ||
		errors.As(err, &fieldErrs) ||
		catalog.IsUnknownNodeType(err) ||
		graph.IsStructuralError(err)
}

// IsConflictError checks if an error is a lifecycle conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return graph.IsProcessLocked(err) ||
		lifecycle.IsProcessBusy(err) ||
		lifecycle.IsInvalidTransition(err)
}

// IsNotFoundError checks if an error refers to a missing process, run or node.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err) || graph.IsNodeNotFound(err)
}

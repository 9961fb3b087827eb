package graph

import (
	"errors"
	"fmt"
)

// Structural editing errors.
var (
	ErrNodeNotFound         = errors.New("node not found")
	ErrDuplicateNode        = errors.New("node already exists")
	ErrSelfLoop             = errors.New("connection source and target are the same node")
	ErrDuplicateConnection  = errors.New("connection already exists")
	ErrProcessLocked        = errors.New("process is finalized")
	ErrMissingNodeType      = errors.New("node type is required")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Error wraps graph editing errors with the operation and node involved.
type Error struct {
	Op     string // Operation being performed (e.g., "AddNode", "Connect")
	NodeID string // Node ID if applicable
	Err    error  // Underlying error
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s failed for node %s: %v", e.Op, e.NodeID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error comparison for graph errors.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op, nodeID string, err error) *Error {
	return &Error{Op: op, NodeID: nodeID, Err: err}
}

// IsNodeNotFound checks if an error indicates a missing node.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

// IsProcessLocked checks if an error indicates an edit on a finalized process.
func IsProcessLocked(err error) bool {
	return errors.Is(err, ErrProcessLocked)
}

// IsStructuralError checks if an error is a rejected structural edit (HTTP 400).
func IsStructuralError(err error) bool {
	return errors.Is(err, ErrDuplicateNode) ||
		errors.Is(err, ErrSelfLoop) ||
		errors.Is(err, ErrDuplicateConnection) ||
		errors.Is(err, ErrMissingNodeType) ||
		errors.Is(err, ErrInvalidConfiguration)
}

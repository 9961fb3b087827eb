package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/consolidation/pkg/models"
)

var (
	// ErrInvalidGraph is returned when a run is requested for a process that fails validation.
	ErrInvalidGraph = errors.New("process graph is invalid")

	// ErrInvalidMode is returned for a run mode other than simulate or finalize.
	ErrInvalidMode = errors.New("invalid run mode")

	// ErrRunNotActive is returned when cancelling a run that already ended.
	ErrRunNotActive = errors.New("run is not active")
)

// InvalidGraphError carries every validation error that blocked a run.
type InvalidGraphError struct {
	Errors []models.ValidationError
}

func (e *InvalidGraphError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msgs = append(msgs, ve.Error())
	}

	return fmt.Sprintf("%v: %s", ErrInvalidGraph, strings.Join(msgs, "; "))
}

func (e *InvalidGraphError) Unwrap() error {
	return ErrInvalidGraph
}

// IsInvalidGraph checks if an error reports a graph that failed validation.
func IsInvalidGraph(err error) bool {
	return errors.Is(err, ErrInvalidGraph)
}

// IsRunNotActive checks if an error reports a run that can no longer be cancelled.
func IsRunNotActive(err error) bool {
	return errors.Is(err, ErrRunNotActive)
}

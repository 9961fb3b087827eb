// Package lifecycle owns the status machine of consolidation processes and runs,
// and serializes every mutation of a process.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukex/consolidation/pkg/models"
)

var (
	// ErrInvalidTransition is returned for any status change outside the allowed table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrProcessBusy is returned when a run currently owns the process.
	ErrProcessBusy = errors.New("process has an active run")
)

// TransitionError reports a rejected status change.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsInvalidTransition checks if an error is a rejected status change.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsProcessBusy checks if an error indicates a process owned by a run.
func IsProcessBusy(err error) bool {
	return errors.Is(err, ErrProcessBusy)
}

// CanTransition reports whether a process may move from one status to another.
func CanTransition(from, to models.ProcessStatus) bool {
	switch from {
	case models.ProcessStatusDraft:
		return to == models.ProcessStatusActive
	case models.ProcessStatusActive:
		return to == models.ProcessStatusSimulating || to == models.ProcessStatusFinalizing
	case models.ProcessStatusSimulating:
		return to == models.ProcessStatusSimulated
	case models.ProcessStatusSimulated:
		return to == models.ProcessStatusSimulating ||
			to == models.ProcessStatusFinalizing ||
			to == models.ProcessStatusActive
	case models.ProcessStatusFinalizing:
		return to == models.ProcessStatusFinalized || to == models.ProcessStatusActive
	default:
		return false
	}
}

// Transition moves the process to a new status, stamping the finalization time when it finalizes.
func Transition(p *models.Process, to models.ProcessStatus) error {
	if !CanTransition(p.Status, to) {
		return &TransitionError{From: string(p.Status), To: string(to)}
	}

	now := time.Now().UTC()

	p.Status = to
	p.UpdatedAt = now

	if to == models.ProcessStatusFinalized {
		p.FinalizedAt = &now
	}

	return nil
}

// RunStartStatus is the busy status a process enters when a run of the given mode starts.
func RunStartStatus(mode models.RunMode) models.ProcessStatus {
	if mode == models.RunModeFinalize {
		return models.ProcessStatusFinalizing
	}

	return models.ProcessStatusSimulating
}

// RunEndStatus is the status a process settles in once a run is terminal.
// A finalization sticks whenever the run completed, even with recorded node errors
// from nodes that do not stop on error; failed or cancelled runs roll back to active.
func RunEndStatus(run *models.ExecutionRun) models.ProcessStatus {
	if run.Mode != models.RunModeFinalize {
		return models.ProcessStatusSimulated
	}

	if run.Status == models.RunStatusCompleted {
		return models.ProcessStatusFinalized
	}

	return models.ProcessStatusActive
}

// CanTransitionRun reports whether a run may move from one status to another.
func CanTransitionRun(from, to models.RunStatus) bool {
	switch from {
	case models.RunStatusPending:
		return to == models.RunStatusRunning
	case models.RunStatusRunning:
		return to.IsTerminal()
	default:
		return false
	}
}

// TransitionRun moves the run to a new status. Terminal runs are immutable.
func TransitionRun(run *models.ExecutionRun, to models.RunStatus) error {
	if !CanTransitionRun(run.Status, to) {
		return &TransitionError{From: string(run.Status), To: string(to)}
	}

	run.Status = to

	if to.IsTerminal() {
		now := time.Now().UTC()
		run.CompletedAt = &now
		run.ExecutionTimeMs = now.Sub(run.StartedAt).Milliseconds()
	}

	return nil
}

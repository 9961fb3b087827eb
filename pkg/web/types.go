// Package web provides the REST surface for consolidation processes and their runs.
package web

import "github.com/dukex/consolidation/pkg/models"

// StartRunRequest represents the request body for starting a run.
// With Wait the response carries the terminal run; otherwise the run is started
// in the background and returned as running.
type StartRunRequest struct {
	Mode models.RunMode `json:"mode" validate:"required,oneof=simulate finalize"`
	Wait bool           `json:"wait"`
}

// ValidationResponse is the validation report of a process plus its execution plan.
// Waves is empty when the graph does not validate.
type ValidationResponse struct {
	models.ValidationResult

	Waves [][]string `json:"waves"`
}

// RemovedResponse reports whether a delete found something to remove.
type RemovedResponse struct {
	Removed bool `json:"removed"`
}

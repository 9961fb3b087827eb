// Package models defines the core domain models for consolidation process graphs.
package models

import "time"

// ProcessStatus represents the lifecycle state of a consolidation process.
type ProcessStatus string

const (
	ProcessStatusDraft      ProcessStatus = "draft"      // Created, no nodes yet
	ProcessStatusActive     ProcessStatus = "active"     // Editable, executable
	ProcessStatusSimulating ProcessStatus = "simulating" // Simulate run in progress
	ProcessStatusSimulated  ProcessStatus = "simulated"  // Last run was a simulation
	ProcessStatusFinalizing ProcessStatus = "finalizing" // Finalize run in progress
	ProcessStatusFinalized  ProcessStatus = "finalized"  // Terminal, immutable
)

// IsBusy reports whether a run currently owns the process.
func (s ProcessStatus) IsBusy() bool {
	return s == ProcessStatusSimulating || s == ProcessStatusFinalizing
}

// ProcessRef identifies a process within the company that owns it.
// Every service and orchestrator call takes one explicitly.
type ProcessRef struct {
	CompanyID string `json:"company_id" validate:"required"`
	ProcessID string `json:"process_id" validate:"required"`
}

// Process is the aggregate root: a graph of consolidation operations for one fiscal year.
type Process struct {
	ID                 string        `json:"id"`
	CompanyID          string        `json:"company_id"                    validate:"required"`
	Name               string        `json:"name"                          validate:"required,min=3"`
	FiscalYear         int           `json:"fiscal_year"                   validate:"required,min=1900,max=2999"`
	Status             ProcessStatus `json:"status"                        validate:"required"`
	Nodes              []*Node       `json:"nodes"`
	Connections        []*Connection `json:"connections"`
	LastRunID          string        `json:"last_run_id,omitempty"`
	SimulationSchedule string        `json:"simulation_schedule,omitempty"` // Cron expression
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	FinalizedAt        *time.Time    `json:"finalized_at,omitempty"`
}

// Ref returns the process reference.
func (p *Process) Ref() ProcessRef {
	return ProcessRef{CompanyID: p.CompanyID, ProcessID: p.ID}
}

// FindNode returns the node with the given id, or nil.
func (p *Process) FindNode(id string) *Node {
	for _, node := range p.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// Clone returns a deep copy of the process, suitable as an immutable run snapshot.
func (p *Process) Clone() *Process {
	clone := *p

	clone.Nodes = make([]*Node, 0, len(p.Nodes))
	for _, node := range p.Nodes {
		clone.Nodes = append(clone.Nodes, node.Clone())
	}

	clone.Connections = make([]*Connection, 0, len(p.Connections))
	for _, conn := range p.Connections {
		c := *conn
		clone.Connections = append(clone.Connections, &c)
	}

	if p.FinalizedAt != nil {
		t := *p.FinalizedAt
		clone.FinalizedAt = &t
	}

	return &clone
}

// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates an enabled consolidation journal node that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:            uuid.New().String(),
		Type:          models.NodeTypeConsolidationJournal,
		Title:         "Test Journal",
		Configuration: map[string]any{"journal_type": "recurring", "auto_reverse": false, "entries": []any{}},
		Enabled:       true,
		Position:      models.Position{X: 100, Y: 200},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node ID.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
		n.Title = id
	}
}

// WithType sets the node type and clears its configuration.
func WithType(nodeType models.NodeType, config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType
		n.Configuration = config
	}
}

// Disabled excludes the node from execution.
func Disabled() func(*models.Node) {
	return func(n *models.Node) {
		n.Enabled = false
	}
}

// WithStopOnError overrides the mode default of the node.
func WithStopOnError(stop bool) func(*models.Node) {
	return func(n *models.Node) {
		n.StopOnError = &stop
	}
}

// CreateTestProcess creates an active process of company "acme" that can be overridden.
func CreateTestProcess(overrides ...func(*models.Process)) *models.Process {
	now := time.Now().UTC()

	p := &models.Process{
		ID:          uuid.New().String(),
		CompanyID:   "acme",
		Name:        "Test Process",
		FiscalYear:  2025,
		Status:      models.ProcessStatusActive,
		Nodes:       []*models.Node{},
		Connections: []*models.Connection{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, override := range overrides {
		override(p)
	}

	return p
}

// WithProcessID sets the process ID.
func WithProcessID(id string) func(*models.Process) {
	return func(p *models.Process) {
		p.ID = id
	}
}

// WithStatus sets the process status.
func WithStatus(status models.ProcessStatus) func(*models.Process) {
	return func(p *models.Process) {
		p.Status = status
	}
}

// WithSchedule sets the simulation schedule.
func WithSchedule(schedule string) func(*models.Process) {
	return func(p *models.Process) {
		p.SimulationSchedule = schedule
	}
}

// WithNodes appends nodes to the process.
func WithNodes(nodes ...*models.Node) func(*models.Process) {
	return func(p *models.Process) {
		p.Nodes = append(p.Nodes, nodes...)
	}
}

// WithEdges appends source -> target connections.
func WithEdges(edges ...[2]string) func(*models.Process) {
	return func(p *models.Process) {
		for _, e := range edges {
			p.Connections = append(p.Connections, &models.Connection{SourceNodeID: e[0], TargetNodeID: e[1]})
		}
	}
}

package services

import (
	"context"

	"github.com/dukex/consolidation/pkg/graph"
	"github.com/dukex/consolidation/pkg/models"
)

// ConnectRequest represents the request to add a dependency between two nodes.
type ConnectRequest struct {
	SourceNodeID string `json:"source_node_id" validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
}

// AddNode places a node of a catalog type into the process. The first node moves a draft process to active.
func (s *Process) AddNode(ctx context.Context, ref models.ProcessRef, req graph.NewNode) (*models.Node, error) {
	if err := s.check("AddNode", req); err != nil {
		return nil, err
	}

	var node *models.Node

	_, err := s.mutate(ctx, "AddNode", ref, true, func(p *models.Process) (bool, error) {
		added, err := graph.AddNode(p, s.catalog, req)
		if err != nil {
			return false, err
		}

		node = added

		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

// UpdateNode applies a patch to one node of the process.
func (s *Process) UpdateNode(ctx context.Context, ref models.ProcessRef, nodeID string, patch graph.NodePatch) (*models.Node, error) {
	var node *models.Node

	_, err := s.mutate(ctx, "UpdateNode", ref, true, func(p *models.Process) (bool, error) {
		updated, err := graph.UpdateNode(p, s.catalog, nodeID, patch)
		if err != nil {
			return false, err
		}

		node = updated

		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

// RemoveNode deletes a node and its connections. It reports whether the node existed.
func (s *Process) RemoveNode(ctx context.Context, ref models.ProcessRef, nodeID string) (bool, error) {
	var removed bool

	_, err := s.mutate(ctx, "RemoveNode", ref, true, func(p *models.Process) (bool, error) {
		var err error

		removed, err = graph.RemoveNode(p, nodeID)

		return removed, err
	})

	return removed, err
}

// Connect makes the target node depend on the source node.
func (s *Process) Connect(ctx context.Context, ref models.ProcessRef, req ConnectRequest) (*models.Connection, error) {
	if err := s.check("Connect", req); err != nil {
		return nil, err
	}

	var conn *models.Connection

	_, err := s.mutate(ctx, "Connect", ref, true, func(p *models.Process) (bool, error) {
		added, err := graph.Connect(p, req.SourceNodeID, req.TargetNodeID)
		if err != nil {
			return false, err
		}

		conn = added

		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// Disconnect removes a dependency. It reports whether the connection existed.
func (s *Process) Disconnect(ctx context.Context, ref models.ProcessRef, sourceID, targetID string) (bool, error) {
	var removed bool

	_, err := s.mutate(ctx, "Disconnect", ref, true, func(p *models.Process) (bool, error) {
		var err error

		removed, err = graph.Disconnect(p, sourceID, targetID)

		return removed, err
	})

	return removed, err
}

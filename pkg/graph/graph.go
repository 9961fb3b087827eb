// Package graph implements the structural editing operations of a consolidation process graph.
// All functions operate on an in-memory process and perform no I/O.
package graph

import (
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/google/uuid"
)

// Templates is the subset of the node catalog the graph needs to build configurations.
type Templates interface {
	Configure(nodeType models.NodeType, user map[string]any) (map[string]any, error)
	Default(nodeType models.NodeType, key string) (any, bool)
}

// NewNode describes a node to be placed into a process.
type NewNode struct {
	ID            string          `json:"id,omitempty"`
	Type          models.NodeType `json:"type"                    validate:"required"`
	Title         string          `json:"title"`
	Configuration map[string]any  `json:"configuration"`
	Enabled       *bool           `json:"enabled,omitempty"`
	StopOnError   *bool           `json:"stop_on_error,omitempty"`
	Position      models.Position `json:"position"`
}

// NodePatch changes the given fields of a node. Nil fields are left untouched.
// A nil value inside Configuration resets that key to its template default.
type NodePatch struct {
	Title            *string          `json:"title,omitempty"`
	Configuration    map[string]any   `json:"configuration,omitempty"`
	Enabled          *bool            `json:"enabled,omitempty"`
	StopOnError      *bool            `json:"stop_on_error,omitempty"`
	ClearStopOnError bool             `json:"clear_stop_on_error,omitempty"`
	Position         *models.Position `json:"position,omitempty"`
}

func checkEditable(op string, p *models.Process) error {
	if p.Status == models.ProcessStatusFinalized {
		return newError(op, "", ErrProcessLocked)
	}

	return nil
}

func touch(p *models.Process) {
	p.UpdatedAt = time.Now().UTC()
}

// AddNode places a new node into the process with its configuration merged over the template defaults.
func AddNode(p *models.Process, templates Templates, req NewNode) (*models.Node, error) {
	if err := checkEditable("AddNode", p); err != nil {
		return nil, err
	}

	if req.Type == "" {
		return nil, newError("AddNode", req.ID, ErrMissingNodeType)
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	if p.FindNode(id) != nil {
		return nil, newError("AddNode", id, ErrDuplicateNode)
	}

	cfg, err := templates.Configure(req.Type, req.Configuration)
	if err != nil {
		return nil, newError("AddNode", id, err)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	node := &models.Node{
		ID:            id,
		Type:          req.Type,
		Title:         req.Title,
		Configuration: cfg,
		Enabled:       enabled,
		Position:      req.Position,
	}

	if req.StopOnError != nil {
		v := *req.StopOnError
		node.StopOnError = &v
	}

	if node.Title == "" {
		node.Title = string(req.Type)
	}

	p.Nodes = append(p.Nodes, node)
	touch(p)

	return node, nil
}

// UpdateNode applies a patch to an existing node. The node type never changes.
func UpdateNode(p *models.Process, templates Templates, nodeID string, patch NodePatch) (*models.Node, error) {
	if err := checkEditable("UpdateNode", p); err != nil {
		return nil, err
	}

	node := p.FindNode(nodeID)
	if node == nil {
		return nil, newError("UpdateNode", nodeID, ErrNodeNotFound)
	}

	cfg := models.CloneMap(node.Configuration)
	if cfg == nil {
		cfg = make(map[string]any)
	}

	overrides := make(map[string]any, len(patch.Configuration))

	for key, value := range patch.Configuration {
		if value != nil {
			overrides[key] = models.CloneMap(map[string]any{key: value})[key]

			continue
		}

		if def, ok := templates.Default(node.Type, key); ok {
			cfg[key] = def
		} else {
			delete(cfg, key)
		}
	}

	if len(overrides) > 0 {
		if err := mergo.Merge(&cfg, overrides, mergo.WithOverride); err != nil {
			return nil, newError("UpdateNode", nodeID, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err))
		}
	}

	node.Configuration = cfg

	if patch.Title != nil {
		node.Title = *patch.Title
	}

	if patch.Enabled != nil {
		node.Enabled = *patch.Enabled
	}

	switch {
	case patch.ClearStopOnError:
		node.StopOnError = nil
	case patch.StopOnError != nil:
		v := *patch.StopOnError
		node.StopOnError = &v
	}

	if patch.Position != nil {
		node.Position = *patch.Position
	}

	touch(p)

	return node, nil
}

// RemoveNode deletes a node together with every connection touching it.
// It reports whether a node was removed; removing an absent node is not an error.
func RemoveNode(p *models.Process, nodeID string) (bool, error) {
	if err := checkEditable("RemoveNode", p); err != nil {
		return false, err
	}

	idx := -1

	for i, node := range p.Nodes {
		if node.ID == nodeID {
			idx = i

			break
		}
	}

	if idx < 0 {
		return false, nil
	}

	p.Nodes = append(p.Nodes[:idx], p.Nodes[idx+1:]...)

	kept := p.Connections[:0]

	for _, conn := range p.Connections {
		if conn.SourceNodeID == nodeID || conn.TargetNodeID == nodeID {
			continue
		}

		kept = append(kept, conn)
	}

	for i := len(kept); i < len(p.Connections); i++ {
		p.Connections[i] = nil
	}

	p.Connections = kept
	touch(p)

	return true, nil
}

// Connect adds a dependency edge: target runs after source. Cycles are left to validation.
func Connect(p *models.Process, sourceID, targetID string) (*models.Connection, error) {
	if err := checkEditable("Connect", p); err != nil {
		return nil, err
	}

	if sourceID == targetID {
		return nil, newError("Connect", sourceID, ErrSelfLoop)
	}

	if p.FindNode(sourceID) == nil {
		return nil, newError("Connect", sourceID, ErrNodeNotFound)
	}

	if p.FindNode(targetID) == nil {
		return nil, newError("Connect", targetID, ErrNodeNotFound)
	}

	if findConnection(p, sourceID, targetID) >= 0 {
		return nil, newError("Connect", sourceID, fmt.Errorf("%w: %s -> %s", ErrDuplicateConnection, sourceID, targetID))
	}

	conn := &models.Connection{SourceNodeID: sourceID, TargetNodeID: targetID}
	p.Connections = append(p.Connections, conn)
	touch(p)

	return conn, nil
}

// Disconnect removes the edge between source and target and reports whether it existed.
func Disconnect(p *models.Process, sourceID, targetID string) (bool, error) {
	if err := checkEditable("Disconnect", p); err != nil {
		return false, err
	}

	idx := findConnection(p, sourceID, targetID)
	if idx < 0 {
		return false, nil
	}

	p.Connections = append(p.Connections[:idx], p.Connections[idx+1:]...)
	touch(p)

	return true, nil
}

func findConnection(p *models.Process, sourceID, targetID string) int {
	for i, conn := range p.Connections {
		if conn.SourceNodeID == sourceID && conn.TargetNodeID == targetID {
			return i
		}
	}

	return -1
}

package graph

import (
	"slices"

	"github.com/dukex/consolidation/pkg/models"
)

// Graph is a read-only adjacency index over a process. Adjacency lists are sorted.
type Graph struct {
	Nodes map[string]*models.Node
	IDs   []string
	Preds map[string][]string
	Succs map[string][]string
}

// Index builds the dependency graph of the enabled nodes. Edges whose endpoints
// are missing or disabled are ignored.
func Index(p *models.Process) *Graph {
	return build(p, func(n *models.Node) bool { return n.Enabled })
}

// IndexAll builds the dependency graph over every node, enabled or not.
func IndexAll(p *models.Process) *Graph {
	return build(p, func(*models.Node) bool { return true })
}

func build(p *models.Process, include func(*models.Node) bool) *Graph {
	g := &Graph{
		Nodes: make(map[string]*models.Node, len(p.Nodes)),
		IDs:   make([]string, 0, len(p.Nodes)),
		Preds: make(map[string][]string, len(p.Nodes)),
		Succs: make(map[string][]string, len(p.Nodes)),
	}

	for _, node := range p.Nodes {
		if !include(node) {
			continue
		}

		if _, dup := g.Nodes[node.ID]; dup {
			continue
		}

		g.Nodes[node.ID] = node
		g.IDs = append(g.IDs, node.ID)
	}

	slices.Sort(g.IDs)

	for _, conn := range p.Connections {
		_, okSource := g.Nodes[conn.SourceNodeID]
		_, okTarget := g.Nodes[conn.TargetNodeID]

		if !okSource || !okTarget {
			continue
		}

		if slices.Contains(g.Succs[conn.SourceNodeID], conn.TargetNodeID) {
			continue
		}

		g.Succs[conn.SourceNodeID] = append(g.Succs[conn.SourceNodeID], conn.TargetNodeID)
		g.Preds[conn.TargetNodeID] = append(g.Preds[conn.TargetNodeID], conn.SourceNodeID)
	}

	for id := range g.Succs {
		slices.Sort(g.Succs[id])
	}

	for id := range g.Preds {
		slices.Sort(g.Preds[id])
	}

	return g
}

// Layers runs Kahn's algorithm level by level. Layer k holds the nodes whose
// predecessors all lie in earlier layers, sorted by id. Nodes that can never be
// released (cycle members and everything downstream of a cycle) are returned as blocked.
func (g *Graph) Layers() (layers [][]string, blocked []string) {
	indeg := make(map[string]int, len(g.IDs))
	for _, id := range g.IDs {
		indeg[id] = len(g.Preds[id])
	}

	var current []string

	for _, id := range g.IDs {
		if indeg[id] == 0 {
			current = append(current, id)
		}
	}

	placed := 0

	for len(current) > 0 {
		layers = append(layers, current)
		placed += len(current)

		var next []string

		for _, id := range current {
			for _, succ := range g.Succs[id] {
				indeg[succ]--
				if indeg[succ] == 0 {
					next = append(next, succ)
				}
			}
		}

		slices.Sort(next)
		current = next
	}

	if placed == len(g.IDs) {
		return layers, nil
	}

	for _, id := range g.IDs {
		if indeg[id] > 0 {
			blocked = append(blocked, id)
		}
	}

	return layers, blocked
}

// CycleMembers narrows a blocked set to the nodes that lie on a cycle by
// repeatedly dropping nodes with no blocked successor.
func (g *Graph) CycleMembers(blocked []string) []string {
	remaining := make(map[string]bool, len(blocked))
	for _, id := range blocked {
		remaining[id] = true
	}

	outdeg := make(map[string]int, len(blocked))

	for _, id := range blocked {
		for _, succ := range g.Succs[id] {
			if remaining[succ] {
				outdeg[id]++
			}
		}
	}

	queue := make([]string, 0, len(blocked))

	for _, id := range blocked {
		if outdeg[id] == 0 {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		delete(remaining, id)

		for _, pred := range g.Preds[id] {
			if !remaining[pred] {
				continue
			}

			outdeg[pred]--
			if outdeg[pred] == 0 {
				queue = append(queue, pred)
			}
		}
	}

	members := make([]string, 0, len(remaining))
	for id := range remaining {
		members = append(members, id)
	}

	slices.Sort(members)

	return members
}

// Descendants returns every node reachable from id, sorted, excluding id itself.
func (g *Graph) Descendants(id string) []string {
	seen := map[string]bool{id: true}
	stack := append([]string(nil), g.Succs[id]...)

	var out []string

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[cur] {
			continue
		}

		seen[cur] = true
		out = append(out, cur)
		stack = append(stack, g.Succs[cur]...)
	}

	slices.Sort(out)

	return out
}

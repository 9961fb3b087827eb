package orchestrator

import (
	"github.com/dukex/consolidation/pkg/graph"
	"github.com/dukex/consolidation/pkg/models"
)

// Plan returns the execution waves of a process: wave k holds the enabled nodes
// whose enabled predecessors all lie in earlier waves, sorted by id. Nodes caught
// in a cycle are left out; callers validate before planning.
func Plan(p *models.Process) [][]string {
	layers, _ := graph.Index(p).Layers()
	if layers == nil {
		return [][]string{}
	}

	return layers
}

func stopsOnError(node *models.Node, mode models.RunMode) bool {
	if node.StopOnError != nil {
		return *node.StopOnError
	}

	return mode == models.RunModeFinalize
}

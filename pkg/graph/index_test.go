package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectAll(t *testing.T, edges ...[2]string) *Graph {
	t.Helper()

	p := newProcess()

	seen := map[string]bool{}

	for _, e := range edges {
		for _, id := range e {
			if !seen[id] {
				seen[id] = true

				addNodes(t, p, id)
			}
		}
	}

	for _, e := range edges {
		_, err := Connect(p, e[0], e[1])
		require.NoError(t, err)
	}

	return IndexAll(p)
}

func TestLayers_Diamond(t *testing.T) {
	t.Parallel()

	g := connectAll(t, [2]string{"a", "b"}, [2]string{"a", "c"}, [2]string{"b", "d"}, [2]string{"c", "d"})

	layers, blocked := g.Layers()
	assert.Empty(t, blocked)
	assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, layers)
}

func TestLayers_DisabledNodeIsRemovedWithItsEdges(t *testing.T) {
	t.Parallel()

	p := newProcess()
	addNodes(t, p, "A", "B", "C")

	for _, e := range [][2]string{{"A", "B"}, {"B", "C"}, {"A", "C"}} {
		_, err := Connect(p, e[0], e[1])
		require.NoError(t, err)
	}

	p.FindNode("B").Enabled = false

	layers, blocked := Index(p).Layers()
	assert.Empty(t, blocked)
	assert.Equal(t, [][]string{{"A"}, {"C"}}, layers)
}

func TestLayers_Cycle(t *testing.T) {
	t.Parallel()

	g := connectAll(t,
		[2]string{"root", "x"},
		[2]string{"x", "y"},
		[2]string{"y", "z"},
		[2]string{"z", "x"},
		[2]string{"z", "tail"},
	)

	layers, blocked := g.Layers()
	assert.Equal(t, [][]string{{"root"}}, layers)
	assert.Equal(t, []string{"tail", "x", "y", "z"}, blocked)
	assert.Equal(t, []string{"x", "y", "z"}, g.CycleMembers(blocked))
}

func TestDescendants(t *testing.T) {
	t.Parallel()

	g := connectAll(t, [2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"a", "d"}, [2]string{"e", "c"})

	assert.Equal(t, []string{"b", "c", "d"}, g.Descendants("a"))
	assert.Equal(t, []string{"c"}, g.Descendants("e"))
	assert.Empty(t, g.Descendants("c"))
}

package testutil

import (
	"testing"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTestProcess(t *testing.T) {
	t.Parallel()

	p := CreateTestProcess(
		WithProcessID("p1"),
		WithStatus(models.ProcessStatusSimulated),
		WithSchedule("0 6 * * *"),
		WithNodes(
			CreateTestNode(WithID("a")),
			CreateTestNode(WithID("b"), Disabled(), WithStopOnError(true)),
		),
		WithEdges([2]string{"a", "b"}),
	)

	assert.Equal(t, models.ProcessRef{CompanyID: "acme", ProcessID: "p1"}, p.Ref())
	assert.Equal(t, models.ProcessStatusSimulated, p.Status)
	assert.Equal(t, "0 6 * * *", p.SimulationSchedule)
	require.Len(t, p.Nodes, 2)
	assert.False(t, p.Nodes[1].Enabled)
	require.NotNil(t, p.Nodes[1].StopOnError)
	assert.True(t, *p.Nodes[1].StopOnError)
	assert.Equal(t, []*models.Connection{{SourceNodeID: "a", TargetNodeID: "b"}}, p.Connections)
}

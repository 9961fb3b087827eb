package validation

import (
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/consolidation/pkg/catalog"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator() *Validator {
	return NewValidator(catalog.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func journal(id string) *models.Node {
	return &models.Node{
		ID:      id,
		Type:    models.NodeTypeConsolidationJournal,
		Enabled: true,
		Configuration: map[string]any{
			"journal_type": "recurring",
		},
	}
}

func process(nodes []*models.Node, edges ...[2]string) *models.Process {
	p := &models.Process{ID: "p1", CompanyID: "c1", Status: models.ProcessStatusActive, Nodes: nodes}
	for _, e := range edges {
		p.Connections = append(p.Connections, &models.Connection{SourceNodeID: e[0], TargetNodeID: e[1]})
	}

	return p
}

func TestValidate_ValidChain(t *testing.T) {
	t.Parallel()

	p := process([]*models.Node{journal("a"), journal("b"), journal("c")}, [2]string{"a", "b"}, [2]string{"b", "c"})

	result := newValidator().Validate(p)

	assert.True(t, result.Valid, "%v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Alerts)
}

func TestValidate_Cycles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		nodes   []string
		edges   [][2]string
		members []string
	}{
		{
			name:    "two node cycle",
			nodes:   []string{"X", "Y"},
			edges:   [][2]string{{"X", "Y"}, {"Y", "X"}},
			members: []string{"X", "Y"},
		},
		{
			name:    "three node cycle",
			nodes:   []string{"a", "b", "c"},
			edges:   [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}},
			members: []string{"a", "b", "c"},
		},
		{
			name:    "cycle with upstream and downstream nodes",
			nodes:   []string{"in", "a", "b", "out"},
			edges:   [][2]string{{"in", "a"}, {"a", "b"}, {"b", "a"}, {"b", "out"}},
			members: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			nodes := make([]*models.Node, 0, len(tt.nodes))
			for _, id := range tt.nodes {
				nodes = append(nodes, journal(id))
			}

			result := newValidator().Validate(process(nodes, tt.edges...))

			require.False(t, result.Valid)
			require.Len(t, result.Errors, 1)
			assert.Equal(t, models.ValidationCyclicDependency, result.Errors[0].Kind)
			assert.Equal(t, tt.members, result.Errors[0].NodeIDs)
		})
	}
}

func TestValidate_CycleThroughDisabledNodeIsIgnored(t *testing.T) {
	t.Parallel()

	b := journal("b")
	b.Enabled = false

	p := process([]*models.Node{journal("a"), b}, [2]string{"a", "b"}, [2]string{"b", "a"})

	result := newValidator().Validate(p)
	assert.True(t, result.Valid, "%v", result.Errors)
}

func TestValidate_MissingRequiredField(t *testing.T) {
	t.Parallel()

	fx := &models.Node{
		ID:      "fx1",
		Type:    models.NodeTypeFXTranslation,
		Enabled: true,
		Configuration: map[string]any{
			"translation_method": "",
			"reporting_currency": "EUR",
		},
	}

	result := newValidator().Validate(process([]*models.Node{fx}))

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.ValidationMissingRequiredField, result.Errors[0].Kind)
	assert.Equal(t, "fx1", result.Errors[0].NodeID)
	assert.Equal(t, "translation_method", result.Errors[0].Field)
}

func TestValidate_DisabledNodeSkipsConfigurationChecks(t *testing.T) {
	t.Parallel()

	fx := &models.Node{ID: "fx1", Type: models.NodeTypeFXTranslation, Enabled: false}

	result := newValidator().Validate(process([]*models.Node{fx}))
	assert.True(t, result.Valid)
}

func TestValidate_CollectsEveryErrorSorted(t *testing.T) {
	t.Parallel()

	unknown := &models.Node{ID: "u", Type: "fx_magic", Enabled: true}
	fx := &models.Node{
		ID:            "fx",
		Type:          models.NodeTypeFXTranslation,
		Enabled:       true,
		Configuration: map[string]any{"translation_method": "guesswork", "reporting_currency": ""},
	}

	p := process(
		[]*models.Node{unknown, fx, journal("x"), journal("y")},
		[2]string{"x", "y"},
		[2]string{"y", "x"},
		[2]string{"x", "ghost"},
		[2]string{"fx", "u"},
	)

	result := newValidator().Validate(p)
	require.False(t, result.Valid)

	kinds := make([]models.ValidationErrorKind, 0, len(result.Errors))
	for _, e := range result.Errors {
		kinds = append(kinds, e.Kind)
	}

	assert.Equal(t, []models.ValidationErrorKind{
		models.ValidationUnknownNodeType,
		models.ValidationCyclicDependency,
		models.ValidationDanglingConnection,
		models.ValidationMissingRequiredField,
		models.ValidationInvalidConfiguration,
	}, kinds)

	assert.Equal(t, "ghost", result.Errors[2].NodeID)
	assert.Equal(t, "reporting_currency", result.Errors[3].Field)
	assert.Equal(t, "translation_method", result.Errors[4].Field)
}

func TestValidate_OrphansAreAdvisory(t *testing.T) {
	t.Parallel()

	p := process([]*models.Node{journal("a"), journal("b"), journal("lonely")}, [2]string{"a", "b"})

	result := newValidator().Validate(p)

	assert.True(t, result.Valid)
	require.Len(t, result.Alerts, 1)
	assert.Equal(t, "lonely", result.Alerts[0].NodeID)
	assert.Equal(t, models.AlertSeverityAdvisory, result.Alerts[0].Severity)
	assert.Equal(t, AlertOrphanNode, result.Alerts[0].Code)
}

func TestValidate_SingleNodeIsNotOrphan(t *testing.T) {
	t.Parallel()

	result := newValidator().Validate(process([]*models.Node{journal("only")}))

	assert.True(t, result.Valid)
	assert.Empty(t, result.Alerts)
}

func TestIsEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, isEmpty(nil))
	assert.True(t, isEmpty(""))
	assert.True(t, isEmpty("  "))
	assert.True(t, isEmpty([]any{}))
	assert.True(t, isEmpty(map[string]any{}))
	assert.False(t, isEmpty(false))
	assert.False(t, isEmpty(0))
	assert.False(t, isEmpty("x"))
	assert.False(t, isEmpty([]string{"a"}))
}

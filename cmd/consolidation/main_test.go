package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/consolidation/pkg/calculation"
	"github.com/dukex/consolidation/pkg/catalog"
	"github.com/dukex/consolidation/pkg/lifecycle"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/orchestrator"
	"github.com/dukex/consolidation/pkg/persistence/file"
	"github.com/dukex/consolidation/pkg/services"
	"github.com/dukex/consolidation/pkg/validation"
	"github.com/dukex/consolidation/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validProcess = `
name: FY2025 close
fiscal_year: 2025
nodes:
  - id: import
    type: data_import
    configuration:
      fiscal_period: "2025-12"
  - id: fx
    type: fx_translation
    configuration:
      translation_method: current_rate
      reporting_currency: EUR
  - id: ic
    type: intercompany_elimination
    configuration:
      elimination_account: "9900"
  - id: report
    type: financial_statement
    configuration:
      statement_type: balance_sheet
connections:
  - {source: import, target: fx}
  - {source: fx, target: ic}
  - {source: import, target: ic}
  - {source: ic, target: report}
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateDefinition(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	err := validateDefinition(t.Context(), discardLogger(), []byte(validProcess), &out)
	require.NoError(t, err, out.String())

	assert.Contains(t, out.String(), `Process "FY2025 close" is valid`)
	assert.Contains(t, out.String(), "1: import\n")
	assert.Contains(t, out.String(), "2: fx\n")
	assert.Contains(t, out.String(), "3: ic\n")
	assert.Contains(t, out.String(), "4: report\n")
}

func TestValidateDefinition_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		yaml     string
		expected string
	}{
		{
			name: "cycle",
			yaml: `
name: Cyclic
fiscal_year: 2025
nodes:
  - {id: x, type: consolidation_journal, configuration: {journal_type: manual}}
  - {id: y, type: consolidation_journal, configuration: {journal_type: manual}}
connections:
  - {source: x, target: y}
  - {source: y, target: x}
`,
			expected: "CyclicDependency(x, y)",
		},
		{
			name: "missing required field",
			yaml: `
name: Missing method
fiscal_year: 2025
nodes:
  - {id: fx, type: fx_translation, configuration: {reporting_currency: EUR}}
`,
			expected: "MissingRequiredField(fx, translation_method)",
		},
		{
			name: "unknown type",
			yaml: `
name: Unknown
fiscal_year: 2025
nodes:
  - {id: m, type: crypto_mining}
`,
			expected: "UnknownNodeType(m)",
		},
		{
			name: "dangling connection",
			yaml: `
name: Dangling
fiscal_year: 2025
nodes:
  - {id: a, type: consolidation_journal, configuration: {journal_type: manual}}
connections:
  - {source: a, target: ghost}
`,
			expected: "DanglingConnection",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer

			err := validateDefinition(t.Context(), discardLogger(), []byte(tt.yaml), &out)
			require.ErrorIs(t, err, ErrInvalidProcess)
			assert.Contains(t, out.String(), "is invalid")
			assert.Contains(t, out.String(), tt.expected)
			assert.NotContains(t, out.String(), "Waves:")
		})
	}
}

func TestValidateDefinition_Malformed(t *testing.T) {
	t.Parallel()

	err := validateDefinition(t.Context(), discardLogger(), []byte("nodes: [unterminated"), io.Discard)
	require.Error(t, err)

	err = validateDefinition(t.Context(), discardLogger(), []byte("name: No year\n"), io.Discard)
	require.ErrorIs(t, err, ErrInvalidProcess)
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "process.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validProcess), 0o600))

	var out bytes.Buffer

	root := NewRootCommand()
	root.Writer = &out

	require.NoError(t, root.Run(t.Context(), []string{"consolidation", "validate", "--file", path}))
	assert.Contains(t, out.String(), "is valid")
}

func TestPrintTemplates(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	require.NoError(t, printTemplates(&out, catalog.New(), false))
	assert.Contains(t, out.String(), "TYPE")
	assert.Contains(t, out.String(), "fx_translation")
	assert.Contains(t, out.String(), "translation_method,reporting_currency")

	out.Reset()

	require.NoError(t, printTemplates(&out, catalog.New(), true))
	assert.Contains(t, out.String(), `"type": "financial_statement"`)
}

func TestAPI_RootEndpoint(t *testing.T) {
	t.Parallel()

	logger := discardLogger()
	store := file.NewPersistence(t.TempDir())
	templates := catalog.New()
	controller := lifecycle.NewController(store, logger)
	validate := validator.New(validator.WithRequiredStructEnabled())

	client := calculation.ClientFunc(func(context.Context, models.CalculationRequest) (models.CalculationResponse, error) {
		return models.CalculationResponse{Status: models.CalculationOK}, nil
	})

	orch := orchestrator.New(store, controller, validation.NewValidator(templates, logger), client, logger)
	processes := services.NewProcess(store, controller, templates, validate, logger)

	api := NewAPI(logger, web.NewAPIHandlers(processes, orch, templates, validate, nil, logger))
	app := api.App()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Consolidation API", string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/templates", nil))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

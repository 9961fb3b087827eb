package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dukex/consolidation/pkg/catalog"
	"github.com/dukex/consolidation/pkg/log"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/orchestrator"
	"github.com/dukex/consolidation/pkg/validation"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

var ErrInvalidProcess = errors.New("process definition is invalid")

// ProcessDefinition is the file form of a process graph.
type ProcessDefinition struct {
	Name        string                 `yaml:"name"        validate:"required"`
	FiscalYear  int                    `yaml:"fiscal_year" validate:"required,min=1900,max=2999"`
	Nodes       []NodeDefinition       `yaml:"nodes"       validate:"dive"`
	Connections []ConnectionDefinition `yaml:"connections" validate:"dive"`
}

type NodeDefinition struct {
	ID            string         `yaml:"id"            validate:"required"`
	Type          string         `yaml:"type"          validate:"required"`
	Title         string         `yaml:"title"`
	Configuration map[string]any `yaml:"configuration"`
	Enabled       *bool          `yaml:"enabled"`
	StopOnError   *bool          `yaml:"stop_on_error"`
}

type ConnectionDefinition struct {
	Source string `yaml:"source" validate:"required"`
	Target string `yaml:"target" validate:"required"`
}

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate a process definition file and print its execution plan",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the process definition (YAML)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.New(os.Stderr, command.String("log-level"), "text").With(
				"module", "consolidation",
				"action", "validate",
			)

			raw, err := os.ReadFile(command.String("file"))
			if err != nil {
				return fmt.Errorf("failed to read process definition: %w", err)
			}

			return validateDefinition(ctx, logger, raw, command.Root().Writer)
		},
	}
}

func validateDefinition(ctx context.Context, logger *slog.Logger, raw []byte, out io.Writer) error {
	var def ProcessDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return fmt.Errorf("failed to parse process definition: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(def); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProcess, err)
	}

	templates := catalog.New()
	p := def.toProcess(templates)

	logger.DebugContext(ctx, "Validating process definition", "name", def.Name, "nodes", len(p.Nodes))

	result := validation.NewValidator(templates, logger).Validate(p)

	printReport(out, def.Name, result)

	if !result.Valid {
		return fmt.Errorf("%w: %d error(s)", ErrInvalidProcess, len(result.Errors))
	}

	_, _ = fmt.Fprintln(out, "Waves:")

	for i, wave := range orchestrator.Plan(p) {
		_, _ = fmt.Fprintf(out, "  %d: %s\n", i+1, strings.Join(wave, ", "))
	}

	return nil
}

// toProcess builds an in-memory process. Known node types get their template
// defaults; unknown types and dangling connections are kept for the validator to report.
func (d ProcessDefinition) toProcess(templates *catalog.Catalog) *models.Process {
	p := &models.Process{
		ID:          "file",
		CompanyID:   "local",
		Name:        d.Name,
		FiscalYear:  d.FiscalYear,
		Status:      models.ProcessStatusActive,
		Nodes:       make([]*models.Node, 0, len(d.Nodes)),
		Connections: make([]*models.Connection, 0, len(d.Connections)),
	}

	for _, n := range d.Nodes {
		nodeType := models.NodeType(n.Type)

		cfg, err := templates.Configure(nodeType, n.Configuration)
		if err != nil {
			cfg = models.CloneMap(n.Configuration)
		}

		node := &models.Node{
			ID:            n.ID,
			Type:          nodeType,
			Title:         n.Title,
			Configuration: cfg,
			Enabled:       n.Enabled == nil || *n.Enabled,
			StopOnError:   n.StopOnError,
		}

		p.Nodes = append(p.Nodes, node)
	}

	for _, c := range d.Connections {
		p.Connections = append(p.Connections, &models.Connection{SourceNodeID: c.Source, TargetNodeID: c.Target})
	}

	return p
}

func printReport(out io.Writer, name string, result models.ValidationResult) {
	status := "valid"
	if !result.Valid {
		status = "invalid"
	}

	_, _ = fmt.Fprintf(out, "Process %q is %s\n", name, status)

	for _, e := range result.Errors {
		_, _ = fmt.Fprintf(out, "  error: %s\n", e.Error())
	}

	for _, a := range result.Alerts {
		target := ""
		if a.NodeID != "" {
			target = " [" + a.NodeID + "]"
		}

		_, _ = fmt.Fprintf(out, "  %s%s: %s\n", a.Severity, target, a.Message)
	}
}

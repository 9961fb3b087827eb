// Package catalog provides the static registry of consolidation node templates.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"dario.cat/mergo"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrUnknownNodeType is returned when a node type has no template.
var ErrUnknownNodeType = errors.New("unknown node type")

// TemplateError wraps catalog errors with the offending node type.
type TemplateError struct {
	Type models.NodeType
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("node type %q: %v", e.Type, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// IsUnknownNodeType checks if an error indicates an unknown node type.
func IsUnknownNodeType(err error) bool {
	return errors.Is(err, ErrUnknownNodeType)
}

type entry struct {
	template models.NodeTemplate
	schema   *gojsonschema.Schema
}

// Catalog is the read-only set of allowed node types. It is safe for concurrent use.
type Catalog struct {
	entries map[models.NodeType]entry
	types   []models.NodeType
}

// New builds the catalog from the fixed definition table.
// It panics if a built-in schema does not compile, which is a programming error.
func New() *Catalog {
	c, err := newCatalog(definitions())
	if err != nil {
		panic(err)
	}

	return c
}

func newCatalog(templates []models.NodeTemplate) (*Catalog, error) {
	c := &Catalog{
		entries: make(map[models.NodeType]entry, len(templates)),
		types:   make([]models.NodeType, 0, len(templates)),
	}

	for _, tmpl := range templates {
		if _, exists := c.entries[tmpl.Type]; exists {
			return nil, fmt.Errorf("duplicate template %q", tmpl.Type)
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tmpl.Schema))
		if err != nil {
			return nil, fmt.Errorf("invalid schema for template %q: %w", tmpl.Type, err)
		}

		c.entries[tmpl.Type] = entry{template: tmpl, schema: schema}
		c.types = append(c.types, tmpl.Type)
	}

	sort.Slice(c.types, func(i, j int) bool { return c.types[i] < c.types[j] })

	return c, nil
}

// List returns every template, sorted by type.
func (c *Catalog) List() []models.NodeTemplate {
	templates := make([]models.NodeTemplate, 0, len(c.types))
	for _, t := range c.types {
		templates = append(templates, copyTemplate(c.entries[t].template))
	}

	return templates
}

// Get returns the template for a node type.
func (c *Catalog) Get(nodeType models.NodeType) (models.NodeTemplate, error) {
	e, ok := c.entries[nodeType]
	if !ok {
		return models.NodeTemplate{}, &TemplateError{Type: nodeType, Err: ErrUnknownNodeType}
	}

	return copyTemplate(e.template), nil
}

// Has reports whether the node type is known.
func (c *Catalog) Has(nodeType models.NodeType) bool {
	_, ok := c.entries[nodeType]

	return ok
}

// Configure returns a new configuration with the template defaults merged under
// the user values. User values win, including explicit zero values.
func (c *Catalog) Configure(nodeType models.NodeType, user map[string]any) (map[string]any, error) {
	e, ok := c.entries[nodeType]
	if !ok {
		return nil, &TemplateError{Type: nodeType, Err: ErrUnknownNodeType}
	}

	merged := models.CloneMap(e.template.DefaultConfiguration)
	if merged == nil {
		merged = make(map[string]any)
	}

	if len(user) == 0 {
		return merged, nil
	}

	if err := mergo.Merge(&merged, models.CloneMap(user), mergo.WithOverride); err != nil {
		return nil, &TemplateError{Type: nodeType, Err: fmt.Errorf("failed to merge configuration: %w", err)}
	}

	return merged, nil
}

// Default returns a copy of the template default for one configuration key.
func (c *Catalog) Default(nodeType models.NodeType, key string) (any, bool) {
	e, ok := c.entries[nodeType]
	if !ok {
		return nil, false
	}

	v, ok := e.template.DefaultConfiguration[key]
	if !ok {
		return nil, false
	}

	return models.CloneMap(map[string]any{key: v})[key], true
}

// ValidateConfiguration checks configuration value types and enums against the
// template schema. Requiredness is not checked here.
func (c *Catalog) ValidateConfiguration(nodeID string, nodeType models.NodeType, cfg map[string]any) []models.ValidationError {
	e, ok := c.entries[nodeType]
	if !ok {
		return nil
	}

	if cfg == nil {
		cfg = map[string]any{}
	}

	result, err := e.schema.Validate(gojsonschema.NewGoLoader(cfg))
	if err != nil {
		slog.Default().Warn("Failed to evaluate configuration schema", "module", "catalog", "node_type", nodeType, "error", err)

		return []models.ValidationError{{
			Kind:    models.ValidationInvalidConfiguration,
			NodeID:  nodeID,
			Message: "configuration could not be evaluated: " + err.Error(),
		}}
	}

	if result.Valid() {
		return nil
	}

	problems := make([]models.ValidationError, 0, len(result.Errors()))
	seen := make(map[string]bool)

	for _, re := range result.Errors() {
		field := re.Field()
		if field == "(root)" {
			field = ""
		}

		// anyOf failures report one error per branch plus a summary; keep the first per field.
		if seen[field] {
			continue
		}

		seen[field] = true

		problems = append(problems, models.ValidationError{
			Kind:    models.ValidationInvalidConfiguration,
			NodeID:  nodeID,
			Field:   field,
			Message: re.Description(),
		})
	}

	return problems
}

func copyTemplate(t models.NodeTemplate) models.NodeTemplate {
	out := t
	out.DefaultConfiguration = models.CloneMap(t.DefaultConfiguration)
	out.Schema = models.CloneMap(t.Schema)
	out.RequiredFields = append([]string(nil), t.RequiredFields...)

	return out
}

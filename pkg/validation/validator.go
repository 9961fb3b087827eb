// Package validation checks a consolidation process graph before it may execute.
package validation

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"github.com/dukex/consolidation/pkg/graph"
	"github.com/dukex/consolidation/pkg/models"
)

// AlertOrphanNode is the advisory code for nodes without any connection.
const AlertOrphanNode = "orphan_node"

// Catalog is the subset of the node catalog the validator depends on.
type Catalog interface {
	Get(nodeType models.NodeType) (models.NodeTemplate, error)
	ValidateConfiguration(nodeID string, nodeType models.NodeType, cfg map[string]any) []models.ValidationError
}

// Validator runs every structural check in a single pass.
type Validator struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewValidator creates a validator backed by the given catalog.
func NewValidator(catalog Catalog, logger *slog.Logger) *Validator {
	return &Validator{
		catalog: catalog,
		logger:  logger.With("module", "validator"),
	}
}

// Validate collects every problem in the process. It never stops at the first error.
func (v *Validator) Validate(p *models.Process) models.ValidationResult {
	var errs []models.ValidationError

	errs = append(errs, v.checkNodeTypes(p)...)
	errs = append(errs, checkAcyclic(p)...)
	errs = append(errs, checkConnections(p)...)
	errs = append(errs, v.checkConfigurations(p)...)

	sortErrors(errs)

	result := models.ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
		Alerts: orphanAlerts(p),
	}

	if result.Errors == nil {
		result.Errors = []models.ValidationError{}
	}

	if !result.Valid {
		v.logger.Debug("Process graph is invalid",
			"company_id", p.CompanyID,
			"process_id", p.ID,
			"errors", len(errs),
		)
	}

	return result
}

func (v *Validator) checkNodeTypes(p *models.Process) []models.ValidationError {
	var errs []models.ValidationError

	for _, node := range p.Nodes {
		if _, err := v.catalog.Get(node.Type); err != nil {
			errs = append(errs, models.ValidationError{
				Kind:    models.ValidationUnknownNodeType,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node type %q is not in the catalog", node.Type),
			})
		}
	}

	return errs
}

func checkAcyclic(p *models.Process) []models.ValidationError {
	g := graph.Index(p)

	_, blocked := g.Layers()
	if len(blocked) == 0 {
		return nil
	}

	members := g.CycleMembers(blocked)

	return []models.ValidationError{{
		Kind:    models.ValidationCyclicDependency,
		NodeIDs: members,
		Message: "nodes form a dependency cycle: " + strings.Join(members, " -> "),
	}}
}

func checkConnections(p *models.Process) []models.ValidationError {
	ids := make(map[string]bool, len(p.Nodes))
	for _, node := range p.Nodes {
		ids[node.ID] = true
	}

	var errs []models.ValidationError

	for _, conn := range p.Connections {
		var missing []string

		if !ids[conn.SourceNodeID] {
			missing = append(missing, "source "+conn.SourceNodeID)
		}

		if !ids[conn.TargetNodeID] {
			missing = append(missing, "target "+conn.TargetNodeID)
		}

		if len(missing) == 0 {
			continue
		}

		nodeID := conn.SourceNodeID
		if ids[conn.SourceNodeID] {
			nodeID = conn.TargetNodeID
		}

		errs = append(errs, models.ValidationError{
			Kind:   models.ValidationDanglingConnection,
			NodeID: nodeID,
			Message: fmt.Sprintf("connection %s -> %s references a missing node (%s)",
				conn.SourceNodeID, conn.TargetNodeID, strings.Join(missing, ", ")),
		})
	}

	return errs
}

func (v *Validator) checkConfigurations(p *models.Process) []models.ValidationError {
	var errs []models.ValidationError

	for _, node := range p.Nodes {
		if !node.Enabled {
			continue
		}

		tmpl, err := v.catalog.Get(node.Type)
		if err != nil {
			continue
		}

		for _, field := range tmpl.RequiredFields {
			if isEmpty(node.Configuration[field]) {
				errs = append(errs, models.ValidationError{
					Kind:    models.ValidationMissingRequiredField,
					NodeID:  node.ID,
					Field:   field,
					Message: fmt.Sprintf("%s requires %q", tmpl.Name, field),
				})
			}
		}

		errs = append(errs, v.catalog.ValidateConfiguration(node.ID, node.Type, node.Configuration)...)
	}

	return errs
}

// isEmpty treats nil, blank strings and empty collections as unset.
func isEmpty(value any) bool {
	if value == nil {
		return true
	}

	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func orphanAlerts(p *models.Process) []models.Alert {
	alerts := []models.Alert{}

	if len(p.Nodes) < 2 {
		return alerts
	}

	connected := make(map[string]bool, len(p.Nodes))

	for _, conn := range p.Connections {
		connected[conn.SourceNodeID] = true
		connected[conn.TargetNodeID] = true
	}

	ids := make([]string, 0, len(p.Nodes))

	for _, node := range p.Nodes {
		if !connected[node.ID] {
			ids = append(ids, node.ID)
		}
	}

	slices.Sort(ids)

	for _, id := range ids {
		alerts = append(alerts, models.Alert{
			NodeID:   id,
			Severity: models.AlertSeverityAdvisory,
			Code:     AlertOrphanNode,
			Message:  "node has no incoming or outgoing connections",
		})
	}

	return alerts
}

var kindOrder = map[models.ValidationErrorKind]int{
	models.ValidationUnknownNodeType:      0,
	models.ValidationCyclicDependency:     1,
	models.ValidationDanglingConnection:   2,
	models.ValidationMissingRequiredField: 3,
	models.ValidationInvalidConfiguration: 4,
}

func sortErrors(errs []models.ValidationError) {
	slices.SortStableFunc(errs, func(a, b models.ValidationError) int {
		if d := kindOrder[a.Kind] - kindOrder[b.Kind]; d != 0 {
			return d
		}

		if c := strings.Compare(a.NodeID, b.NodeID); c != 0 {
			return c
		}

		return strings.Compare(a.Field, b.Field)
	})
}

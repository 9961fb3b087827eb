package web

import (
	"errors"

	"github.com/dukex/consolidation/pkg/catalog"
	"github.com/dukex/consolidation/pkg/graph"
	"github.com/dukex/consolidation/pkg/lifecycle"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/orchestrator"
	"github.com/dukex/consolidation/pkg/persistence"
	"github.com/dukex/consolidation/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// InvalidGraphProblem is the 422 body of a run refused because the graph does not validate.
type InvalidGraphProblem struct {
	*problems.Problem

	Errors []models.ValidationError `json:"errors"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, problemType string, err error) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(err.Error())

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service, graph, lifecycle and orchestrator errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	var invalidGraph *orchestrator.InvalidGraphError

	switch {
	case errors.As(err, &invalidGraph):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("invalid_graph").
			WithDetail("process graph has validation errors")

		return c.Status(fiber.StatusUnprocessableEntity).JSON(InvalidGraphProblem{
			Problem: problem,
			Errors:  invalidGraph.Errors,
		})

	case errors.Is(err, orchestrator.ErrInvalidMode):
		return badRequest(c, err.Error())

	case catalog.IsUnknownNodeType(err) && !isNodeRequest(c):
		return notFound(c, "template_not_found", err.Error())

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case graph.IsProcessLocked(err):
		return conflict(c, "process_finalized", err)

	case lifecycle.IsInvalidTransition(err):
		return conflict(c, "invalid_transition", err)

	case services.IsConflictError(err):
		return conflict(c, "process_busy", err)

	case orchestrator.IsRunNotActive(err):
		return conflict(c, "run_not_active", err)

	case persistence.IsProcessNotFound(err):
		return notFound(c, "process_not_found", "process not found")

	case persistence.IsRunNotFound(err):
		return notFound(c, "run_not_found", "run not found")

	case graph.IsNodeNotFound(err):
		return notFound(c, "node_not_found", err.Error())

	default:
		return internalError(c, err)
	}
}

func isNodeRequest(c fiber.Ctx) bool {
	return c.Params("id") != ""
}

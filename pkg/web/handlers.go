package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/consolidation/pkg/catalog"
	"github.com/dukex/consolidation/pkg/graph"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/orchestrator"
	"github.com/dukex/consolidation/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// ScheduleReloader is notified after a process schedule may have changed.
type ScheduleReloader interface {
	Reload(ctx context.Context) error
}

type APIHandlers struct {
	processes    *services.Process
	orchestrator *orchestrator.Orchestrator
	catalog      *catalog.Catalog
	validator    *validator.Validate
	scheduler    ScheduleReloader
	logger       *slog.Logger
}

// NewAPIHandlers creates the handlers. scheduler may be nil.
func NewAPIHandlers(
	processes *services.Process,
	orchestrator *orchestrator.Orchestrator,
	catalog *catalog.Catalog,
	validator *validator.Validate,
	scheduler ScheduleReloader,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		processes:    processes,
		orchestrator: orchestrator,
		catalog:      catalog,
		validator:    validator,
		scheduler:    scheduler,
		logger:       logger.With("module", "api_handlers"),
	}
}

// Register mounts every route on the router.
func (h *APIHandlers) Register(r fiber.Router) {
	r.Get("/health", h.HealthCheck)

	r.Get("/templates", h.ListTemplates)
	r.Get("/templates/:type", h.GetTemplate)

	c := r.Group("/companies/:companyId")
	c.Get("/runs/:runId", h.GetRun)
	c.Post("/runs/:runId/cancel", h.CancelRun)

	p := c.Group("/processes")
	p.Get("/", h.ListProcesses)
	p.Post("/", h.CreateProcess)
	p.Get("/:id", h.GetProcess)
	p.Patch("/:id", h.UpdateProcess)
	p.Delete("/:id", h.DeleteProcess)

	p.Post("/:id/nodes", h.AddNode)
	p.Patch("/:id/nodes/:nodeId", h.UpdateNode)
	p.Delete("/:id/nodes/:nodeId", h.RemoveNode)

	p.Post("/:id/connections", h.Connect)
	p.Delete("/:id/connections/:sourceId/:targetId", h.Disconnect)

	p.Post("/:id/validate", h.ValidateProcess)
	p.Post("/:id/runs", h.StartRun)
	p.Get("/:id/runs", h.ListRuns)
}

func processRef(c fiber.Ctx) models.ProcessRef {
	return models.ProcessRef{CompanyID: c.Params("companyId"), ProcessID: c.Params("id")}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.processes.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Consolidation API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Consolidation API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
			"templates":  len(h.catalog.List()),
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) ListTemplates(c fiber.Ctx) error {
	return c.JSON(h.catalog.List())
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	template, err := h.catalog.Get(models.NodeType(c.Params("type")))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) ListProcesses(c fiber.Ctx) error {
	processes, err := h.processes.List(c.Context(), c.Params("companyId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(processes)
}

func (h *APIHandlers) CreateProcess(c fiber.Ctx) error {
	var req services.CreateProcessRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.processes.Create(c.Context(), c.Params("companyId"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	if created.SimulationSchedule != "" {
		h.reloadSchedules(c.Context())
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetProcess(c fiber.Ctx) error {
	p, err := h.processes.Get(c.Context(), processRef(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(p)
}

func (h *APIHandlers) UpdateProcess(c fiber.Ctx) error {
	var req services.UpdateProcessRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.processes.Update(c.Context(), processRef(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.SimulationSchedule != nil {
		h.reloadSchedules(c.Context())
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteProcess(c fiber.Ctx) error {
	if err := h.processes.Delete(c.Context(), processRef(c)); err != nil {
		return handleServiceError(c, err)
	}

	h.reloadSchedules(c.Context())

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddNode(c fiber.Ctx) error {
	var req graph.NewNode
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	node, err := h.processes.AddNode(c.Context(), processRef(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) UpdateNode(c fiber.Ctx) error {
	var patch graph.NodePatch
	if err := c.Bind().JSON(&patch); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	node, err := h.processes.UpdateNode(c.Context(), processRef(c), c.Params("nodeId"), patch)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) RemoveNode(c fiber.Ctx) error {
	removed, err := h.processes.RemoveNode(c.Context(), processRef(c), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(RemovedResponse{Removed: removed})
}

func (h *APIHandlers) Connect(c fiber.Ctx) error {
	var req services.ConnectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	conn, err := h.processes.Connect(c.Context(), processRef(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(conn)
}

func (h *APIHandlers) Disconnect(c fiber.Ctx) error {
	removed, err := h.processes.Disconnect(c.Context(), processRef(c), c.Params("sourceId"), c.Params("targetId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(RemovedResponse{Removed: removed})
}

func (h *APIHandlers) ValidateProcess(c fiber.Ctx) error {
	ref := processRef(c)

	result, err := h.orchestrator.Validate(c.Context(), ref)
	if err != nil {
		return handleServiceError(c, err)
	}

	resp := ValidationResponse{ValidationResult: result, Waves: [][]string{}}

	if result.Valid {
		p, err := h.processes.Get(c.Context(), ref)
		if err != nil {
			return handleServiceError(c, err)
		}

		resp.Waves = orchestrator.Plan(p)
	}

	return c.JSON(resp)
}

func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	var req StartRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ref := processRef(c)

	if req.Wait {
		run, err := h.orchestrator.Run(c.Context(), ref, req.Mode)
		if err != nil && run == nil {
			return handleServiceError(c, err)
		}

		if err != nil {
			h.logger.ErrorContext(c.Context(), "Run finished with a commit error", "run_id", run.ID, "error", err)
		}

		return c.JSON(run)
	}

	run, err := h.orchestrator.Start(c.Context(), ref, req.Mode)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

func (h *APIHandlers) ListRuns(c fiber.Ctx) error {
	runs, err := h.orchestrator.ListRuns(c.Context(), processRef(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(runs)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.orchestrator.GetRun(c.Context(), c.Params("companyId"), c.Params("runId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	companyID, runID := c.Params("companyId"), c.Params("runId")

	if err := h.orchestrator.Cancel(c.Context(), companyID, runID); err != nil {
		return handleServiceError(c, err)
	}

	run, err := h.orchestrator.GetRun(c.Context(), companyID, runID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

func (h *APIHandlers) reloadSchedules(ctx context.Context) {
	if h.scheduler == nil {
		return
	}

	if err := h.scheduler.Reload(ctx); err != nil {
		h.logger.WarnContext(ctx, "Failed to reload schedules", "error", err)
	}
}

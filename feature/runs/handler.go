package runs

import (
	"errors"

	"lease-sync/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for run history.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the run history routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/runs")
	group.Get("/", h.HandleList)
	group.Get("/:id", h.HandleGet)
	group.Get("/:id/report", h.HandleReport)
}

// HandleList returns recent runs.
// @Summary List Runs
// @Description List recent sync runs, newest first.
// @Tags runs
// @Produce json
// @Param flow query string false "Flow name (units, leases, owners, ...)"
// @Param limit query int false "Maximum number of runs"
// @Success 200 {array} Run
// @Failure 503 {object} map[string]string "History disabled"
// @Router /runs [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	runs, err := h.service.List(c.Context(), c.Query("flow"), c.QueryInt("limit", DefaultListLimit))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(runs)
}

// HandleGet returns one run with its failed items.
// @Summary Get Run
// @Tags runs
// @Produce json
// @Param id path string true "Run id"
// @Success 200 {object} Run
// @Failure 404 {object} map[string]string "Not Found"
// @Router /runs/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	run, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(run)
}

// HandleReport returns the archived JSON report of a run.
// @Summary Get Run Report
// @Tags runs
// @Produce json
// @Param id path string true "Run id"
// @Param flow query string false "Flow name, looked up when omitted"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string "Not Found"
// @Router /runs/{id}/report [get]
func (h *Handler) HandleReport(c *fiber.Ctx) error {
	data, err := h.service.Report(c.Context(), c.Query("flow"), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	logger.WithRayID(h.service.logger, c).Error("Run history query failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

package sync

import (
	"context"
	"sync"

	"lease-sync/core/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TriggerRequest is the body of a sync trigger.
type TriggerRequest struct {
	Limit             int   `json:"limit"`
	PropertyIDs       []int `json:"property_ids"`
	UnitIDs           []int `json:"unit_ids"`
	OwnerIDs          []int `json:"owner_ids"`
	DryRun            bool  `json:"dry_run"`
	Force             bool  `json:"force"`
	CreateOnly        bool  `json:"create_only"`
	Full              bool  `json:"full"`
	Concurrency       int   `json:"concurrency"`
	AssociationOwners bool  `json:"association_owners"`
}

// Options converts the request into run options.
func (t TriggerRequest) Options() Options {
	return Options{
		Limit:             t.Limit,
		PropertyIDs:       t.PropertyIDs,
		UnitIDs:           t.UnitIDs,
		OwnerIDs:          t.OwnerIDs,
		DryRun:            t.DryRun,
		Force:             t.Force,
		CreateOnly:        t.CreateOnly,
		Full:              t.Full,
		Concurrency:       t.Concurrency,
		AssociationOwners: t.AssociationOwners,
	}
}

// Handler exposes sync triggers over HTTP.
type Handler struct {
	service *Service
	base    context.Context

	mu      sync.Mutex
	running map[Flow]string
	done    chan Flow
}

// NewHandler creates a handler. Runs it starts are bound to base, so
// cancelling base stops them cooperatively.
func NewHandler(base context.Context, service *Service) *Handler {
	if base == nil {
		base = context.Background()
	}
	return &Handler{service: service, base: base, running: make(map[Flow]string)}
}

// RegisterRoutes registers the sync routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/sync")
	group.Post("/:flow", h.HandleTrigger)
	group.Get("/", h.HandleRunning)
}

// HandleTrigger starts a batch flow in the background and answers with the
// run id. Only one run per flow may be active.
func (h *Handler) HandleTrigger(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	flow, err := ParseFlow(c.Params("flow"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}

	var req TriggerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	opts := req.Options()
	if _, err := opts.Mode(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	opts.RunID = uuid.NewString()

	if !h.claim(flow, opts.RunID) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  "a run of this flow is already in progress",
			"run_id": h.current(flow),
		})
	}

	l.Info("Sync triggered", zap.String("flow", string(flow)), zap.String("run_id", opts.RunID))
	go func() {
		defer h.release(flow)
		if _, err := h.start(flow, opts); err != nil {
			l.Error("Triggered sync failed", zap.String("flow", string(flow)), zap.Error(err))
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"flow":   flow,
		"run_id": opts.RunID,
	})
}

// HandleRunning lists the runs in progress by flow.
func (h *Handler) HandleRunning(c *fiber.Ctx) error {
	h.mu.Lock()
	out := make(map[string]string, len(h.running))
	for f, id := range h.running {
		out[string(f)] = id
	}
	h.mu.Unlock()
	return c.JSON(fiber.Map{"running": out})
}

func (h *Handler) start(flow Flow, opts Options) (*Stats, error) {
	switch flow {
	case FlowUnits:
		return h.service.SyncUnits(h.base, opts)
	case FlowLeases:
		return h.service.SyncLeases(h.base, opts)
	default:
		return h.service.SyncOwners(h.base, opts)
	}
}

func (h *Handler) claim(flow Flow, runID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.running[flow]; busy {
		return false
	}
	h.running[flow] = runID
	return true
}

func (h *Handler) current(flow Flow) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running[flow]
}

func (h *Handler) release(flow Flow) {
	h.mu.Lock()
	delete(h.running, flow)
	done := h.done
	h.mu.Unlock()
	if done != nil {
		done <- flow
	}
}

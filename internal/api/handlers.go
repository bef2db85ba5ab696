package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sms-retry-scheduler/internal/config"
	"sms-retry-scheduler/internal/scheduler"
)

// Handlers implements the admin façade: a thin HTTP/JSON layer over the
// scheduler Core. It owns no scheduling logic of its own -- every request
// maps directly onto Core methods, except GetConfig, which echoes config.
type Handlers struct {
	logger *zap.Logger
	core   *scheduler.Core
	cfg    *config.Config
}

func NewHandlers(logger *zap.Logger, core *scheduler.Core, cfg *config.Config) *Handlers {
	return &Handlers{logger: logger, core: core, cfg: cfg}
}

type sendRequest struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type sendBulkRequest struct {
	Content  string                 `json:"content"`
	Count    int                    `json:"count"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// StartScheduler handles POST /api/start.
func (h *Handlers) StartScheduler(c *fiber.Ctx) error {
	if err := h.core.Start(c.Context()); err != nil {
		h.logger.Error("failed to start scheduler", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to start scheduler"})
	}
	return c.JSON(fiber.Map{"status": "started"})
}

// StopScheduler handles POST /api/stop.
func (h *Handlers) StopScheduler(c *fiber.Ctx) error {
	h.core.Stop()
	return c.JSON(fiber.Map{"status": "stopped"})
}

// SendMessage handles POST /api/send: single-message intake.
func (h *Handlers) SendMessage(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content is required"})
	}

	msg := scheduler.Message{
		MessageID: uuid.New().String(),
		Content:   req.Content,
		Metadata:  req.Metadata,
	}

	state := h.core.NewMessage(c.Context(), msg)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message_id": state.MessageID,
		"status":     state.Status,
	})
}

// SendBulk handles POST /api/send-bulk: count independent NewMessage calls,
// each carrying a bulk_index field merged into its own metadata copy. A
// caller-supplied bulk_index in req.Metadata wins over the generated one,
// matching api.py's send_bulk metadata merge order.
func (h *Handlers) SendBulk(c *fiber.Ctx) error {
	var req sendBulkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content is required"})
	}
	if req.Count <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "count must be positive"})
	}

	messageIDs := make([]string, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		metadata := make(map[string]interface{}, len(req.Metadata)+1)
		metadata["bulk_index"] = i
		for k, v := range req.Metadata {
			metadata[k] = v
		}

		msg := scheduler.Message{
			MessageID: uuid.New().String(),
			Content:   req.Content,
			Metadata:  metadata,
		}
		state := h.core.NewMessage(c.Context(), msg)
		messageIDs = append(messageIDs, state.MessageID)
	}

	h.logger.Info("bulk send completed", zap.Int("count", req.Count))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message_ids": messageIDs})
}

// GetStats handles GET /api/stats.
func (h *Handlers) GetStats(c *fiber.Ctx) error {
	return c.JSON(h.core.GetStats())
}

// GetSuccess handles GET /api/success?limit=.
func (h *Handlers) GetSuccess(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	records, err := h.core.GetRecentSuccess(c.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load recent success records", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load success records"})
	}
	return c.JSON(records)
}

// GetFailed handles GET /api/failed?limit=.
func (h *Handlers) GetFailed(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	records, err := h.core.GetRecentFailed(c.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load recent failed records", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load failed records"})
	}
	return c.JSON(records)
}

// GetConfig handles GET /api/config: a read-only echo of the storage
// layout. There is no POST counterpart -- mutating live config through an
// HTTP call that silently does nothing until restart is not carried
// forward from the original implementation.
func (h *Handlers) GetConfig(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"bucket":         h.cfg.S3Bucket,
		"state_prefix":   h.cfg.StatePrefix,
		"success_prefix": h.cfg.SuccessPrefix,
		"failed_prefix":  h.cfg.FailedPrefix,
	})
}

// Health handles GET /health: liveness plus the scheduler's running flag.
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":            "ok",
		"time":              time.Now().Unix(),
		"scheduler_running": h.core.Running(),
	})
}

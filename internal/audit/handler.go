package audit

import (
	"errors"
	"fmt"

	"stockledger/internal/auth"
	"stockledger/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	UserID      string             `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	IsUndone    bool               `json:"is_undone"`
	UndoneBy    *string            `json:"undone_by"`
	UndoneAt    *string            `json:"undone_at"`
}

type Handler struct {
	svc     *Service
	deleter SnapshotDeleter
	log     *zap.Logger
}

func NewHandler(svc *Service, deleter SnapshotDeleter, log *zap.Logger) *Handler {
	return &Handler{svc: svc, deleter: deleter, log: log}
}

// GET /api/audit-logs?entity_type=stock_snapshot&entity_id=1&limit=50
func (h *Handler) ListAuditLogs() fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := ListFilter{EntityType: c.Query("entity_type"), Limit: 200}

		if s := c.Query("entity_id"); s != "" {
			var id uint
			if _, err := fmt.Sscan(s, &id); err != nil || id == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "entity_id geçersiz")
			}
			f.EntityID = id
		}
		if s := c.Query("limit"); s != "" {
			var limit int
			if _, err := fmt.Sscan(s, &limit); err != nil || limit <= 0 || limit > 1000 {
				return fiber.NewError(fiber.StatusBadRequest, "limit 1 ile 1000 arasında olmalı")
			}
			f.Limit = limit
		}

		logs, err := h.svc.List(c.UserContext(), f)
		if err != nil {
			return err
		}

		res := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			res = append(res, toResponse(l))
		}
		return c.JSON(res)
	}
}

// POST /api/audit-logs/:id/undo
func (h *Handler) UndoAuditLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var logID uint
		if _, err := fmt.Sscan(c.Params("id"), &logID); err != nil || logID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz log id")
		}

		userID, userName := auth.UserFromCtx(c)
		undoLog, err := h.svc.UndoLog(c.UserContext(), h.deleter, logID, userID, userName)
		switch {
		case errors.Is(err, ErrLogNotFound):
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		case errors.Is(err, ErrAlreadyUndone), errors.Is(err, ErrNotUndoable):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			return err
		}

		h.log.Info("audit log undone", zap.Uint("log_id", logID), zap.String("user", userID))
		return c.JSON(toResponse(undoLog))
	}
}

func toResponse(l models.AuditLog) AuditLogResponse {
	var undoneAt *string
	if l.UndoneAt != nil {
		s := l.UndoneAt.Format("2006-01-02 15:04:05")
		undoneAt = &s
	}
	return AuditLogResponse{
		ID:          l.ID,
		CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
		UserID:      l.UserID,
		UserName:    l.UserName,
		EntityType:  l.EntityType,
		EntityID:    l.EntityID,
		Action:      l.Action,
		Description: l.Description,
		IsUndone:    l.IsUndone,
		UndoneBy:    l.UndoneBy,
		UndoneAt:    undoneAt,
	}
}

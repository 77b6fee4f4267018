package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockledger/internal/audit"
	"stockledger/internal/auth"
	"stockledger/internal/ledger"
	"stockledger/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SnapshotResponse struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Unit        string  `json:"unit"`
	Seq         uint    `json:"seq"`
	PriorStock  float64 `json:"priorStock"`
	Replenished float64 `json:"replenished"`
	Consumed    float64 `json:"consumed"`
	OnHand      float64 `json:"onHand"`
	Category    string  `json:"category"`
	RecordedAt  string  `json:"recordedAt"`
}

type CreateProductRequest struct {
	Name        string          `json:"name"`
	Unit        string          `json:"unit"`
	Replenished decimal.Decimal `json:"replenished"`
	Category    string          `json:"category"` // opsiyonel, boşsa sınıflandırıcı
}

type UpdateStockRequest struct {
	Replenished decimal.Decimal `json:"replenished"`
	Consumed    decimal.Decimal `json:"consumed"`
}

type UsageResponse struct {
	Name        string  `json:"name"`
	Unit        string  `json:"unit"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Start       float64 `json:"start"`
	Replenished float64 `json:"replenished"`
	Consumed    float64 `json:"consumed"`
	End         float64 `json:"end"`
	Snapshots   int     `json:"snapshots"`
}

type Handler struct {
	ledger     *ledger.Ledger
	audit      *audit.Service // nil ise audit yazılmaz
	categories []string
	log        *zap.Logger
}

func NewHandler(l *ledger.Ledger, auditSvc *audit.Service, categories []string, log *zap.Logger) *Handler {
	return &Handler{ledger: l, audit: auditSvc, categories: categories, log: log}
}

// POST /api/products
func (h *Handler) CreateProduct() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		key := models.ProductKey{Name: body.Name, Unit: body.Unit}
		snap, err := h.ledger.RecordInitialStock(c.UserContext(), key, body.Replenished, body.Category)
		if err != nil {
			return toHTTPError(err)
		}

		h.writeAudit(c, models.AuditActionCreate, snap,
			fmt.Sprintf("İlk stok: %s - %s %s", snap.Name, snap.OnHand.String(), snap.Unit))

		return c.Status(fiber.StatusCreated).JSON(toSnapshotResponse(snap))
	}
}

// PUT /api/products/:name/:unit
func (h *Handler) UpdateStock() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body UpdateStockRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		snap, err := h.ledger.RecordConsumptionAndReplenishment(c.UserContext(), keyFromParams(c), body.Replenished, body.Consumed)
		if err != nil {
			return toHTTPError(err)
		}

		h.writeAudit(c, models.AuditActionCreate, snap,
			fmt.Sprintf("Stok hareketi: %s +%s -%s = %s %s",
				snap.Name, snap.Replenished.String(), snap.Consumed.String(), snap.OnHand.String(), snap.Unit))

		return c.JSON(toSnapshotResponse(snap))
	}
}

// GET /api/products
func (h *Handler) ListProducts() fiber.Handler {
	return func(c *fiber.Ctx) error {
		snaps, err := h.ledger.Products(c.UserContext(), "")
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(toSnapshotResponses(snaps))
	}
}

// GET /api/products/:name
// Aynı isimdeki tüm birimlerin güncel durumu
func (h *Handler) GetProduct() fiber.Handler {
	return func(c *fiber.Ctx) error {
		snaps, err := h.ledger.Products(c.UserContext(), c.Params("name"))
		if err != nil {
			return toHTTPError(err)
		}
		if len(snaps) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Ürün bulunamadı")
		}
		return c.JSON(toSnapshotResponses(snaps))
	}
}

// GET /api/products/:name/:unit
func (h *Handler) GetCurrentState() fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := h.ledger.CurrentState(c.UserContext(), keyFromParams(c))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(toSnapshotResponse(snap))
	}
}

// GET /api/products/:name/:unit/history?order=desc&limit=20
func (h *Handler) GetHistory() fiber.Handler {
	return func(c *fiber.Ctx) error {
		order, err := ledger.ParseOrder(c.Query("order"))
		if err != nil {
			return toHTTPError(err)
		}
		limit := 0
		if s := c.Query("limit"); s != "" {
			if _, err := fmt.Sscan(s, &limit); err != nil || limit <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "limit pozitif bir sayı olmalı")
			}
		}

		res := make([]SnapshotResponse, 0)
		for snap, err := range h.ledger.History(c.UserContext(), keyFromParams(c), order) {
			if err != nil {
				return toHTTPError(err)
			}
			res = append(res, toSnapshotResponse(snap))
			if limit > 0 && len(res) == limit {
				break
			}
		}
		if len(res) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Ürün bulunamadı")
		}
		return c.JSON(res)
	}
}

// GET /api/products/:name/:unit/usage?from=2025-12-01&to=2026-01-01
// Başlangıç + Gelen - Harcanan = Son ([from, to) aralığı)
func (h *Handler) GetUsage() fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, err := time.Parse("2006-01-02", c.Query("from"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "from formatı 'YYYY-MM-DD' olmalı")
		}
		to, err := time.Parse("2006-01-02", c.Query("to"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "to formatı 'YYYY-MM-DD' olmalı")
		}

		u, err := h.ledger.Usage(c.UserContext(), keyFromParams(c), from, to)
		if err != nil {
			return toHTTPError(err)
		}

		return c.JSON(UsageResponse{
			Name:        u.Key.Name,
			Unit:        u.Key.Unit,
			From:        u.From.Format("2006-01-02"),
			To:          u.To.Format("2006-01-02"),
			Start:       u.Start.InexactFloat64(),
			Replenished: u.Replenished.InexactFloat64(),
			Consumed:    u.Consumed.InexactFloat64(),
			End:         u.End.InexactFloat64(),
			Snapshots:   u.Snapshots,
		})
	}
}

// DELETE /api/products/:id
// Tek bir stok kaydını siler, diğer kayıtlar yeniden hesaplanmaz.
func (h *Handler) DeleteSnapshot() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id uint
		if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz kayıt id")
		}

		snap, err := h.ledger.DeleteSnapshot(c.UserContext(), id)
		if err != nil {
			return toHTTPError(err)
		}

		h.writeAudit(c, models.AuditActionDelete, snap,
			fmt.Sprintf("Stok kaydı silindi: %s #%d", snap.Key().String(), snap.Seq))

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/units
func (h *Handler) ListUnits() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(ledger.Units)
	}
}

// GET /api/categories
func (h *Handler) ListCategories() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(h.categories)
	}
}

func (h *Handler) writeAudit(c *fiber.Ctx, action models.AuditAction, snap models.StockSnapshot, desc string) {
	if h.audit == nil {
		return
	}
	userID, userName := auth.UserFromCtx(c)
	opts := audit.LogOptions{
		UserID:      userID,
		UserName:    userName,
		EntityType:  models.EntityStockSnapshot,
		EntityID:    snap.ID,
		Action:      action,
		Description: desc,
	}
	if action == models.AuditActionDelete {
		opts.Before = snap
	} else {
		opts.After = snap
	}
	// audit hatası isteği başarısız yapmaz
	if err := h.audit.WriteLog(context.WithoutCancel(c.UserContext()), opts); err != nil {
		h.log.Warn("audit log yazılamadı", zap.Error(err), zap.Uint("snapshot_id", snap.ID))
	}
}

func keyFromParams(c *fiber.Ctx) models.ProductKey {
	return models.ProductKey{Name: c.Params("name"), Unit: c.Params("unit")}
}

func toSnapshotResponse(s models.StockSnapshot) SnapshotResponse {
	return SnapshotResponse{
		ID:          s.ID,
		Name:        s.Name,
		Unit:        s.Unit,
		Seq:         s.Seq,
		PriorStock:  s.PriorStock.InexactFloat64(),
		Replenished: s.Replenished.InexactFloat64(),
		Consumed:    s.Consumed.InexactFloat64(),
		OnHand:      s.OnHand.InexactFloat64(),
		Category:    s.Category,
		RecordedAt:  s.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toSnapshotResponses(snaps []models.StockSnapshot) []SnapshotResponse {
	res := make([]SnapshotResponse, 0, len(snaps))
	for _, s := range snaps {
		res = append(res, toSnapshotResponse(s))
	}
	return res
}

// toHTTPError maps ledger errors to fiber errors. Unknown errors pass through
// and end up as 500 in the app error handler.
func toHTTPError(err error) error {
	var insufficient *ledger.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return fiber.NewError(fiber.StatusUnprocessableEntity, insufficient.Error())
	case errors.Is(err, ledger.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNoChange):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrDuplicateProduct):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrProductNotFound), errors.Is(err, ledger.ErrSnapshotNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrConcurrentModification):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return err
}

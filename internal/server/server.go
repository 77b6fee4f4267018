// Package server assembles the fiber application: error handling, middleware and routes.
package server

import (
	"strings"
	"time"

	"stockledger/internal/audit"
	"stockledger/internal/auth"
	"stockledger/internal/inventory"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

type Deps struct {
	Inventory   *inventory.Handler
	Audit       *audit.Handler // nil ise audit route'ları kapalı
	JWTSecret   string         // boşsa auth kapalı
	CORSOrigins string
	Logger      *zap.Logger
}

func New(d Deps) *fiber.App {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		UnescapePath:          true,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Error("unexpected error",
				zap.Error(err),
				zap.String("path", c.Path()),
				zap.Any("request_id", c.Locals(requestIDHeader)))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Beklenmeyen sunucu hatası",
			})
		},
	})

	app.Use(recover.New())
	app.Use(requestID())
	app.Use(accessLog(log))

	corsOrigins := strings.Split(d.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-Id",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// auth kapalıysa admin kontrolü de yapılmaz
	adminOnly := func(c *fiber.Ctx) error { return c.Next() }
	if d.JWTSecret != "" {
		api.Use(auth.JWTMiddleware(d.JWTSecret))
		adminOnly = auth.RequireRole(auth.RoleAdmin)
	}

	inv := d.Inventory
	api.Get("/units", inv.ListUnits())
	api.Get("/categories", inv.ListCategories())

	// Stok defteri
	api.Post("/products", inv.CreateProduct())
	api.Get("/products", inv.ListProducts())
	api.Get("/products/:name", inv.GetProduct())
	api.Get("/products/:name/:unit", inv.GetCurrentState())
	api.Put("/products/:name/:unit", inv.UpdateStock())
	api.Get("/products/:name/:unit/history", inv.GetHistory())
	api.Get("/products/:name/:unit/usage", inv.GetUsage())
	api.Delete("/products/:id", adminOnly, inv.DeleteSnapshot())

	if d.Audit != nil {
		api.Get("/audit-logs", d.Audit.ListAuditLogs())
		api.Post("/audit-logs/:id/undo", adminOnly, d.Audit.UndoAuditLog())
	}

	return app
}

func requestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Locals(requestIDHeader, id)
		return c.Next()
	}
}

func accessLog(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		log.Info("http_request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
			zap.Any("request_id", c.Locals(requestIDHeader)))
		return err
	}
}

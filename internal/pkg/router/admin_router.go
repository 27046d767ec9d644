package router

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/pnpbots/pnptv-payments/app/controllers"
	"github.com/pnpbots/pnptv-payments/internal/pkg/env"
)

type AdminRouter struct {
}

// InstallRouter registers the operator API behind a bearer token.
func (h AdminRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api/v1/admin", limiter.New(), adminAuthMiddleware)

	api.Post("/payments/:id/recover", controllers.HandleAdminRecoverPayment)
	api.Get("/payments/:id/events", controllers.HandleAdminPaymentEvents)
	api.Get("/stats", controllers.HandleAdminPaymentStats)
}

func NewAdminRouter() *AdminRouter {
	return &AdminRouter{}
}

func adminAuthMiddleware(c *fiber.Ctx) error {
	token := env.GetEnv("ADMIN_API_TOKEN", "")
	if token == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "admin_api_disabled"})
	}

	got := strings.TrimPrefix(strings.TrimSpace(c.Get(fiber.HeaderAuthorization)), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.Next()
}

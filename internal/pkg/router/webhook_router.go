package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pnpbots/pnptv-payments/app/controllers"
)

type WebhookRouter struct {
}

// InstallRouter registers the provider-facing webhook endpoints. These are
// unauthenticated HTTP-wise; authenticity comes from the payload signatures.
func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	hooks := app.Group("/webhooks")
	hooks.Post("/epayco", controllers.HandleEpaycoWebhook)
	hooks.Post("/daimo", controllers.HandleDaimoWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}

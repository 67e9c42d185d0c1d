package router

import (
	"github.com/atlasworks/payflow/app/controllers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	api.Post("/payments/initiate", controllers.HandleInitiatePayment)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

// WebhookRouter registers gateway callback routes outside the API limiter
// group: throttling gateway redeliveries only delays reconciliation.
type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/api/webhook/paymob", controllers.HandlePaymobWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}

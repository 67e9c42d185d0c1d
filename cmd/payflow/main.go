package main

import (
	"fmt"
	"log"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/atlasworks/payflow/internal/pkg/cache"
	"github.com/atlasworks/payflow/internal/pkg/database"
	"github.com/atlasworks/payflow/internal/pkg/env"
	"github.com/atlasworks/payflow/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "3000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		AppName: "payflow",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// security headers and CORS
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE",
		AllowHeaders: "Content-Type, Authorization",
	}))

	app.Get("/healthcheck", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI (dev only)
	if env.IsDev() {
		openAPICfg := swagger.Config{
			BasePath: "/docs/api/",
			FilePath: "./public/docs/v1/openapi.yml",
			Path:     "v1",
		}
		app.Use(swagger.New(openAPICfg))
	}

	// ROUTER
	router.InstallRouter(app)

	// JSON 404 for everything unrouted
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Not Found",
		})
	})

	return app
}

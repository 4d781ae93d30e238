package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/orchestra-mcp/presence/src/service"
)

func newApp(svc *service.Service) *fiber.App {
	app := fiber.New(fiber.Config{AppName: "presence"})
	app.Use(recoverer.New())

	app.Get("/health", func(c fiber.Ctx) error {
		return c.SendString("Healthy")
	})
	app.Get("/ready", func(c fiber.Ctx) error {
		if !svc.Ready() {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Not Ready")
		}
		return c.SendString("Ready")
	})
	app.Get("/ws/info", func(c fiber.Ctx) error {
		return c.JSON(svc.Info())
	})
	app.Get("/ws/users", func(c fiber.Ctx) error {
		return c.JSON(svc.Users())
	})
	app.Get("/ws/rooms", func(c fiber.Ctx) error {
		return c.JSON(svc.Rooms())
	})
	app.Get("/ws/clients", func(c fiber.Ctx) error {
		return c.JSON(svc.Clients())
	})
	app.Get("/ws/clients/:id", func(c fiber.Ctx) error {
		info, err := svc.GetClientInfo(c.Params("id"))
		if errors.Is(err, service.ErrClientNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   "not_found",
				"message": err.Error(),
			})
		}
		if err != nil {
			return err
		}
		return c.JSON(info)
	})
	return app
}

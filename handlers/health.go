package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tenantcore/configvault/database"
)

// HandleCheckHealth reports process and database liveness
func HandleCheckHealth(c *fiber.Ctx, store database.Storage) error {
	if err := store.HealthCheck(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "database": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

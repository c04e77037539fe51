package settings

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tenantcore/configvault/services"
	"github.com/tenantcore/configvault/utils/middleware"
	"github.com/tenantcore/configvault/utils/response"
	"gorm.io/gorm"
)

// SettingsHandler exposes the system configuration layer
type SettingsHandler struct {
	db            *gorm.DB
	configService *services.SystemConfigService
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(db *gorm.DB, configService *services.SystemConfigService) *SettingsHandler {
	return &SettingsHandler{
		db:            db,
		configService: configService,
	}
}

// GetAll handles GET /api/v1/settings
func (h *SettingsHandler) GetAll(c *fiber.Ctx) error {
	values, source := h.configService.GetAll(c.Context())
	return response.Success(c, fiber.Map{
		"values": values,
		"source": source,
	})
}

// Get handles GET /api/v1/settings/:key
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return response.BadRequest(c, "Setting key is required")
	}

	value, source := h.configService.Get(c.Context(), key)
	return response.Success(c, fiber.Map{
		"key":    key,
		"value":  value,
		"source": source,
	})
}

// Update handles PUT /api/v1/settings/:key
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return response.BadRequest(c, "Setting key is required")
	}

	var req struct {
		Value       interface{} `json:"value"`
		Description string      `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Value == nil {
		return response.BadRequest(c, "Setting value is required")
	}

	actor := middleware.GetActor(c)
	if err := h.configService.Set(c.Context(), key, req.Value, actor, req.Description); err != nil {
		return response.InternalServerError(c, "Failed to save setting: "+err.Error())
	}

	value, source := h.configService.Get(c.Context(), key)
	return response.SuccessWithMessage(c, "Setting saved", fiber.Map{
		"key":    key,
		"value":  value,
		"source": source,
	})
}

// Delete handles DELETE /api/v1/settings/:key and reverts the key to its
// hardcoded default
func (h *SettingsHandler) Delete(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return response.BadRequest(c, "Setting key is required")
	}

	if err := h.configService.Delete(c.Context(), key); err != nil {
		return response.InternalServerError(c, "Failed to delete setting: "+err.Error())
	}

	value, source := h.configService.Get(c.Context(), key)
	return response.SuccessWithMessage(c, "Setting reverted to default", fiber.Map{
		"key":    key,
		"value":  value,
		"source": source,
	})
}

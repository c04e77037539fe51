package project

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/tenantcore/configvault/model"
	"github.com/tenantcore/configvault/services"
	"github.com/tenantcore/configvault/utils/middleware"
	"github.com/tenantcore/configvault/utils/response"
	"github.com/tenantcore/configvault/utils/validation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProjectHandler handles tenant project requests
type ProjectHandler struct {
	db               *gorm.DB
	effectiveService *services.EffectiveConfigService
	validator        *validation.Validator
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(db *gorm.DB, effectiveService *services.EffectiveConfigService) *ProjectHandler {
	return &ProjectHandler{
		db:               db,
		effectiveService: effectiveService,
		validator:        validation.NewValidator(),
	}
}

func parseProjectID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, errors.New("invalid project ID")
	}
	return uint(id), nil
}

// Create handles POST /api/v1/projects
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req struct {
		Name        string `json:"name" validate:"required,min=1,max=255"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	project := model.Project{
		Name:        validation.SanitizeString(req.Name),
		Description: req.Description,
		CreatedBy:   middleware.GetActor(c),
	}
	if err := h.db.WithContext(c.Context()).Create(&project).Error; err != nil {
		return response.InternalServerError(c, "Failed to create project: "+err.Error())
	}

	return response.Created(c, project)
}

// List handles GET /api/v1/projects
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	var projects []model.Project
	if err := h.db.WithContext(c.Context()).Order("name ASC").Find(&projects).Error; err != nil {
		return response.InternalServerError(c, "Failed to list projects: "+err.Error())
	}
	return response.Success(c, projects)
}

// Get handles GET /api/v1/projects/:id
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	projectID, err := parseProjectID(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	var project model.Project
	if err := h.db.WithContext(c.Context()).First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.InternalServerError(c, "Failed to load project: "+err.Error())
	}

	return response.Success(c, project)
}

// UpdateOverrides handles PUT /api/v1/projects/:id/config-overrides and
// replaces the project's override document wholesale
func (h *ProjectHandler) UpdateOverrides(c *fiber.Ctx) error {
	projectID, err := parseProjectID(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	var req struct {
		Overrides map[string]interface{} `json:"overrides"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	raw, err := json.Marshal(req.Overrides)
	if err != nil {
		return response.BadRequest(c, "Overrides must be a JSON object")
	}

	result := h.db.WithContext(c.Context()).Model(&model.Project{}).
		Where("id = ?", projectID).
		Update("config_overrides", datatypes.JSON(raw))
	if result.Error != nil {
		return response.InternalServerError(c, "Failed to update overrides: "+result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return response.NotFound(c, "Project not found")
	}

	return response.SuccessWithMessage(c, "Overrides updated", nil)
}

// EffectiveConfig handles GET /api/v1/projects/:id/effective-config and
// returns the merged view the project actually operates under
func (h *ProjectHandler) EffectiveConfig(c *fiber.Ctx) error {
	projectID, err := parseProjectID(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	config, err := h.effectiveService.ResolveProject(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.InternalServerError(c, "Failed to resolve configuration: "+err.Error())
	}

	return response.Success(c, config)
}

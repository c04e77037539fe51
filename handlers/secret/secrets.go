package secret

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/tenantcore/configvault/model"
	"github.com/tenantcore/configvault/services"
	"github.com/tenantcore/configvault/utils/middleware"
	"github.com/tenantcore/configvault/utils/response"
	"github.com/tenantcore/configvault/utils/validation"
	"gorm.io/gorm"
)

// SecretHandler handles secrets vault requests
type SecretHandler struct {
	db                   *gorm.DB
	secretService        *services.SecretService
	validator            *validation.Validator
	bruteForceProtection *middleware.BruteForceProtection
}

// NewSecretHandler creates a new secret handler. bruteForceProtection may be
// nil when Redis is unavailable; plaintext reads then go unthrottled.
func NewSecretHandler(db *gorm.DB, secretService *services.SecretService, bruteForceProtection *middleware.BruteForceProtection) *SecretHandler {
	return &SecretHandler{
		db:                   db,
		secretService:        secretService,
		validator:            validation.NewValidator(),
		bruteForceProtection: bruteForceProtection,
	}
}

// serviceError maps vault sentinel errors onto the response envelope
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrSecretNotFound):
		return response.NotFound(c, "Secret not found")
	case errors.Is(err, services.ErrSecretInvalid):
		return response.Error(c, fiber.StatusConflict, "Secret is marked invalid", "SECRET_INVALID")
	case errors.Is(err, services.ErrSecretNameRequired),
		errors.Is(err, services.ErrSecretValueEmpty),
		errors.Is(err, services.ErrInvalidScope),
		errors.Is(err, services.ErrProjectIDRequired),
		errors.Is(err, services.ErrProjectIDForbidden):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrProviderKeyNotConfigured):
		return response.NotFound(c, err.Error())
	default:
		return response.InternalServerError(c, err.Error())
	}
}

// parseIdentity extracts (scope, name, project_id) from the route
func parseIdentity(c *fiber.Ctx) (model.SecretScope, string, *uint, error) {
	scope := model.SecretScope(c.Params("scope"))
	name := c.Params("name")

	var projectID *uint
	if raw := c.Query("project_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return "", "", nil, errors.New("invalid project_id")
		}
		uid := uint(id)
		projectID = &uid
	}

	return scope, name, projectID, nil
}

// Set handles POST /api/v1/secrets
func (h *SecretHandler) Set(c *fiber.Ctx) error {
	var req struct {
		Scope     string `json:"scope" validate:"required,oneof=system project"`
		ProjectID *uint  `json:"project_id"`
		Name      string `json:"name" validate:"required,min=1,max=100"`
		Value     string `json:"value" validate:"required"`
		Provider  string `json:"provider"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	secret, err := h.secretService.SetSecret(c.Context(), services.SetSecretInput{
		Scope:     model.SecretScope(req.Scope),
		ProjectID: req.ProjectID,
		Name:      validation.SanitizeString(req.Name),
		Value:     req.Value,
		Provider:  req.Provider,
		Actor:     middleware.GetActor(c),
	})
	if err != nil {
		return serviceError(c, err)
	}

	return response.Created(c, secret)
}

// List handles GET /api/v1/secrets/:scope
func (h *SecretHandler) List(c *fiber.Ctx) error {
	scope := model.SecretScope(c.Params("scope"))

	var projectID *uint
	if raw := c.Query("project_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return response.BadRequest(c, "Invalid project_id")
		}
		uid := uint(id)
		projectID = &uid
	}

	secrets, err := h.secretService.ListSecrets(c.Context(), scope, projectID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Success(c, secrets)
}

// GetInfo handles GET /api/v1/secrets/:scope/:name — metadata only, never the
// plaintext
func (h *SecretHandler) GetInfo(c *fiber.Ctx) error {
	scope, name, projectID, err := parseIdentity(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	secret, err := h.secretService.GetSecretInfo(c.Context(), scope, name, projectID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Success(c, secret)
}

// Reveal handles GET /api/v1/secrets/:scope/:name/value and returns the
// decrypted plaintext. Admin only.
func (h *SecretHandler) Reveal(c *fiber.Ctx) error {
	scope, name, projectID, err := parseIdentity(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	ip := c.IP()

	value, provider, err := h.secretService.GetSecret(c.Context(), scope, name, projectID)
	if err != nil {
		// Record failed attempt even if the secret does not exist
		if h.bruteForceProtection != nil {
			h.bruteForceProtection.RecordFailedAttempt(c, ip, name)
		}
		return serviceError(c, err)
	}

	// Clear failed attempts on successful reveal
	if h.bruteForceProtection != nil {
		h.bruteForceProtection.RecordSuccessfulAttempt(c, ip)
	}

	return response.Success(c, fiber.Map{
		"name":     name,
		"value":    value,
		"provider": provider,
	})
}

// Delete handles DELETE /api/v1/secrets/:scope/:name
func (h *SecretHandler) Delete(c *fiber.Ctx) error {
	scope, name, projectID, err := parseIdentity(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.secretService.DeleteSecret(c.Context(), scope, name, projectID); err != nil {
		return serviceError(c, err)
	}

	return response.SuccessWithMessage(c, "Secret deleted", nil)
}

// Invalidate handles POST /api/v1/secrets/:scope/:name/invalidate, used after
// an external consumer reported an authentication failure with this credential
func (h *SecretHandler) Invalidate(c *fiber.Ctx) error {
	scope, name, projectID, err := parseIdentity(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.secretService.MarkSecretInvalid(c.Context(), scope, name, projectID); err != nil {
		return serviceError(c, err)
	}

	return response.SuccessWithMessage(c, "Secret marked invalid", nil)
}

// Providers handles GET /api/v1/providers and reports the credential state of
// every known provider
func (h *SecretHandler) Providers(c *fiber.Ctx) error {
	var projectID *uint
	if raw := c.Query("project_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return response.BadRequest(c, "Invalid project_id")
		}
		uid := uint(id)
		projectID = &uid
	}

	statuses, err := h.secretService.GetConfiguredProviders(c.Context(), projectID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Success(c, statuses)
}

// ProviderKey handles GET /api/v1/providers/:provider/key — the fallback-chain
// resolver for server-side callers about to contact the provider. Admin only.
func (h *SecretHandler) ProviderKey(c *fiber.Ctx) error {
	provider := c.Params("provider")

	var projectID *uint
	if raw := c.Query("project_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return response.BadRequest(c, "Invalid project_id")
		}
		uid := uint(id)
		projectID = &uid
	}

	ip := c.IP()

	value, source, err := h.secretService.GetProviderAPIKey(c.Context(), provider, projectID)
	if err != nil {
		// Record failed attempt even if no key is configured
		if h.bruteForceProtection != nil {
			h.bruteForceProtection.RecordFailedAttempt(c, ip, services.ProviderKeyName(provider))
		}
		return serviceError(c, err)
	}

	// Clear failed attempts on successful resolution
	if h.bruteForceProtection != nil {
		h.bruteForceProtection.RecordSuccessfulAttempt(c, ip)
	}

	return response.Success(c, fiber.Map{
		"provider": provider,
		"value":    value,
		"source":   source,
	})
}

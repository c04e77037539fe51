package router

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tenantcore/configvault/config"
	"github.com/tenantcore/configvault/database"
	"github.com/tenantcore/configvault/handlers"
	project_handlers "github.com/tenantcore/configvault/handlers/project"
	secret_handlers "github.com/tenantcore/configvault/handlers/secret"
	settings_handlers "github.com/tenantcore/configvault/handlers/settings"
	"github.com/tenantcore/configvault/services"
	"github.com/tenantcore/configvault/utils/auth"
	"github.com/tenantcore/configvault/utils/cache"
	"github.com/tenantcore/configvault/utils/crypto"
	"github.com/tenantcore/configvault/utils/middleware"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, store database.Storage) {
	getEnv, err := config.Get()
	if err != nil {
		log.Fatal("Failed to load environment: ", err)
	}

	if getEnv.JWT_SECRET == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := getEnv.JWT_ISSUER
	if jwtIssuer == "" {
		jwtIssuer = "configvault-api"
	}

	// Initialize JWT manager with config
	jwtConfig := auth.JWTConfig{
		Secret:        getEnv.JWT_SECRET,
		Expiry:        24 * time.Hour,     // Access token expires in 24 hours
		RefreshExpiry: 7 * 24 * time.Hour, // Refresh token expires in 7 days
		Issuer:        jwtIssuer,
	}
	jwtManager := auth.NewJWTManager(jwtConfig)

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	// Initialize Redis cache for brute force protection
	redisURL := getEnv.REDIS_URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Brute force protection will be disabled.", err)
	}

	// Initialize brute force protection
	var bruteForceProtection *middleware.BruteForceProtection
	if redisCache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(redisCache)
	}

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)

	// Encryption primitive for the secrets vault
	cipher := crypto.NewKeyedCipher(getEnv.SECRETS_ENCRYPTION_KEY, []byte(getEnv.SECRETS_ENCRYPTION_SALT))

	// Core services
	configService := services.NewSystemConfigService(db)
	effectiveService := services.NewEffectiveConfigService(db, configService)
	secretService := services.NewSecretService(db, cipher)

	// Handlers
	settingsHandler := settings_handlers.NewSettingsHandler(db, configService)
	secretHandler := secret_handlers.NewSecretHandler(db, secretService, bruteForceProtection)
	projectHandler := project_handlers.NewProjectHandler(db, effectiveService)

	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}
	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 300,
		RateLimitWindow:   time.Minute,
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return handlers.HandleCheckHealth(c, store)
	})

	v1 := app.Group("/api/v1", authMiddleware.Required())

	// System settings
	settingsGroup := v1.Group("/settings")
	settingsGroup.Get("/", settingsHandler.GetAll)
	settingsGroup.Get("/:key", settingsHandler.Get)
	settingsGroup.Put("/:key", authMiddleware.RequireRole("admin"), settingsHandler.Update)
	settingsGroup.Delete("/:key", authMiddleware.RequireRole("admin"), settingsHandler.Delete)

	// Projects and effective configuration
	projectsGroup := v1.Group("/projects")
	projectsGroup.Post("/", projectHandler.Create)
	projectsGroup.Get("/", projectHandler.List)
	projectsGroup.Get("/:id", projectHandler.Get)
	projectsGroup.Put("/:id/config-overrides", projectHandler.UpdateOverrides)
	projectsGroup.Get("/:id/effective-config", projectHandler.EffectiveConfig)

	// Secrets vault; reads of plaintext sit behind brute force protection
	secretsGroup := v1.Group("/secrets")
	if bruteForceProtection != nil {
		secretsGroup.Use(bruteForceProtection.CheckLockout())
	}
	secretsGroup.Post("/", secretHandler.Set)
	secretsGroup.Get("/:scope", secretHandler.List)
	secretsGroup.Get("/:scope/:name", secretHandler.GetInfo)
	secretsGroup.Get("/:scope/:name/value", authMiddleware.RequireRole("admin"), secretHandler.Reveal)
	secretsGroup.Post("/:scope/:name/invalidate", secretHandler.Invalidate)
	secretsGroup.Delete("/:scope/:name", authMiddleware.RequireRole("admin"), secretHandler.Delete)

	// Provider credential status and fallback-chain resolution
	providersGroup := v1.Group("/providers")
	if bruteForceProtection != nil {
		providersGroup.Use(bruteForceProtection.CheckLockout())
	}
	providersGroup.Get("/", secretHandler.Providers)
	providersGroup.Get("/:provider/key", authMiddleware.RequireRole("admin"), secretHandler.ProviderKey)
}

package bootstrap

import (
	"strings"

	adapterhttp "mailsync_server/adapter/in/http"
	"mailsync_server/config"
	"mailsync_server/core/port/out"
	"mailsync_server/infra/middleware"
	"mailsync_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func NewAPI(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,

		// go-json: faster JSON serialization than encoding/json
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 10 * 1024 * 1024, // 10MB
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// CORS. Credentials require explicit origins.
	allowOrigins := cfg.AllowedOrigins
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health checks (no auth required)
	var classifierProbe adapterhttp.HealthChecker
	if deps.ClassifyService != nil {
		classifierProbe = deps.ClassifyService
	}
	healthHandler := adapterhttp.NewHealthHandler(deps.DB, deps.Redis, deps.MongoDB, classifierProbe)
	healthHandler.Register(app)

	// Authenticated API surface
	api := app.Group("/api/v1", middleware.JWTAuth(cfg.JWTSecret))

	var producer out.SyncJobProducer
	if deps.Producer != nil {
		producer = deps.Producer
	}

	adapterhttp.NewAnalyticsHandler(deps.AnalyticsEngine).Register(api)
	adapterhttp.NewAccountHandler(deps.AccountRepo, deps.MessageRepo, producer).Register(api)
	adapterhttp.NewTagHandler(deps.TagRepo).Register(api)

	logger.Info("API routes registered (origins: %s)", firstNonEmpty(allowOrigins, "none"))
	return app
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

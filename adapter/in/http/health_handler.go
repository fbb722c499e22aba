package http

import (
	"context"
	"time"

	"mailsync_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// HealthChecker is anything with a liveness probe; the classifier
// backend satisfies it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db         *pgxpool.Pool
	redis      *redis.Client
	mongo      *mongo.Client
	classifier HealthChecker
}

func NewHealthHandler(db *pgxpool.Pool, redisClient *redis.Client, mongoClient *mongo.Client, classifier HealthChecker) *HealthHandler {
	return &HealthHandler{
		db:         db,
		redis:      redisClient,
		mongo:      mongoClient,
		classifier: classifier,
	}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	app.Get("/metrics/pools", h.PoolStats)
}

// PoolStats exposes connection pool statistics for operations.
func (h *HealthHandler) PoolStats(c *fiber.Ctx) error {
	stats := metrics.GetAllPoolStats()
	out := make(map[string]any, len(stats))
	for name, s := range stats {
		out[name] = s.ToMap()
	}
	return c.JSON(out)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	// Check PostgreSQL
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["postgres"] = "healthy"
		}
	} else {
		checks["postgres"] = "not configured"
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	// Check MongoDB
	if h.mongo != nil {
		if err := h.mongo.Ping(ctx, readpref.Primary()); err != nil {
			checks["mongodb"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["mongodb"] = "healthy"
		}
	} else {
		checks["mongodb"] = "not configured"
	}

	// Check classifier backend. A down classifier degrades sync but does
	// not stop it, so it never flips readiness.
	if h.classifier != nil {
		if err := h.classifier.Ping(ctx); err != nil {
			checks["classifier"] = "unhealthy: " + err.Error()
		} else {
			checks["classifier"] = "healthy"
		}
	} else {
		checks["classifier"] = "not configured"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

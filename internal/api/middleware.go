package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"sms-retry-scheduler/internal/observability"
	"sms-retry-scheduler/internal/rate"
)

// SetupMiddleware installs panic recovery, request IDs, CORS, and
// structured request logging/metrics ahead of the route handlers.
func SetupMiddleware(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics) {
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Admin-Key,X-Client-ID",
	}))

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)
		status := c.Response().StatusCode()

		logger.Info("http_request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("request_id", c.Get("X-Request-ID")),
		)

		if metrics != nil {
			statusStr := fmt.Sprintf("%d", status)
			metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), c.Path(), statusStr).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(c.Method(), c.Path()).Observe(duration.Seconds())
		}

		return err
	})
}

// rateLimited gates an intake route behind the per-caller token bucket.
// The caller identity is the X-Client-ID header, or "anonymous" when the
// request doesn't supply one.
func rateLimited(limiter *rate.Limiter, logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := c.Get("X-Client-ID")
		if caller == "" {
			caller = "anonymous"
		}

		allowed, retryAfter, err := limiter.Allow(c.Context(), caller)
		if err != nil {
			logger.Error("rate limiting error", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "rate limiting error"})
		}
		if !allowed {
			if metrics != nil {
				metrics.RateLimitedTotal.Inc()
			}
			c.Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":               "rate limit exceeded",
				"retry_after_seconds": int(retryAfter.Seconds()),
			})
		}
		return c.Next()
	}
}

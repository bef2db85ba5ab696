package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sms-retry-scheduler/internal/adminauth"
	"sms-retry-scheduler/internal/observability"
	"sms-retry-scheduler/internal/rate"
)

// SetupRoutes wires the admin façade: health and metrics unauthenticated,
// every route under /api (read-only ones included) gated by the admin key,
// and the intake routes additionally gated by the rate limiter.
func SetupRoutes(
	app *fiber.App,
	logger *zap.Logger,
	metrics *observability.Metrics,
	handlers *Handlers,
	auth *adminauth.Service,
	limiter *rate.Limiter,
) {
	SetupMiddleware(app, logger, metrics)

	app.Get("/health", handlers.Health)
	app.Get("/metrics", adaptPrometheusHandler())

	apiGroup := app.Group("/api", auth.RequireAdminKey())

	apiGroup.Post("/start", handlers.StartScheduler)
	apiGroup.Post("/stop", handlers.StopScheduler)
	apiGroup.Post("/send", rateLimited(limiter, logger, metrics), handlers.SendMessage)
	apiGroup.Post("/send-bulk", rateLimited(limiter, logger, metrics), handlers.SendBulk)
	apiGroup.Get("/stats", handlers.GetStats)
	apiGroup.Get("/success", handlers.GetSuccess)
	apiGroup.Get("/failed", handlers.GetFailed)
	apiGroup.Get("/config", handlers.GetConfig)
}

// adaptPrometheusHandler exposes the default Prometheus gatherer's text
// exposition format, matching the teacher's hand-rolled /metrics handler
// rather than pulling in the promhttp adapter for a single endpoint.
func adaptPrometheusHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		metricFamilies, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("error gathering metrics")
		}

		c.Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		for _, mf := range metricFamilies {
			name := mf.GetName()
			for _, m := range mf.GetMetric() {
				switch {
				case m.GetCounter() != nil:
					c.WriteString(fmt.Sprintf("# TYPE %s counter\n%s %g\n", name, name, m.GetCounter().GetValue()))
				case m.GetGauge() != nil:
					c.WriteString(fmt.Sprintf("# TYPE %s gauge\n%s %g\n", name, name, m.GetGauge().GetValue()))
				case m.GetHistogram() != nil:
					h := m.GetHistogram()
					c.WriteString(fmt.Sprintf("# TYPE %s histogram\n%s_count %d\n%s_sum %g\n",
						name, name, h.GetSampleCount(), name, h.GetSampleSum()))
				}
			}
		}
		return nil
	}
}

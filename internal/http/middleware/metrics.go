package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"sitepulse/internal/metrics"
)

// RequestMetrics records count and latency per route pattern, so path
// parameters do not explode label cardinality.
func RequestMetrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		metrics.RecordAPIRequest(c.Method(), c.Route().Path, status, time.Since(start))
		return err
	}
}

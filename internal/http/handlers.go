// Package http serves the reporting and administration endpoints.
package http

import (
	"github.com/gofiber/fiber/v2"

	"sitepulse/internal/pipeline"
)

// Handlers serves stats and admin routes from one Pipeline.
type Handlers struct {
	p *pipeline.Pipeline
}

func NewHandlers(p *pipeline.Pipeline) *Handlers {
	return &Handlers{p: p}
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

package http

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/agent"
	"sitepulse/internal/pipeline"
)

// AgentSchemaAction returns the table definitions for external query tools
func (h *Handlers) AgentSchemaAction(ctx *cartridge.Context) error {
	schema, err := agent.GetSchema(ctx.UserContext(), h.p.DB, pipeline.BotThresholds(h.p.Config))
	if err != nil {
		ctx.Logger.Error("Failed to read schema", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to read schema"})
	}
	return ctx.JSON(schema)
}

// AgentSQLAction executes a read-only SQL query
func (h *Handlers) AgentSQLAction(ctx *cartridge.Context) error {
	var req agent.SQLRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.SQL) == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "SQL query is required"})
	}

	if err := agent.ValidateReadOnlyQuery(req.SQL); err != nil {
		return badRequest(ctx.Ctx, err)
	}

	result, err := agent.ExecuteQuery(ctx.UserContext(), h.p.DB, req.SQL, agent.DefaultQueryTimeout)
	if err != nil {
		ctx.Logger.Warn("Agent query failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(result)
}

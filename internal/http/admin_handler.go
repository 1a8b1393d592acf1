package http

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

// BlockedDomainRequest is the body of POST /admin/api/blocked-domains.
type BlockedDomainRequest struct {
	Domain string `json:"domain"`
}

// ListBlockedDomainsAction returns the stored block list.
func (h *Handlers) ListBlockedDomainsAction(ctx *cartridge.Context) error {
	domains, err := h.p.Blocklist.ListDomains(ctx.UserContext())
	if err != nil {
		ctx.Logger.Error("Failed to list blocked domains", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list blocked domains"})
	}
	if domains == nil {
		domains = []string{}
	}
	return ctx.JSON(fiber.Map{"domains": domains})
}

// CreateBlockedDomainAction adds a domain and invalidates the cache.
func (h *Handlers) CreateBlockedDomainAction(ctx *cartridge.Context) error {
	var req BlockedDomainRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}
	if strings.TrimSpace(req.Domain) == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "domain is required"})
	}

	domain, err := h.p.Blocklist.AddDomain(ctx.UserContext(), req.Domain)
	if err != nil {
		ctx.Logger.Error("Failed to add blocked domain", slog.String("domain", req.Domain), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to add blocked domain"})
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"domain": domain})
}

// DeleteBlockedDomainAction removes a domain and invalidates the cache.
func (h *Handlers) DeleteBlockedDomainAction(ctx *cartridge.Context) error {
	domain, err := url.PathUnescape(ctx.Params("domain"))
	if err != nil || strings.TrimSpace(domain) == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "domain is required"})
	}

	removed, err := h.p.Blocklist.RemoveDomain(ctx.UserContext(), domain)
	if err != nil {
		ctx.Logger.Error("Failed to remove blocked domain", slog.String("domain", domain), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to remove blocked domain"})
	}
	if !removed {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "domain not found"})
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

// FlushAction writes the buffered events now instead of waiting for the timer.
func (h *Handlers) FlushAction(ctx *cartridge.Context) error {
	pending := h.p.Queue.Pending()
	if err := h.p.Queue.Flush(ctx.UserContext()); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"flushed": pending})
}

package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "sitepulse/api/v1"
	"sitepulse/internal/http"
	"sitepulse/internal/http/middleware"
	"sitepulse/internal/pipeline"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// The tracker is loaded from the blog's own pages and from previews on other hosts.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes on srv, served from p.
func MountAppRoutes(srv *cartridge.Server, p *pipeline.Pipeline) {
	cfg := p.Config
	logger := srv.GetLogger()

	// Rate limiting only applies in production; it would interfere with tests
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 120/min per IP covers a page view, a click or two and a heartbeat every
	// 15s from one reader with room to spare
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	requestMetrics := middleware.RequestMetrics()

	// ============================================
	// ROUTE CONFIGURATIONS
	// ============================================

	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CustomMiddleware:   []fiber.Handler{requestMetrics, publicRateLimiter},
		CORSConfig:         publicCORSConfig,
		EnableSecFetchSite: cartridge.Bool(false),
	}

	statsConfig := &cartridge.RouteConfig{
		CustomMiddleware:   []fiber.Handler{requestMetrics},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	adminAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			requestMetrics,
			middleware.AdminAPIKeyAuth(cfg.AdminAPIKey, logger),
		},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	infraConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
	}

	api := v1.NewHandlers(p)
	web := http.NewHandlers(p)

	noContent := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === INFRASTRUCTURE ===
	srv.Get("/_health", web.HealthIndexAction, infraConfig)
	srv.Head("/_health", web.HealthIndexAction, infraConfig)
	srv.Get("/metrics", http.MetricsAction, infraConfig)

	// === PUBLIC TRACKING API ===
	srv.Post("/api/v1/track/pageview", api.TrackPageViewHandler, publicAPIConfig)
	srv.Options("/api/v1/track/pageview", noContent, publicAPIConfig)
	srv.Post("/api/v1/track/click", api.TrackClickHandler, publicAPIConfig)
	srv.Options("/api/v1/track/click", noContent, publicAPIConfig)
	srv.Post("/api/v1/heartbeat", api.HeartbeatHandler, publicAPIConfig)
	srv.Options("/api/v1/heartbeat", noContent, publicAPIConfig)
	srv.Post("/api/v1/session/end", api.SessionEndHandler, publicAPIConfig)
	srv.Options("/api/v1/session/end", noContent, publicAPIConfig)
	srv.Get("/api/v1/live", api.LiveHandler, publicAPIConfig)

	// === STATS ===
	srv.Get("/api/stats/overview", web.OverviewAction, statsConfig)
	srv.Get("/api/stats/engagement", web.EngagementAction, statsConfig)
	srv.Get("/api/stats/rollups", web.RollupsAction, statsConfig)

	// === ADMIN API ===
	srv.Get("/admin/api/blocked-domains", web.ListBlockedDomainsAction, adminAPIConfig)
	srv.Post("/admin/api/blocked-domains", web.CreateBlockedDomainAction, adminAPIConfig)
	srv.Delete("/admin/api/blocked-domains/:domain", web.DeleteBlockedDomainAction, adminAPIConfig)
	srv.Post("/admin/api/flush", web.FlushAction, adminAPIConfig)
	srv.Get("/admin/api/agent/schema", web.AgentSchemaAction, adminAPIConfig)
	srv.Post("/admin/api/agent/sql", web.AgentSQLAction, adminAPIConfig)
}

package http

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"sitepulse/internal/events"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	DBStatus    string         `json:"db_status"`
	FlushTimer  bool           `json:"flush_timer"`
	Pending     events.Pending `json:"pending"`
	LiveVisits  int            `json:"live_sessions"`
	GeoIPLoaded bool           `json:"geoip_loaded"`
}

// HealthIndexAction handles the health check endpoint
func (h *Handlers) HealthIndexAction(ctx *cartridge.Context) error {
	dbStatus := "ok"

	db := ctx.DBManager.GetConnection()
	if db == nil {
		dbStatus = "error"
		ctx.Logger.Error("Database connection unavailable")
	} else {
		sqlDB, err := db.DB()
		if err != nil {
			dbStatus = "error"
			ctx.Logger.Error("Database connection error", slog.Any("error", err))
		} else if err := sqlDB.Ping(); err != nil {
			dbStatus = "error"
			ctx.Logger.Error("Database ping failed", slog.Any("error", err))
		}
	}

	health := HealthStatus{
		Status:      "ok",
		Timestamp:   time.Now(),
		DBStatus:    dbStatus,
		FlushTimer:  h.p.Queue.IsRunning(),
		Pending:     h.p.Queue.Pending(),
		LiveVisits:  h.p.Tracker.Len(),
		GeoIPLoaded: h.p.Geo.Enabled(),
	}

	if dbStatus != "ok" {
		health.Status = "degraded"
	}

	return ctx.JSON(health)
}

package http

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"sitepulse/internal/analytics"
	"sitepulse/internal/timeframe"
)

// EngagementResponse wraps engagement stats with the period they cover.
type EngagementResponse struct {
	Period timeframe.Period `json:"period"`
	analytics.EngagementStats
}

// RollupsResponse lists top pages read from a rollup table.
type RollupsResponse struct {
	Granularity timeframe.Granularity  `json:"granularity"`
	From        string                 `json:"from"`
	To          string                 `json:"to"`
	Pages       []analytics.RollupPage `json:"pages"`
}

// OverviewAction returns the dashboard payload for ?period= (default today).
func (h *Handlers) OverviewAction(ctx *cartridge.Context) error {
	period, err := timeframe.ParsePeriod(ctx.Query("period"))
	if err != nil {
		return badRequest(ctx.Ctx, err)
	}

	overview, err := h.p.Reader.Overview(ctx.UserContext(), period, time.Now(), h.p.Normaliser)
	if err != nil {
		return badRequest(ctx.Ctx, err)
	}
	return ctx.JSON(overview)
}

// EngagementAction returns click-through rates for ?period= sorted by ?sort=
// (rate or clicks).
func (h *Handlers) EngagementAction(ctx *cartridge.Context) error {
	period, err := timeframe.ParsePeriod(ctx.Query("period"))
	if err != nil {
		return badRequest(ctx.Ctx, err)
	}
	sortBy, err := analytics.ParseEngagementSort(ctx.Query("sort"))
	if err != nil {
		return badRequest(ctx.Ctx, err)
	}

	rng, err := timeframe.GetPeriodBoundaries(period, time.Now())
	if err != nil {
		return badRequest(ctx.Ctx, err)
	}

	stats := h.p.Reader.GetEngagementStats(ctx.UserContext(), rng, h.p.EngagementOptions(sortBy))
	return ctx.JSON(EngagementResponse{Period: period, EngagementStats: stats})
}

// RollupsAction returns top pages from the rollup table for ?granularity=
// between the inclusive ?from= and ?to= dates.
func (h *Handlers) RollupsAction(ctx *cartridge.Context) error {
	granularity, err := timeframe.ParseGranularity(ctx.Query("granularity"))
	if err != nil {
		return badRequest(ctx.Ctx, err)
	}
	rng, err := timeframe.ParseDateRange(ctx.Query("from"), ctx.Query("to"), time.Now())
	if err != nil {
		return badRequest(ctx.Ctx, err)
	}

	pages, err := analytics.TopPagesFromRollups(ctx.UserContext(), h.p.DB, granularity, rng, h.p.Reader.Limits().Default)
	if err != nil {
		// Reporting degrades to empty rather than failing the page
		ctx.Logger.Error("Rollup query failed", slog.Any("error", err))
		pages = []analytics.RollupPage{}
	}

	return ctx.JSON(RollupsResponse{
		Granularity: granularity,
		From:        rng.Start.Format("2006-01-02"),
		To:          rng.End.AddDate(0, 0, -1).Format("2006-01-02"),
		Pages:       pages,
	})
}

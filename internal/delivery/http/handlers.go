package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/roadwatch/backend/internal/analytics"
	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/internal/service"
	"github.com/roadwatch/backend/internal/vega"
)

// Analytics builds the aggregate views served under /collisions/stats and /viz
type Analytics interface {
	BuildSeverityBreakdown(ctx context.Context, p analytics.SeverityBreakdownParams) (vega.Spec, error)
	BuildTopLocations(ctx context.Context, p analytics.TopLocationsParams) (vega.Spec, error)
	BuildTimeSeries(ctx context.Context, p analytics.TimeSeriesParams) (vega.Spec, error)
	BuildSpatialHeatmap(ctx context.Context, p analytics.HeatmapParams) (vega.Spec, error)
	SummaryStats(ctx context.Context, f analytics.Filter) (domain.SummaryStats, error)
	StatsBySeverity(ctx context.Context, f analytics.Filter) ([]domain.SeverityStats, error)
}

// Dashboard assembles the overview panels
type Dashboard interface {
	GetDashboard(ctx context.Context, start, end *time.Time) (domain.Dashboard, error)
}

// Handler contains all HTTP handlers
type Handler struct {
	repo         service.CollisionRepository
	analytics    Analytics
	dashboard    Dashboard
	queryTimeout time.Duration
	logger       *zap.Logger
}

// NewHandler creates a new handler. Every database-backed handler runs under
// queryTimeout.
func NewHandler(repo service.CollisionRepository, engine Analytics, dashboard Dashboard, queryTimeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		repo:         repo,
		analytics:    engine,
		dashboard:    dashboard,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

func (h *Handler) queryContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.queryTimeout)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := h.queryContext(c)
	defer cancel()

	status, code := "ok", fiber.StatusOK
	database := "up"
	if err := h.repo.Health(ctx); err != nil {
		h.logger.Warn("Health check failed", zap.Error(err))
		status, code, database = "degraded", fiber.StatusServiceUnavailable, "down"
	}

	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"service":  "roadwatch-backend",
		"version":  "1.0.0",
		"database": database,
	})
}

// GetDashboard returns the overview panels
func (h *Handler) GetDashboard(c *fiber.Ctx) error {
	var p dateRangeParams
	if err := bindQuery(c, &p); err != nil {
		return err
	}
	start, end, err := parseRange(p.StartDate, p.EndDate)
	if err != nil {
		return err
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	data, err := h.dashboard.GetDashboard(ctx, start, end)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// ListCollisions returns a page of collisions, newest first
func (h *Handler) ListCollisions(c *fiber.Ctx) error {
	p := collisionListParams{Limit: 50}
	if err := bindQuery(c, &p); err != nil {
		return err
	}
	start, end, err := parseRange(p.StartDate, p.EndDate)
	if err != nil {
		return err
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	page, err := h.repo.ListCollisions(ctx, domain.CollisionQuery{
		Location:  p.Location,
		Severity:  p.Severity,
		StartDate: start,
		EndDate:   end,
		Limit:     p.Limit,
		Offset:    p.Offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// GetCollision returns one collision with its lookups expanded
func (h *Handler) GetCollision(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "id must be a positive integer")
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	collision, err := h.repo.GetCollision(ctx, int64(id))
	if err != nil {
		return err
	}
	return c.JSON(collision)
}

// GetStats returns totals over the filtered collisions
func (h *Handler) GetStats(c *fiber.Ctx) error {
	var p statsParams
	if err := bindQuery(c, &p); err != nil {
		return err
	}
	filter, err := p.filter()
	if err != nil {
		return err
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	stats, err := h.analytics.SummaryStats(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// GetStatsBySeverity returns totals and harm score per severity
func (h *Handler) GetStatsBySeverity(c *fiber.Ctx) error {
	var p statsParams
	if err := bindQuery(c, &p); err != nil {
		return err
	}
	filter, err := p.filter()
	if err != nil {
		return err
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	stats, err := h.analytics.StatsBySeverity(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// ListLookups returns every entry of one lookup dimension
func (h *Handler) ListLookups(c *fiber.Ctx) error {
	ctx, cancel := h.queryContext(c)
	defer cancel()

	entries, err := h.repo.ListLookups(ctx, domain.LookupKind(c.Params("kind")))
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

// GetSeverityChart returns the collisions-by-severity chart
func (h *Handler) GetSeverityChart(c *fiber.Ctx) error {
	var p severityChartParams
	if err := bindQuery(c, &p); err != nil {
		return err
	}
	start, end, err := parseRange(p.StartDate, p.EndDate)
	if err != nil {
		return err
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	spec, err := h.analytics.BuildSeverityBreakdown(ctx, analytics.SeverityBreakdownParams{
		Location:  p.Location,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return err
	}
	return c.JSON(spec)
}

// GetMostDangerous returns a top-N ranking for the address_type parameter
func (h *Handler) GetMostDangerous(c *fiber.Ctx) error {
	addressType, ok := analytics.ParseAddressType(c.Query("address_type"))
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "address_type must be one of [Intersection Block Alley]")
	}
	return h.mostDangerous(c, addressType)
}

// MostDangerousFor returns a ranking handler fixed to one address type
func (h *Handler) MostDangerousFor(addressType analytics.AddressType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return h.mostDangerous(c, addressType)
	}
}

func (h *Handler) mostDangerous(c *fiber.Ctx, addressType analytics.AddressType) error {
	p := topLocationsParams{Metric: string(analytics.MetricHarm), Limit: 20}
	if err := bindQuery(c, &p); err != nil {
		return err
	}
	start, end, err := parseRange(p.StartDate, p.EndDate)
	if err != nil {
		return err
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	spec, err := h.analytics.BuildTopLocations(ctx, analytics.TopLocationsParams{
		AddressType: addressType,
		Metric:      analytics.Metric(p.Metric),
		Limit:       p.Limit,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		return err
	}
	return c.JSON(spec)
}

// GetTimeSeries returns the collisions-over-time chart
func (h *Handler) GetTimeSeries(c *fiber.Ctx) error {
	p := timeSeriesParams{
		Metric:   string(analytics.MetricCollisions),
		Interval: string(analytics.IntervalMonth),
		Series:   string(analytics.SeriesNone),
	}
	if err := bindQuery(c, &p); err != nil {
		return err
	}
	start, end, err := parseRange(p.StartDate, p.EndDate)
	if err != nil {
		return err
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	spec, err := h.analytics.BuildTimeSeries(ctx, analytics.TimeSeriesParams{
		Metric:    analytics.Metric(p.Metric),
		Interval:  analytics.Interval(p.Interval),
		Series:    analytics.Series(p.Series),
		Location:  p.Location,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return err
	}
	return c.JSON(spec)
}

// GetHeatmap returns the collision heatmap
func (h *Handler) GetHeatmap(c *fiber.Ctx) error {
	p := heatmapParams{Metric: string(analytics.MetricCount)}
	if err := bindQuery(c, &p); err != nil {
		return err
	}
	start, end, err := parseRange(p.StartDate, p.EndDate)
	if err != nil {
		return err
	}

	params := analytics.HeatmapParams{
		Metric:    analytics.Metric(p.Metric),
		StartDate: start,
		EndDate:   end,
	}
	if p.SeverityID > 0 {
		params.SeverityID = &p.SeverityID
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	spec, err := h.analytics.BuildSpatialHeatmap(ctx, params)
	if err != nil {
		return err
	}
	return c.JSON(spec)
}

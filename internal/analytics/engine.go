// Package analytics builds, runs and shapes the aggregate collision queries
// behind the stats endpoints and the chart specs.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/internal/vega"
)

// Querier is the read side of a pgx pool or connection
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TemplateSource hands out chart templates
type TemplateSource interface {
	Load(name string) (vega.Spec, error)
}

// QueryObserver is told about every executed query
type QueryObserver interface {
	ObserveQuery(operation string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveQuery(string, time.Duration, error) {}

// Engine runs the analytics queries. It keeps no per-request state.
type Engine struct {
	db        Querier
	templates TemplateSource
	observer  QueryObserver
	logger    *zap.Logger
}

// NewEngine creates an analytics engine. observer and logger may be nil.
func NewEngine(db Querier, templates TemplateSource, observer QueryObserver, logger *zap.Logger) *Engine {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:        db,
		templates: templates,
		observer:  observer,
		logger:    logger.Named("analytics"),
	}
}

// SeverityBreakdownParams filters the collisions-by-severity chart
type SeverityBreakdownParams struct {
	Location  string
	StartDate *time.Time
	EndDate   *time.Time
}

// TopLocationsParams configures a most-dangerous-locations ranking
type TopLocationsParams struct {
	AddressType AddressType
	Metric      Metric
	Limit       int
	StartDate   *time.Time
	EndDate     *time.Time
}

// TimeSeriesParams configures the collisions-over-time chart
type TimeSeriesParams struct {
	Metric    Metric
	Interval  Interval
	Series    Series
	Location  string
	StartDate *time.Time
	EndDate   *time.Time
}

// HeatmapParams configures the spatial heatmap
type HeatmapParams struct {
	Metric     Metric
	StartDate  *time.Time
	EndDate    *time.Time
	SeverityID *int64
}

// SeverityBreakdown counts collisions per severity, largest first.
// Collisions without a severity form their own "Unknown" group.
func (e *Engine) SeverityBreakdown(ctx context.Context, p SeverityBreakdownParams) ([]domain.SeverityCount, error) {
	q := newSelect(
		"s.code AS severity_code",
		severityLabelSQL+" AS category",
		countSQL+" AS amount",
	)
	q.join(joinSeverity)
	Filter{Location: p.Location, StartDate: p.StartDate, EndDate: p.EndDate}.apply(q)
	q.group("s.code", severityLabelSQL)
	q.order("amount DESC", "category ASC")

	records, err := e.run(ctx, "severity_breakdown", q)
	if err != nil {
		return nil, err
	}
	return shapeSeverityCounts(records)
}

// TopLocations ranks the locations of one address type by the chosen metric
func (e *Engine) TopLocations(ctx context.Context, p TopLocationsParams) ([]domain.RankedCategory, error) {
	amount, err := metricSQL(rankingMetrics, p.Metric)
	if err != nil {
		return nil, err
	}
	grouping, err := p.AddressType.grouping()
	if err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		return nil, fmt.Errorf("analytics: ranking limit must be positive, got %d: %w", p.Limit, domain.ErrConfiguration)
	}

	q := newSelect()
	Filter{AddressType: string(p.AddressType), StartDate: p.StartDate, EndDate: p.EndDate}.apply(q)
	grouping(q)
	q.column(amount + " AS amount")
	q.order("amount DESC", "category ASC")
	q.limit = p.Limit

	records, err := e.run(ctx, "top_locations", q)
	if err != nil {
		return nil, err
	}
	return shapeRanking(records)
}

// TimeSeries buckets the chosen metric by interval, oldest bucket first
func (e *Engine) TimeSeries(ctx context.Context, p TimeSeriesParams) ([]domain.TimeSeriesPoint, error) {
	amount, err := metricSQL(timeSeriesMetrics, p.Metric)
	if err != nil {
		return nil, err
	}
	bucket, err := p.Interval.bucketSQL()
	if err != nil {
		return nil, err
	}
	split, err := p.Series.split()
	if err != nil {
		return nil, err
	}

	q := newSelect(bucket + " AS bucket")
	Filter{Location: p.Location, StartDate: p.StartDate, EndDate: p.EndDate}.apply(q)
	q.group(bucket)
	split(q, p.Metric)
	q.column(amount + " AS amount")
	q.order("bucket ASC", "series ASC")

	records, err := e.run(ctx, "time_series", q)
	if err != nil {
		return nil, err
	}
	return shapeTimeSeries(records)
}

// SpatialHeatmap weighs grid cells by the chosen metric, heaviest first
func (e *Engine) SpatialHeatmap(ctx context.Context, p HeatmapParams) ([]domain.HeatmapCell, error) {
	weight, err := metricSQL(heatmapMetrics, p.Metric)
	if err != nil {
		return nil, err
	}

	lonCell, latCell := cellSQL("lon"), cellSQL("lat")
	q := newSelect(
		lonCell+" AS lon_cell",
		latCell+" AS lat_cell",
		weight+" AS weight",
	)
	q.where("tc.lon IS NOT NULL")
	q.where("tc.lat IS NOT NULL")
	Filter{StartDate: p.StartDate, EndDate: p.EndDate, SeverityID: p.SeverityID}.apply(q)
	q.group(lonCell, latCell)
	q.order("weight DESC", "lon_cell ASC", "lat_cell ASC")

	records, err := e.run(ctx, "spatial_heatmap", q)
	if err != nil {
		return nil, err
	}
	return shapeHeatmap(records)
}

// SummaryStats aggregates the filtered set into a single row. An empty set
// yields zero totals and nil bounds.
func (e *Engine) SummaryStats(ctx context.Context, f Filter) (domain.SummaryStats, error) {
	q := newSelect(
		countSQL+" AS total_collisions",
		injuriesSQL+" AS total_injuries",
		seriousInjuriesSQL+" AS total_serious_injuries",
		fatalitiesSQL+" AS total_fatalities",
		"MIN(tc.occurred_at) AS occurred_at_min",
		"MAX(tc.occurred_at) AS occurred_at_max",
	)
	f.apply(q)

	records, err := e.run(ctx, "summary_stats", q)
	if err != nil {
		return domain.SummaryStats{}, err
	}
	if len(records) == 0 {
		return domain.SummaryStats{}, nil
	}
	return shapeSummary(records[0])
}

// StatsBySeverity returns every total plus the harm score per severity,
// ordered by collision count.
func (e *Engine) StatsBySeverity(ctx context.Context, f Filter) ([]domain.SeverityStats, error) {
	q := newSelect(
		"s.id AS severity_id",
		"s.code AS severity_code",
		severityLabelSQL+" AS severity_desc",
		countSQL+" AS total_collisions",
		injuriesSQL+" AS total_injuries",
		seriousInjuriesSQL+" AS total_serious_injuries",
		fatalitiesSQL+" AS total_fatalities",
		harmSQL+" AS harm_score",
	)
	q.join(joinSeverity)
	f.apply(q)
	q.group("s.id", "s.code", severityLabelSQL)
	q.order("total_collisions DESC", "severity_code ASC")

	records, err := e.run(ctx, "stats_by_severity", q)
	if err != nil {
		return nil, err
	}
	return shapeSeverityStats(records)
}

// BuildSeverityBreakdown returns the collisions-by-severity chart
func (e *Engine) BuildSeverityBreakdown(ctx context.Context, p SeverityBreakdownParams) (vega.Spec, error) {
	return build(e, vega.TemplateSeverityBreakdown, func() ([]domain.SeverityCount, error) {
		return e.SeverityBreakdown(ctx, p)
	})
}

// BuildTopLocations returns the most-dangerous-locations bar chart
func (e *Engine) BuildTopLocations(ctx context.Context, p TopLocationsParams) (vega.Spec, error) {
	return build(e, vega.TemplateTopLocations, func() ([]domain.RankedCategory, error) {
		return e.TopLocations(ctx, p)
	})
}

// BuildTimeSeries returns the collisions-over-time line chart
func (e *Engine) BuildTimeSeries(ctx context.Context, p TimeSeriesParams) (vega.Spec, error) {
	return build(e, vega.TemplateTimeSeries, func() ([]domain.TimeSeriesPoint, error) {
		return e.TimeSeries(ctx, p)
	})
}

// BuildSpatialHeatmap returns the collision heatmap
func (e *Engine) BuildSpatialHeatmap(ctx context.Context, p HeatmapParams) (vega.Spec, error) {
	return build(e, vega.TemplateHeatmap, func() ([]domain.HeatmapCell, error) {
		return e.SpatialHeatmap(ctx, p)
	})
}

// build loads the template before querying so a broken template fails fast
func build[T any](e *Engine, template string, values func() ([]T, error)) (vega.Spec, error) {
	spec, err := e.templates.Load(template)
	if err != nil {
		return nil, err
	}
	rows, err := values()
	if err != nil {
		return nil, err
	}
	return vega.InjectValues(spec, rows)
}

// run executes q and returns each row as a column-name map. pgx.CollectRows
// closes the rows, returning the connection to the pool on every path.
func (e *Engine) run(ctx context.Context, op string, q *selectQuery) ([]map[string]any, error) {
	sql, args := q.SQL()
	e.logger.Debug("running analytics query", zap.String("op", op), zap.String("sql", sql))

	start := time.Now()
	records, err := e.collect(ctx, sql, args)
	e.observer.ObserveQuery(op, time.Since(start), err)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.logger.Error("analytics query failed", zap.String("op", op), zap.Error(err))
		}
		return nil, fmt.Errorf("analytics: %s: %w", op, err)
	}
	return records, nil
}

func (e *Engine) collect(ctx context.Context, sql string, args []any) ([]map[string]any, error) {
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToMap)
}

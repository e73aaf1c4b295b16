package analytics

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/internal/vega"
)

type recordingObserver struct {
	mu  sync.Mutex
	ops []string
	err []error
}

func (o *recordingObserver) ObserveQuery(op string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
	o.err = append(o.err, err)
}

type missingTemplates struct{}

func (missingTemplates) Load(name string) (vega.Spec, error) {
	return nil, domain.ErrConfiguration
}

func newTestEngine(t *testing.T) (*Engine, pgxmock.PgxPoolIface, *recordingObserver) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := vega.NewStore()
	require.NoError(t, err)

	observer := &recordingObserver{}
	return NewEngine(mock, store, observer, zap.NewNop()), mock, observer
}

func tableValues(t *testing.T, spec vega.Spec) any {
	t.Helper()
	data, ok := spec["data"].([]any)
	require.True(t, ok)
	for _, d := range data {
		if ds, ok := d.(map[string]any); ok && ds["name"] == vega.TableDataset {
			return ds["values"]
		}
	}
	t.Fatalf("spec has no %q data source", vega.TableDataset)
	return nil
}

func TestSeverityBreakdown_TwoSeverities(t *testing.T) {
	engine, mock, observer := newTestEngine(t)

	expected := "SELECT s.code AS severity_code, COALESCE(s.description, 'Unknown') AS category, COUNT(tc.id) AS amount " +
		"FROM traffic_collisions tc LEFT JOIN severity s ON s.id = tc.severity_id " +
		"GROUP BY s.code, COALESCE(s.description, 'Unknown') ORDER BY amount DESC, category ASC"
	mock.ExpectQuery(regexp.QuoteMeta(expected)).
		WillReturnRows(pgxmock.NewRows([]string{"severity_code", "category", "amount"}).
			AddRow("A", "Severity A", int64(2)).
			AddRow("B", "Severity B", int64(1)))

	values, err := engine.SeverityBreakdown(context.Background(), SeverityBreakdownParams{})
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, "Severity A", values[0].Category)
	assert.Equal(t, int64(2), values[0].Amount)
	assert.Equal(t, "Severity B", values[1].Category)
	assert.Equal(t, int64(1), values[1].Amount)

	assert.Equal(t, []string{"severity_breakdown"}, observer.ops)
	assert.NoError(t, observer.err[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeverityBreakdown_Filters(t *testing.T) {
	engine, mock, _ := newTestEngine(t)
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE tc.location ILIKE $1 AND tc.occurred_at >= $2 GROUP BY")).
		WithArgs("%PIKE%", start).
		WillReturnRows(pgxmock.NewRows([]string{"severity_code", "category", "amount"}))

	values, err := engine.SeverityBreakdown(context.Background(), SeverityBreakdownParams{
		Location:  "PIKE",
		StartDate: &start,
	})
	require.NoError(t, err)
	assert.Empty(t, values)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopLocations_IntersectionLimitOne(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"LEFT JOIN address_type adt ON adt.id = tc.address_type_id "+
			"WHERE adt.name = $1 AND tc.int_key IS NOT NULL GROUP BY tc.int_key "+
			"ORDER BY amount DESC, category ASC LIMIT $2")).
		WithArgs("Intersection", 1).
		WillReturnRows(pgxmock.NewRows([]string{"int_key", "category", "amount"}).
			AddRow(int64(29598), "AURORA AVE N AND N 85TH ST", int64(11)))

	values, err := engine.TopLocations(context.Background(), TopLocationsParams{
		AddressType: AddressIntersection,
		Metric:      MetricHarm,
		Limit:       1,
	})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, domain.RankedCategory{Category: "AURORA AVE N AND N 85TH ST", Amount: 11}, values[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopLocations_BlockCountsByLocation(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT tc.location AS category, COUNT(tc.id) AS amount FROM traffic_collisions tc "+
			"LEFT JOIN address_type adt ON adt.id = tc.address_type_id "+
			"WHERE adt.name = $1 AND tc.location IS NOT NULL GROUP BY tc.location")).
		WithArgs("Block", 3).
		WillReturnRows(pgxmock.NewRows([]string{"category", "amount"}).
			AddRow("3RD AVE BETWEEN PINE ST AND PIKE ST", int64(5)).
			AddRow("AURORA AVE N BETWEEN N 130TH ST AND N 135TH ST", int64(5)))

	values, err := engine.TopLocations(context.Background(), TopLocationsParams{
		AddressType: AddressBlock,
		Metric:      MetricCount,
		Limit:       3,
	})
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.GreaterOrEqual(t, values[0].Amount, values[1].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopLocations_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		params TopLocationsParams
	}{
		{"unknown metric", TopLocationsParams{AddressType: AddressBlock, Metric: "fatalities", Limit: 5}},
		{"unknown address type", TopLocationsParams{AddressType: "Highway", Metric: MetricCount, Limit: 5}},
		{"zero limit", TopLocationsParams{AddressType: AddressBlock, Metric: MetricCount}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, mock, observer := newTestEngine(t)

			_, err := engine.TopLocations(context.Background(), tt.params)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
			assert.Empty(t, observer.ops)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTimeSeries_SingleSeries(t *testing.T) {
	engine, mock, _ := newTestEngine(t)
	jan := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)

	expected := "SELECT date_trunc('month', tc.occurred_at) AS bucket, $2::text AS series, " +
		"COALESCE(SUM(tc.injuries), 0) AS amount FROM traffic_collisions tc " +
		"WHERE tc.location ILIKE $1 GROUP BY date_trunc('month', tc.occurred_at) ORDER BY bucket ASC, series ASC"
	mock.ExpectQuery(regexp.QuoteMeta(expected)).
		WithArgs("%AURORA%", "injuries").
		WillReturnRows(pgxmock.NewRows([]string{"bucket", "series", "amount"}).
			AddRow(jan, "injuries", int64(4)).
			AddRow(feb, "injuries", int64(6)))

	values, err := engine.TimeSeries(context.Background(), TimeSeriesParams{
		Metric:   MetricInjuries,
		Interval: IntervalMonth,
		Series:   SeriesNone,
		Location: "AURORA",
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.TimeSeriesPoint{
		{X: "2023-01-01T00:00:00", Y: 4, C: "injuries"},
		{X: "2023-02-01T00:00:00", Y: 6, C: "injuries"},
	}, values)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeSeries_PerSeverity(t *testing.T) {
	engine, mock, _ := newTestEngine(t)
	week := time.Date(2023, 3, 6, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		"LEFT JOIN severity s ON s.id = tc.severity_id "+
			"GROUP BY date_trunc('week', tc.occurred_at), COALESCE(s.description, 'Unknown') "+
			"ORDER BY bucket ASC, series ASC")).
		WillReturnRows(pgxmock.NewRows([]string{"bucket", "series", "amount"}).
			AddRow(week, "Injury Collision", int64(2)).
			AddRow(week, "Unknown", int64(1)).
			AddRow(nil, "Unknown", int64(7)))

	values, err := engine.TimeSeries(context.Background(), TimeSeriesParams{
		Metric:   MetricCollisions,
		Interval: IntervalWeek,
		Series:   SeriesSeverity,
	})
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, "Injury Collision", values[0].C)
	assert.Equal(t, "Unknown", values[1].C)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeSeries_ConfigurationErrors(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.TimeSeries(context.Background(), TimeSeriesParams{Metric: "speed", Interval: IntervalDay, Series: SeriesNone})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = engine.TimeSeries(context.Background(), TimeSeriesParams{Metric: MetricHarm, Interval: "decade", Series: SeriesNone})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = engine.TimeSeries(context.Background(), TimeSeriesParams{Metric: MetricHarm, Interval: IntervalDay, Series: "weather"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSpatialHeatmap(t *testing.T) {
	engine, mock, _ := newTestEngine(t)
	severityID := int64(2)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT FLOOR(tc.lon / 0.0025) * 0.0025 AS lon_cell, FLOOR(tc.lat / 0.0025) * 0.0025 AS lat_cell, "+
			"COUNT(tc.id) AS weight FROM traffic_collisions tc "+
			"WHERE tc.lon IS NOT NULL AND tc.lat IS NOT NULL AND tc.severity_id = $1 "+
			"GROUP BY FLOOR(tc.lon / 0.0025) * 0.0025, FLOOR(tc.lat / 0.0025) * 0.0025 "+
			"ORDER BY weight DESC, lon_cell ASC, lat_cell ASC")).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"lon_cell", "lat_cell", "weight"}).
			AddRow(-122.3375, 47.6075, int64(12)))

	values, err := engine.SpatialHeatmap(context.Background(), HeatmapParams{
		Metric:     MetricCount,
		SeverityID: &severityID,
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.HeatmapCell{{Longitude: -122.3375, Latitude: 47.6075, Weight: 12}}, values)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryStats_EmptySet(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectQuery(regexp.QuoteMeta("MIN(tc.occurred_at) AS occurred_at_min, MAX(tc.occurred_at) AS occurred_at_max FROM traffic_collisions tc")).
		WillReturnRows(pgxmock.NewRows([]string{
			"total_collisions", "total_injuries", "total_serious_injuries", "total_fatalities",
			"occurred_at_min", "occurred_at_max",
		}).AddRow(int64(0), int64(0), int64(0), int64(0), nil, nil))

	stats, err := engine.SummaryStats(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryStats{}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsBySeverity(t *testing.T) {
	engine, mock, observer := newTestEngine(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"GROUP BY s.id, s.code, COALESCE(s.description, 'Unknown') ORDER BY total_collisions DESC, severity_code ASC")).
		WithArgs("%Fatal%").
		WillReturnRows(pgxmock.NewRows([]string{
			"severity_id", "severity_code", "severity_desc", "total_collisions", "total_injuries",
			"total_serious_injuries", "total_fatalities", "harm_score",
		}).AddRow(int64(4), "3", "Fatality Collision", int64(2), int64(1), int64(0), int64(2), int64(14)))

	values, err := engine.StatsBySeverity(context.Background(), Filter{Severity: "Fatal"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, HarmScore(2, 0, 1, 2), values[0].HarmScore)
	assert.Equal(t, []string{"stats_by_severity"}, observer.ops)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_WrapsQueryErrors(t *testing.T) {
	engine, mock, observer := newTestEngine(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery("SELECT").WillReturnError(boom)

	_, err := engine.SeverityBreakdown(context.Background(), SeverityBreakdownParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "analytics: severity_breakdown")
	require.Len(t, observer.err, 1)
	assert.ErrorIs(t, observer.err[0], boom)
}

func TestBuildSeverityBreakdown_InjectsValues(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	mock.ExpectQuery("SELECT").
		WillReturnRows(pgxmock.NewRows([]string{"severity_code", "category", "amount"}).
			AddRow("1", "Property Damage Only Collision", int64(5)))

	spec, err := engine.BuildSeverityBreakdown(context.Background(), SeverityBreakdownParams{})
	require.NoError(t, err)

	values, ok := tableValues(t, spec).([]domain.SeverityCount)
	require.True(t, ok)
	require.Len(t, values, 1)
	assert.Equal(t, int64(5), values[0].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuild_MissingTemplateSkipsQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	engine := NewEngine(mock, missingTemplates{}, nil, nil)

	_, err = engine.BuildSpatialHeatmap(context.Background(), HeatmapParams{Metric: MetricHarm})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

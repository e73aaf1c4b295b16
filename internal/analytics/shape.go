package analytics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/pkg/utils"
)

// isoLayout renders buckets of the timezone-less occurred_at column
const isoLayout = "2006-01-02T15:04:05"

// cellPrecision trims float noise from grid cell corners
const cellPrecision = 6

// toInt64 coerces an aggregate value to an integer. NULL becomes 0.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case pgtype.Int8:
		return n.Int64, nil
	case pgtype.Numeric:
		if i, err := n.Int64Value(); err == nil {
			return i.Int64, nil
		}
		f, err := n.Float64Value()
		if err != nil {
			return 0, fmt.Errorf("analytics: convert numeric: %w", err)
		}
		return int64(f.Float64), nil
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("analytics: convert %q: %w", n, err)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("analytics: unexpected numeric type %T", v)
	}
}

// toFloat64 coerces an aggregate value to a float. NULL becomes 0.
func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int:
		return float64(n), nil
	case pgtype.Float8:
		return n.Float64, nil
	case pgtype.Numeric:
		f, err := n.Float64Value()
		if err != nil {
			return 0, fmt.Errorf("analytics: convert numeric: %w", err)
		}
		return f.Float64, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("analytics: convert %q: %w", n, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("analytics: unexpected numeric type %T", v)
	}
}

// toTime reports false for NULL timestamps
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case pgtype.Timestamp:
		return t.Time, t.Valid
	case pgtype.Timestamptz:
		return t.Time, t.Valid
	default:
		return time.Time{}, false
	}
}

// toLabel reports false for NULL labels
func toLabel(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	case *string:
		if s == nil {
			return "", false
		}
		return *s, true
	case pgtype.Text:
		return s.String, s.Valid
	default:
		return fmt.Sprint(v), true
	}
}

func shapeSeverityCounts(records []map[string]any) ([]domain.SeverityCount, error) {
	values := make([]domain.SeverityCount, 0, len(records))
	for _, rec := range records {
		amount, err := toInt64(rec["amount"])
		if err != nil {
			return nil, err
		}
		category, ok := toLabel(rec["category"])
		if !ok {
			category = UnknownSeverity
		}
		row := domain.SeverityCount{Category: category, Amount: amount}
		if code, ok := toLabel(rec["severity_code"]); ok {
			row.SeverityCode = &code
		}
		values = append(values, row)
	}
	return values, nil
}

func shapeRanking(records []map[string]any) ([]domain.RankedCategory, error) {
	values := make([]domain.RankedCategory, 0, len(records))
	for _, rec := range records {
		amount, err := toFloat64(rec["amount"])
		if err != nil {
			return nil, err
		}
		category, ok := toLabel(rec["category"])
		if !ok {
			// an intersection whose every location is NULL falls back to its key
			category, _ = toLabel(rec["int_key"])
		}
		values = append(values, domain.RankedCategory{Category: category, Amount: amount})
	}
	return values, nil
}

// shapeTimeSeries drops rows without a bucket rather than reporting them
func shapeTimeSeries(records []map[string]any) ([]domain.TimeSeriesPoint, error) {
	values := make([]domain.TimeSeriesPoint, 0, len(records))
	for _, rec := range records {
		bucket, ok := toTime(rec["bucket"])
		if !ok {
			continue
		}
		y, err := toInt64(rec["amount"])
		if err != nil {
			return nil, err
		}
		series, _ := toLabel(rec["series"])
		values = append(values, domain.TimeSeriesPoint{
			X: bucket.Format(isoLayout),
			Y: y,
			C: series,
		})
	}
	return values, nil
}

func shapeHeatmap(records []map[string]any) ([]domain.HeatmapCell, error) {
	values := make([]domain.HeatmapCell, 0, len(records))
	for _, rec := range records {
		lon, err := toFloat64(rec["lon_cell"])
		if err != nil {
			return nil, err
		}
		lat, err := toFloat64(rec["lat_cell"])
		if err != nil {
			return nil, err
		}
		weight, err := toFloat64(rec["weight"])
		if err != nil {
			return nil, err
		}
		values = append(values, domain.HeatmapCell{
			Longitude: utils.RoundTo(lon, cellPrecision),
			Latitude:  utils.RoundTo(lat, cellPrecision),
			Weight:    weight,
		})
	}
	return values, nil
}

func shapeSummary(rec map[string]any) (domain.SummaryStats, error) {
	var (
		stats domain.SummaryStats
		err   error
	)
	if stats.TotalCollisions, err = toInt64(rec["total_collisions"]); err != nil {
		return stats, err
	}
	if stats.TotalInjuries, err = toInt64(rec["total_injuries"]); err != nil {
		return stats, err
	}
	if stats.TotalSeriousInjuries, err = toInt64(rec["total_serious_injuries"]); err != nil {
		return stats, err
	}
	if stats.TotalFatalities, err = toInt64(rec["total_fatalities"]); err != nil {
		return stats, err
	}
	if t, ok := toTime(rec["occurred_at_min"]); ok {
		stats.OccurredAtMin = &t
	}
	if t, ok := toTime(rec["occurred_at_max"]); ok {
		stats.OccurredAtMax = &t
	}
	return stats, nil
}

func shapeSeverityStats(records []map[string]any) ([]domain.SeverityStats, error) {
	values := make([]domain.SeverityStats, 0, len(records))
	for _, rec := range records {
		var (
			row domain.SeverityStats
			err error
		)
		if row.TotalCollisions, err = toInt64(rec["total_collisions"]); err != nil {
			return nil, err
		}
		if row.TotalInjuries, err = toInt64(rec["total_injuries"]); err != nil {
			return nil, err
		}
		if row.TotalSeriousInjuries, err = toInt64(rec["total_serious_injuries"]); err != nil {
			return nil, err
		}
		if row.TotalFatalities, err = toInt64(rec["total_fatalities"]); err != nil {
			return nil, err
		}
		if row.HarmScore, err = toInt64(rec["harm_score"]); err != nil {
			return nil, err
		}
		if rec["severity_id"] != nil {
			id, err := toInt64(rec["severity_id"])
			if err != nil {
				return nil, err
			}
			row.SeverityID = &id
		}
		if code, ok := toLabel(rec["severity_code"]); ok {
			row.SeverityCode = &code
		}
		desc, ok := toLabel(rec["severity_desc"])
		if !ok {
			desc = UnknownSeverity
		}
		row.SeverityDesc = desc
		values = append(values, row)
	}
	return values, nil
}

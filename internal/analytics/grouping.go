package analytics

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roadwatch/backend/internal/domain"
)

// Interval is the time bucket width of a time series
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
)

var intervalUnits = map[Interval]string{
	IntervalDay:   "day",
	IntervalWeek:  "week",
	IntervalMonth: "month",
}

// bucketSQL returns the date_trunc expression for the interval
func (i Interval) bucketSQL() (string, error) {
	unit, ok := intervalUnits[i]
	if !ok {
		return "", fmt.Errorf("analytics: unsupported interval %q: %w", i, domain.ErrConfiguration)
	}
	return fmt.Sprintf("date_trunc('%s', tc.occurred_at)", unit), nil
}

// Series selects how a time series is split into lines
type Series string

const (
	SeriesNone     Series = "none"
	SeriesSeverity Series = "severity"
)

// UnknownSeverity labels collisions without a severity
const UnknownSeverity = "Unknown"

const severityLabelSQL = "COALESCE(s.description, 'Unknown')"

// seriesSplit adds the series column to a bucketed query
type seriesSplit func(q *selectQuery, metric Metric)

var seriesSplits = map[Series]seriesSplit{
	SeriesNone:     singleSeries,
	SeriesSeverity: seriesPerSeverity,
}

// singleSeries labels every row with the metric keyword. A bound constant
// needs no GROUP BY entry.
func singleSeries(q *selectQuery, metric Metric) {
	q.column(q.bind(string(metric)) + "::text AS series")
}

func seriesPerSeverity(q *selectQuery, _ Metric) {
	q.join(joinSeverity)
	q.column(severityLabelSQL + " AS series")
	q.group(severityLabelSQL)
}

func (s Series) split() (seriesSplit, error) {
	fn, ok := seriesSplits[s]
	if !ok {
		return nil, fmt.Errorf("analytics: unsupported series %q: %w", s, domain.ErrConfiguration)
	}
	return fn, nil
}

// AddressType is the address type a location ranking is restricted to
type AddressType string

const (
	AddressIntersection AddressType = "Intersection"
	AddressBlock        AddressType = "Block"
	AddressAlley        AddressType = "Alley"
)

// ParseAddressType matches an address type name case-insensitively
func ParseAddressType(name string) (AddressType, bool) {
	for _, at := range []AddressType{AddressIntersection, AddressBlock, AddressAlley} {
		if strings.EqualFold(strings.TrimSpace(name), string(at)) {
			return at, true
		}
	}
	return "", false
}

// locationGrouping adds the ranking key, its label and the non-null guard
type locationGrouping func(q *selectQuery)

var locationGroupings = map[AddressType]locationGrouping{
	AddressIntersection: groupByIntersection,
	AddressBlock:        groupByLocationText,
	AddressAlley:        groupByLocationText,
}

// groupByIntersection ranks intersections by int_key. The label is the
// greatest location text seen for the key.
func groupByIntersection(q *selectQuery) {
	q.where("tc.int_key IS NOT NULL")
	q.column("tc.int_key AS int_key")
	q.column("MAX(tc.location) AS category")
	q.group("tc.int_key")
}

func groupByLocationText(q *selectQuery) {
	q.where("tc.location IS NOT NULL")
	q.column("tc.location AS category")
	q.group("tc.location")
}

func (a AddressType) grouping() (locationGrouping, error) {
	fn, ok := locationGroupings[a]
	if !ok {
		return nil, fmt.Errorf("analytics: unsupported address type %q: %w", a, domain.ErrConfiguration)
	}
	return fn, nil
}

// CellSize is the heatmap grid cell edge in degrees
const CellSize = 0.0025

var cellSizeSQL = strconv.FormatFloat(CellSize, 'f', -1, 64)

// cellSQL floors a coordinate column onto the grid
func cellSQL(column string) string {
	return fmt.Sprintf("FLOOR(tc.%s / %s) * %s", column, cellSizeSQL, cellSizeSQL)
}

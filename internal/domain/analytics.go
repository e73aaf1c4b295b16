package domain

import "time"

// SummaryStats is the single-row aggregate over a filtered collision set.
// The timestamp bounds are nil when nothing matched.
type SummaryStats struct {
	TotalCollisions      int64      `json:"total_collisions"`
	TotalInjuries        int64      `json:"total_injuries"`
	TotalSeriousInjuries int64      `json:"total_serious_injuries"`
	TotalFatalities      int64      `json:"total_fatalities"`
	OccurredAtMin        *time.Time `json:"occurred_at_min,omitempty"`
	OccurredAtMax        *time.Time `json:"occurred_at_max,omitempty"`
}

// SeverityStats is one row of the per-severity statistics
type SeverityStats struct {
	SeverityID           *int64  `json:"severity_id"`
	SeverityCode         *string `json:"severity_code"`
	SeverityDesc         string  `json:"severity_desc"`
	TotalCollisions      int64   `json:"total_collisions"`
	TotalInjuries        int64   `json:"total_injuries"`
	TotalSeriousInjuries int64   `json:"total_serious_injuries"`
	TotalFatalities      int64   `json:"total_fatalities"`
	HarmScore            int64   `json:"harm_score"`
}

// SeverityCount is a bar of the collisions-by-severity chart
type SeverityCount struct {
	SeverityCode *string `json:"severity_code"`
	Category     string  `json:"category"`
	Amount       int64   `json:"amount"`
}

// RankedCategory is a bar of a top-N ranking chart
type RankedCategory struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// TimeSeriesPoint is a point of a line chart; C names the series
type TimeSeriesPoint struct {
	X string `json:"x"`
	Y int64  `json:"y"`
	C string `json:"c"`
}

// HeatmapCell is a weighted grid cell of the collision heatmap
type HeatmapCell struct {
	Longitude float64 `json:"lon"`
	Latitude  float64 `json:"lat"`
	Weight    float64 `json:"weight"`
}

// Dashboard is the landing-page overview of a filtered collision set
type Dashboard struct {
	Summary          SummaryStats     `json:"summary"`
	BySeverity       []SeverityStats  `json:"by_severity"`
	TopIntersections []RankedCategory `json:"top_intersections"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

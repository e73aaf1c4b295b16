package analytics

import (
	"fmt"

	"github.com/roadwatch/backend/internal/domain"
)

// Aggregate identifies one aggregate expression over a collision set
type Aggregate int

const (
	AggCount Aggregate = iota
	AggInjuries
	AggSeriousInjuries
	AggFatalities
	AggHarm
)

// Harm score weights. These values are published alongside the charts, so
// they stay fixed until they are moved into configuration.
const (
	HarmWeightFatality      = 5
	HarmWeightSeriousInjury = 3
	HarmWeightInjury        = 2
	HarmWeightCollision     = 1
)

const (
	countSQL           = "COUNT(tc.id)"
	injuriesSQL        = "COALESCE(SUM(tc.injuries), 0)"
	seriousInjuriesSQL = "COALESCE(SUM(tc.serious_injuries), 0)"
	fatalitiesSQL      = "COALESCE(SUM(tc.fatalities), 0)"
)

var harmSQL = fmt.Sprintf("(%s * %d + %s * %d + %s * %d + %s * %d)",
	fatalitiesSQL, HarmWeightFatality,
	seriousInjuriesSQL, HarmWeightSeriousInjury,
	injuriesSQL, HarmWeightInjury,
	countSQL, HarmWeightCollision,
)

var aggregateSQL = map[Aggregate]string{
	AggCount:           countSQL,
	AggInjuries:        injuriesSQL,
	AggSeriousInjuries: seriousInjuriesSQL,
	AggFatalities:      fatalitiesSQL,
	AggHarm:            harmSQL,
}

// SQL returns the aggregate as a SQL expression over the tc alias
func (a Aggregate) SQL() (string, error) {
	expr, ok := aggregateSQL[a]
	if !ok {
		return "", fmt.Errorf("analytics: no expression for aggregate %d: %w", a, domain.ErrConfiguration)
	}
	return expr, nil
}

// HarmScore applies the harm weights to already aggregated totals
func HarmScore(fatalities, seriousInjuries, injuries, collisions int64) int64 {
	return fatalities*HarmWeightFatality +
		seriousInjuries*HarmWeightSeriousInjury +
		injuries*HarmWeightInjury +
		collisions*HarmWeightCollision
}

// Metric is the user-facing metric keyword of a chart
type Metric string

const (
	MetricCount           Metric = "count"
	MetricHarm            Metric = "harm"
	MetricCollisions      Metric = "collisions"
	MetricInjuries        Metric = "injuries"
	MetricSeriousInjuries Metric = "serious_injuries"
	MetricFatalities      Metric = "fatalities"
)

// Each chart accepts its own closed set of metric keywords.
var (
	rankingMetrics = map[Metric]Aggregate{
		MetricHarm:  AggHarm,
		MetricCount: AggCount,
	}
	timeSeriesMetrics = map[Metric]Aggregate{
		MetricCollisions:      AggCount,
		MetricInjuries:        AggInjuries,
		MetricSeriousInjuries: AggSeriousInjuries,
		MetricFatalities:      AggFatalities,
		MetricHarm:            AggHarm,
	}
	heatmapMetrics = map[Metric]Aggregate{
		MetricCount: AggCount,
		MetricHarm:  AggHarm,
	}
)

// metricSQL resolves a keyword against one chart's metric table
func metricSQL(table map[Metric]Aggregate, m Metric) (string, error) {
	agg, ok := table[m]
	if !ok {
		return "", fmt.Errorf("analytics: unsupported metric %q: %w", m, domain.ErrConfiguration)
	}
	return agg.SQL()
}

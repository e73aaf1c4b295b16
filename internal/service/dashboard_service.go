package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roadwatch/backend/internal/analytics"
	"github.com/roadwatch/backend/internal/domain"
)

// DashboardTopN is how many intersections the dashboard ranks
const DashboardTopN = 10

// DashboardAnalytics is the part of the analytics engine the dashboard reads
type DashboardAnalytics interface {
	SummaryStats(ctx context.Context, f analytics.Filter) (domain.SummaryStats, error)
	StatsBySeverity(ctx context.Context, f analytics.Filter) ([]domain.SeverityStats, error)
	TopLocations(ctx context.Context, p analytics.TopLocationsParams) ([]domain.RankedCategory, error)
}

// DashboardService aggregates the overview panels
type DashboardService struct {
	engine DashboardAnalytics
	logger *zap.Logger
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(engine DashboardAnalytics, logger *zap.Logger) *DashboardService {
	return &DashboardService{
		engine: engine,
		logger: logger.Named("dashboard"),
	}
}

// GetDashboard runs the three panel queries concurrently. The panels share
// the date range; any failure fails the whole dashboard.
func (s *DashboardService) GetDashboard(ctx context.Context, start, end *time.Time) (domain.Dashboard, error) {
	var (
		dash domain.Dashboard
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	filter := analytics.Filter{StartDate: start, EndDate: end}

	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		summary, err := s.engine.SummaryStats(ctx, filter)
		if err != nil {
			fail(err)
			return
		}
		dash.Summary = summary
	}()

	go func() {
		defer wg.Done()
		stats, err := s.engine.StatsBySeverity(ctx, filter)
		if err != nil {
			fail(err)
			return
		}
		dash.BySeverity = stats
	}()

	go func() {
		defer wg.Done()
		top, err := s.engine.TopLocations(ctx, analytics.TopLocationsParams{
			AddressType: analytics.AddressIntersection,
			Metric:      analytics.MetricHarm,
			Limit:       DashboardTopN,
			StartDate:   start,
			EndDate:     end,
		})
		if err != nil {
			fail(err)
			return
		}
		dash.TopIntersections = top
	}()

	wg.Wait()

	if len(errs) > 0 {
		err := errors.Join(errs...)
		s.logger.Warn("Dashboard panels failed", zap.Int("failed", len(errs)), zap.Error(err))
		return domain.Dashboard{}, err
	}

	dash.GeneratedAt = time.Now().UTC()
	return dash, nil
}

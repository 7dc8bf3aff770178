package statistics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/analytics"
)

const (
	CacheKeyDashboard = "statistics:calls:%d:%s" // user id, time filter
	CacheExpiration   = 30 * time.Second
)

// CallStore is the slice of the call repository the statistics need.
type CallStore interface {
	GetStats(userID uint, r repository.CallRange) (*repository.CallAggregate, error)
	GetChartPoints(userID uint, r repository.CallRange) ([]analytics.CallPoint, error)
	GetStartTimes(userID uint, r repository.CallRange) ([]time.Time, error)
}

// Cache stores serialized results. A nil Cache disables caching.
type Cache interface {
	Get(key string) (string, error)
	Set(key string, value string, expiration time.Duration) error
	Delete(key string) error
}

// Insights compares the current window with the one before it.
type Insights struct {
	TimeFilter           string  `json:"timeFilter"`
	TotalCalls           int64   `json:"totalCalls"`
	PreviousTotalCalls   int64   `json:"previousTotalCalls"`
	TotalCallsChange     float64 `json:"totalCallsChange"`
	ConversionRate       float64 `json:"conversionRate"`
	PreviousConversion   float64 `json:"previousConversionRate"`
	ConversionRateChange float64 `json:"conversionRateChange"`
	PeakHour             *int    `json:"peakHour"`
}

type Service struct {
	calls  CallStore
	cache  Cache
	policy analytics.Policy
	loc    *time.Location
	now    func() time.Time
}

func NewService(calls CallStore, cache Cache, policy analytics.Policy) *Service {
	return &Service{
		calls:  calls,
		cache:  cache,
		policy: policy,
		loc:    time.Local,
		now:    time.Now,
	}
}

// WithClock replaces the time source and the bucketing location.
func (s *Service) WithClock(now func() time.Time, loc *time.Location) *Service {
	s.now = now
	if loc != nil {
		s.loc = loc
	}
	return s
}

func cacheKey(userID uint, filter analytics.TimeFilter) string {
	name := string(filter)
	if name == "" {
		name = "all"
	}
	return fmt.Sprintf(CacheKeyDashboard, userID, name)
}

func (s *Service) rangeFor(filter analytics.TimeFilter) repository.CallRange {
	return repository.CallRange{Since: filter.SincePtr(s.now().In(s.loc))}
}

// DashboardStats returns the headline numbers of the dashboard. Results are
// cached per user and filter; any cache problem falls back to the store.
func (s *Service) DashboardStats(ctx context.Context, userID uint, filter analytics.TimeFilter) (*models.CallStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(userID, filter)
	if s.cache != nil {
		if raw, err := s.cache.Get(key); err == nil {
			var cached models.CallStats
			if jerr := json.Unmarshal([]byte(raw), &cached); jerr == nil {
				return &cached, nil
			}
		}
	}

	agg, err := s.calls.GetStats(userID, s.rangeFor(filter))
	if err != nil {
		return nil, err
	}
	stats := s.policy.Summarize(agg.Total, agg.Active, agg.Completed, agg.Failed, agg.Successful, agg.AverageDuration)

	if s.cache != nil {
		if b, jerr := json.Marshal(stats); jerr == nil {
			if serr := s.cache.Set(key, string(b), CacheExpiration); serr != nil {
				zap.L().Debug("statistics cache write failed", zap.String("key", key), zap.Error(serr))
			}
		}
	}
	return &stats, nil
}

// Invalidate drops the cached dashboards of a user after a call write.
func (s *Service) Invalidate(userID uint) {
	if s.cache == nil {
		return
	}
	for _, f := range []analytics.TimeFilter{analytics.FilterNone, analytics.FilterHour, analytics.FilterToday, analytics.FilterTwoDays, analytics.FilterWeek} {
		_ = s.cache.Delete(cacheKey(userID, f))
	}
}

// ChartData returns the sparse per-day series for the filter.
func (s *Service) ChartData(ctx context.Context, userID uint, filter analytics.TimeFilter) ([]models.DailyCallStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	points, err := s.calls.GetChartPoints(userID, s.rangeFor(filter))
	if err != nil {
		return nil, err
	}
	return analytics.BucketByDay(points, s.loc), nil
}

// Insights compares the filter window with the window of equal length right
// before it. An unbounded filter compares the last week with the one before.
func (s *Service) Insights(ctx context.Context, userID uint, filter analytics.TimeFilter) (*Insights, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now().In(s.loc)
	window := filter
	if window == analytics.FilterNone {
		window = analytics.FilterWeek
	}
	since, _ := window.Since(now)
	length := now.Sub(since)
	prevSince := since.Add(-length)

	current, err := s.calls.GetStats(userID, repository.CallRange{Since: &since})
	if err != nil {
		return nil, err
	}
	previous, err := s.calls.GetStats(userID, repository.CallRange{Since: &prevSince, Until: &since})
	if err != nil {
		return nil, err
	}
	times, err := s.calls.GetStartTimes(userID, repository.CallRange{Since: &since})
	if err != nil {
		return nil, err
	}

	in := &Insights{
		TimeFilter:         string(window),
		TotalCalls:         current.Total,
		PreviousTotalCalls: previous.Total,
		TotalCallsChange:   analytics.PercentageChange(float64(previous.Total), float64(current.Total)),
		ConversionRate:     analytics.ConversionRate(current.Successful, current.Total),
		PreviousConversion: analytics.ConversionRate(previous.Successful, previous.Total),
	}
	in.ConversionRateChange = analytics.PercentageChange(in.PreviousConversion, in.ConversionRate)
	if h, ok := analytics.PeakHour(times, s.loc); ok {
		in.PeakHour = &h
	}
	return in, nil
}

// BuildMonthlyReport computes the aggregates of one YYYY-MM period.
func (s *Service) BuildMonthlyReport(userID uint, period string) (*models.MonthlyReport, error) {
	start, end, err := models.PeriodBounds(period, s.loc)
	if err != nil {
		return nil, err
	}
	r := repository.CallRange{Since: &start, Until: &end}
	agg, err := s.calls.GetStats(userID, r)
	if err != nil {
		return nil, err
	}
	times, err := s.calls.GetStartTimes(userID, r)
	if err != nil {
		return nil, err
	}

	summary := s.policy.Summarize(agg.Total, agg.Active, agg.Completed, agg.Failed, agg.Successful, agg.AverageDuration)
	report := &models.MonthlyReport{
		UserID:           userID,
		Period:           period,
		TotalCalls:       summary.TotalCalls,
		CompletedCalls:   summary.CompletedCalls,
		SuccessfulCalls:  summary.SuccessfulCalls,
		ConversionRate:   summary.ConversionRate,
		AverageDuration:  summary.AverageDuration,
		HoursSaved:       summary.HoursSaved,
		EstimatedRevenue: summary.EstimatedRevenue,
	}
	if h, ok := analytics.PeakHour(times, s.loc); ok {
		report.PeakHour = &h
	}
	return report, nil
}

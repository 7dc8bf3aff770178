// Package analytics holds the pure call statistics rules shared by the
// dashboard, the API and the monthly reports.
package analytics

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/env"
)

// TimeFilter is a lower bound on call start time, relative to now.
type TimeFilter string

const (
	FilterNone    TimeFilter = ""
	FilterHour    TimeFilter = "hour"
	FilterToday   TimeFilter = "today"
	FilterTwoDays TimeFilter = "two_days"
	FilterWeek    TimeFilter = "week"
)

var ErrInvalidTimeFilter = errors.New("invalid time filter")

// ParseTimeFilter accepts the dashboard filter values. "all" and "none" mean unbounded.
func ParseTimeFilter(s string) (TimeFilter, error) {
	switch TimeFilter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterNone, "all", "none":
		return FilterNone, nil
	case FilterHour:
		return FilterHour, nil
	case FilterToday:
		return FilterToday, nil
	case FilterTwoDays:
		return FilterTwoDays, nil
	case FilterWeek:
		return FilterWeek, nil
	}
	return FilterNone, ErrInvalidTimeFilter
}

// Since returns the lower bound for the filter. ok is false when unbounded.
// There is never an upper bound.
func (f TimeFilter) Since(now time.Time) (time.Time, bool) {
	switch f {
	case FilterHour:
		return now.Add(-time.Hour), true
	case FilterToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case FilterTwoDays:
		return now.Add(-48 * time.Hour), true
	case FilterWeek:
		return now.Add(-7 * 24 * time.Hour), true
	}
	return time.Time{}, false
}

// SincePtr is Since shaped for optional query arguments.
func (f TimeFilter) SincePtr(now time.Time) *time.Time {
	t, ok := f.Since(now)
	if !ok {
		return nil
	}
	return &t
}

// Window returns the length of a bounded filter.
func (f TimeFilter) Window(now time.Time) (time.Duration, bool) {
	since, ok := f.Since(now)
	if !ok {
		return 0, false
	}
	return now.Sub(since), true
}

const (
	DefaultMinutesSavedPerCall = 3.0
	DefaultAverageClientValue  = 80.0
)

// Policy carries the business assumptions behind the derived metrics.
type Policy struct {
	MinutesSavedPerCall float64
	AverageClientValue  float64
}

func DefaultPolicy() Policy {
	return Policy{
		MinutesSavedPerCall: DefaultMinutesSavedPerCall,
		AverageClientValue:  DefaultAverageClientValue,
	}
}

// PolicyFromEnv reads STATS_MINUTES_SAVED_PER_CALL and STATS_AVERAGE_CLIENT_VALUE.
func PolicyFromEnv() Policy {
	return Policy{
		MinutesSavedPerCall: env.GetEnvFloat("STATS_MINUTES_SAVED_PER_CALL", DefaultMinutesSavedPerCall),
		AverageClientValue:  env.GetEnvFloat("STATS_AVERAGE_CLIENT_VALUE", DefaultAverageClientValue),
	}
}

// HoursSaved is totalCalls * minutes per call / 60.
func (p Policy) HoursSaved(totalCalls int64) float64 {
	return float64(totalCalls) * p.MinutesSavedPerCall / 60
}

// EstimatedRevenue is successfulCalls * average client value.
func (p Policy) EstimatedRevenue(successfulCalls int64) float64 {
	return float64(successfulCalls) * p.AverageClientValue
}

// SuccessfulCallSQL is the SQL form of IsSuccessful. Calls written before the
// conversion_result column existed only carry status='completed'.
const SuccessfulCallSQL = "(conversion_result = 'converted' OR (status = 'completed' AND (conversion_result IS NULL OR conversion_result = '')))"

// IsSuccessful reports whether a call counts as a conversion.
func IsSuccessful(status string, conversionResult *string) bool {
	if conversionResult != nil && *conversionResult == models.CONVERSION_CONVERTED {
		return true
	}
	return status == models.CALL_STATUS_COMPLETED && (conversionResult == nil || *conversionResult == "")
}

// ConversionRate is successful/total*100 rounded to one decimal, 0 for no calls.
func ConversionRate(successful, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return Round1(float64(successful) / float64(total) * 100)
}

// PercentageChange compares two periods, rounded to one decimal.
// From zero it is 100 when the value grew and 0 otherwise.
func PercentageChange(previous, current float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return Round1((current - previous) / previous * 100)
}

// Round1 rounds half away from zero to one decimal.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// CallPoint is the slice of a call needed for charting.
type CallPoint struct {
	StartTime time.Time
	Status    string
	Duration  *int
}

// Summarize computes the dashboard stats from raw counts.
func (p Policy) Summarize(total, active, completed, failed, successful int64, avgDuration float64) models.CallStats {
	return models.CallStats{
		TotalCalls:       total,
		ActiveCalls:      active,
		CompletedCalls:   completed,
		FailedCalls:      failed,
		SuccessfulCalls:  successful,
		ConversionRate:   ConversionRate(successful, total),
		AverageDuration:  Round1(avgDuration),
		HoursSaved:       p.HoursSaved(total),
		EstimatedRevenue: p.EstimatedRevenue(successful),
	}
}

// BucketByDay groups calls by calendar date in loc. Dates without calls are
// not emitted. The average duration covers completed calls with a duration.
func BucketByDay(points []CallPoint, loc *time.Location) []models.DailyCallStats {
	if loc == nil {
		loc = time.Local
	}

	type bucket struct {
		total, completed int
		durSum, durCount int
	}
	buckets := make(map[string]*bucket)
	for _, p := range points {
		key := p.StartTime.In(loc).Format("2006-01-02")
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.total++
		if p.Status == models.CALL_STATUS_COMPLETED {
			b.completed++
			if p.Duration != nil {
				b.durSum += *p.Duration
				b.durCount++
			}
		}
	}

	out := make([]models.DailyCallStats, 0, len(buckets))
	for date, b := range buckets {
		avg := 0.0
		if b.durCount > 0 {
			avg = Round1(float64(b.durSum) / float64(b.durCount))
		}
		out = append(out, models.DailyCallStats{
			Date:            date,
			TotalCalls:      b.total,
			CompletedCalls:  b.completed,
			AverageDuration: avg,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// PeakHour returns the hour of day (0-23, in loc) with most calls. Ties go to
// the earliest hour. ok is false for no calls.
func PeakHour(times []time.Time, loc *time.Location) (int, bool) {
	if len(times) == 0 {
		return 0, false
	}
	if loc == nil {
		loc = time.Local
	}
	var counts [24]int
	for _, t := range times {
		counts[t.In(loc).Hour()]++
	}
	best := 0
	for h := 1; h < 24; h++ {
		if counts[h] > counts[best] {
			best = h
		}
	}
	return best, true
}

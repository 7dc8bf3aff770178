package models

import (
	"fmt"
	"time"
)

// MonthlyReport is generated once per user and period and never edited.
type MonthlyReport struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;uniqueIndex:ux_monthly_reports_user_period,priority:1" json:"userId"`
	Period           string    `gorm:"type:varchar(7);not null;uniqueIndex:ux_monthly_reports_user_period,priority:2" json:"period"`
	TotalCalls       int64     `json:"totalCalls"`
	CompletedCalls   int64     `json:"completedCalls"`
	SuccessfulCalls  int64     `json:"successfulCalls"`
	ConversionRate   float64   `json:"conversionRate"`
	AverageDuration  float64   `json:"averageDuration"`
	HoursSaved       float64   `json:"hoursSaved"`
	EstimatedRevenue float64   `json:"estimatedRevenue"`
	PeakHour         *int      `json:"peakHour,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// ReportPeriod formats the month containing t as YYYY-MM.
func ReportPeriod(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// PeriodBounds returns [start, end) of a YYYY-MM period in loc.
func PeriodBounds(period string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01", period, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid period %q: %w", period, err)
	}
	return start, start.AddDate(0, 1, 0), nil
}

package models

// DailyCallStats is one row of the call chart. Only dates with calls appear.
type DailyCallStats struct {
	Date            string  `json:"date"`
	TotalCalls      int     `json:"totalCalls"`
	CompletedCalls  int     `json:"completedCalls"`
	AverageDuration float64 `json:"averageDuration"`
}

// CallStats is the dashboard summary for one tenant over a time window.
type CallStats struct {
	TotalCalls       int64   `json:"totalCalls"`
	ActiveCalls      int64   `json:"activeCalls"`
	CompletedCalls   int64   `json:"completedCalls"`
	FailedCalls      int64   `json:"failedCalls"`
	SuccessfulCalls  int64   `json:"successfulCalls"`
	ConversionRate   float64 `json:"conversionRate"`
	AverageDuration  float64 `json:"averageDuration"`
	HoursSaved       float64 `json:"hoursSaved"`
	EstimatedRevenue float64 `json:"estimatedRevenue"`
}

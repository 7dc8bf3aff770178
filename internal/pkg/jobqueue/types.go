package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeCampaignSend      JobType = "campaign_send"
	JobTypeReviewRequestSend JobType = "review_request_send"
	JobTypeMonthlyReport     JobType = "monthly_report"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// CampaignSendPayload delivers one claimed campaign.
type CampaignSendPayload struct {
	UserID     uint `json:"user_id"`
	CampaignID uint `json:"campaign_id"`
}

func (p CampaignSendPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     p.UserID,
		"campaign_id": p.CampaignID,
	}
}

func CampaignSendPayloadFromMap(data map[string]interface{}) (*CampaignSendPayload, error) {
	var payload CampaignSendPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ReviewRequestSendPayload sends one request. A zero RequestID sends every
// due request.
type ReviewRequestSendPayload struct {
	UserID    uint `json:"user_id"`
	RequestID uint `json:"request_id"`
}

func (p ReviewRequestSendPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    p.UserID,
		"request_id": p.RequestID,
	}
}

func ReviewRequestSendPayloadFromMap(data map[string]interface{}) (*ReviewRequestSendPayload, error) {
	var payload ReviewRequestSendPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// MonthlyReportPayload generates the report of Period (YYYY-MM). A zero
// UserID generates it for every user.
type MonthlyReportPayload struct {
	UserID uint   `json:"user_id"`
	Period string `json:"period"`
}

func (p MonthlyReportPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id": p.UserID,
		"period":  p.Period,
	}
}

func MonthlyReportPayloadFromMap(data map[string]interface{}) (*MonthlyReportPayload, error) {
	var payload MonthlyReportPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Payloads round-trip through JSON in Redis, so numbers come back as float64.
func decodePayload(data map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}

package models

import (
	"time"
)

const (
	PLATFORM_GOOGLE      = "google"
	PLATFORM_FACEBOOK    = "facebook"
	PLATFORM_TRIPADVISOR = "tripadvisor"

	REVIEW_REQUEST_PENDING   = "pending"
	REVIEW_REQUEST_SENT      = "sent"
	REVIEW_REQUEST_CLICKED   = "clicked"
	REVIEW_REQUEST_COMPLETED = "completed"
	REVIEW_REQUEST_FAILED    = "failed"

	REVIEW_ALERT_NEGATIVE = "negative_review"

	SYNC_SUCCESS = "success"
	SYNC_FAILED  = "failed"

	DefaultAlertThreshold = 3
)

// IsValidPlatform reports whether p is a supported review platform.
func IsValidPlatform(p string) bool {
	switch p {
	case PLATFORM_GOOGLE, PLATFORM_FACEBOOK, PLATFORM_TRIPADVISOR:
		return true
	}
	return false
}

// ReviewConfig holds the per tenant reputation settings.
type ReviewConfig struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;uniqueIndex" json:"userId"`
	BusinessName      string    `gorm:"type:varchar(200)" json:"businessName" validate:"max=200"`
	GoogleReviewURL   string    `gorm:"type:varchar(500)" json:"googleReviewUrl" validate:"omitempty,url,max=500"`
	FacebookPageURL   string    `gorm:"type:varchar(500)" json:"facebookPageUrl" validate:"omitempty,url,max=500"`
	TripadvisorURL    string    `gorm:"type:varchar(500)" json:"tripadvisorUrl" validate:"omitempty,url,max=500"`
	PreferredPlatform string    `gorm:"type:varchar(20);default:'google'" json:"preferredPlatform" validate:"omitempty,oneof=google facebook tripadvisor"`
	AlertThreshold    int       `gorm:"default:3" json:"alertThreshold" validate:"min=1,max=5"`
	AutoRequest       bool      `gorm:"default:false" json:"autoRequest"`
	RequestDelayHours int       `gorm:"default:2" json:"requestDelayHours" validate:"min=0,max=720"`
	EmailSubject      string    `gorm:"type:varchar(255)" json:"emailSubject" validate:"max=255"`
	EmailMessage      string    `gorm:"type:text" json:"emailMessage"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// ReviewURL returns the link customers are redirected to.
func (c *ReviewConfig) ReviewURL() string {
	switch c.PreferredPlatform {
	case PLATFORM_FACEBOOK:
		if c.FacebookPageURL != "" {
			return c.FacebookPageURL
		}
	case PLATFORM_TRIPADVISOR:
		if c.TripadvisorURL != "" {
			return c.TripadvisorURL
		}
	}
	if c.GoogleReviewURL != "" {
		return c.GoogleReviewURL
	}
	if c.FacebookPageURL != "" {
		return c.FacebookPageURL
	}
	return c.TripadvisorURL
}

// Threshold returns the rating at or below which an alert is raised.
func (c *ReviewConfig) Threshold() int {
	if c == nil || c.AlertThreshold <= 0 {
		return DefaultAlertThreshold
	}
	return c.AlertThreshold
}

type ReviewIncentive struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"userId"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title" validate:"required,max=200"`
	Description string    `gorm:"type:text" json:"description"`
	Type        string    `gorm:"type:varchar(30);default:'discount'" json:"type" validate:"oneof=discount gift other"`
	Value       string    `gorm:"type:varchar(100)" json:"value" validate:"max=100"`
	IsActive    bool      `gorm:"default:true" json:"isActive"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

type ReviewRequest struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"not null;index" json:"userId"`
	CallID        *uint      `gorm:"index" json:"callId,omitempty"`
	IncentiveID   *uint      `json:"incentiveId,omitempty"`
	CustomerName  string     `gorm:"type:varchar(150)" json:"customerName" validate:"max=150"`
	CustomerEmail string     `gorm:"type:varchar(200)" json:"customerEmail" validate:"omitempty,email,max=200"`
	CustomerPhone string     `gorm:"type:varchar(30)" json:"customerPhone" validate:"max=30"`
	ShortCode     string     `gorm:"type:varchar(16);not null;uniqueIndex" json:"shortCode"`
	Status        string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Error         string     `gorm:"type:text" json:"error,omitempty"`
	SendAfter     *time.Time `json:"sendAfter,omitempty"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	ClickedAt     *time.Time `json:"clickedAt,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

type Review struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;uniqueIndex:ux_reviews_user_platform_external,priority:1;index" json:"userId"`
	SourceID    *uint      `gorm:"index" json:"sourceId,omitempty"`
	Platform    string     `gorm:"type:varchar(20);not null;uniqueIndex:ux_reviews_user_platform_external,priority:2" json:"platform"`
	ExternalID  string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_reviews_user_platform_external,priority:3" json:"externalId"`
	AuthorName  string     `gorm:"type:varchar(150)" json:"authorName"`
	Rating      int        `gorm:"not null" json:"rating"`
	Content     string     `gorm:"type:text" json:"content"`
	PublishedAt *time.Time `gorm:"index" json:"publishedAt,omitempty"`
	Response    string     `gorm:"type:text" json:"response,omitempty"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

type ReviewAlert struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	ReviewID  uint      `gorm:"not null;index" json:"reviewId"`
	Type      string    `gorm:"type:varchar(30);not null" json:"type"`
	Message   string    `gorm:"type:text" json:"message"`
	IsRead    bool      `gorm:"default:false" json:"isRead"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// ReviewSource is a platform listing synced into the review inbox.
type ReviewSource struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"userId"`
	Platform    string     `gorm:"type:varchar(20);not null" json:"platform" validate:"oneof=google facebook tripadvisor"`
	ExternalRef string     `gorm:"type:varchar(255);not null" json:"externalRef" validate:"required,max=255"`
	DisplayName string     `gorm:"type:varchar(200)" json:"displayName" validate:"max=200"`
	IsActive    bool       `gorm:"default:true" json:"isActive"`
	LastSyncAt  *time.Time `json:"lastSyncAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

type ReviewSyncLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"userId"`
	SourceID   uint       `gorm:"not null;index" json:"sourceId"`
	Platform   string     `gorm:"type:varchar(20);not null" json:"platform"`
	Status     string     `gorm:"type:varchar(20);not null" json:"status"`
	Fetched    int        `json:"fetched"`
	Inserted   int        `json:"inserted"`
	Updated    int        `json:"updated"`
	Error      string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

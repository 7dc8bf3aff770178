package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	NOTIFICATION_DAILY_SUMMARY          = "daily_summary"
	NOTIFICATION_FAILED_CALLS           = "failed_calls"
	NOTIFICATION_SUBSCRIPTION_ACTIVATED = "subscription_activated"
	NOTIFICATION_SUBSCRIPTION_CANCELED  = "subscription_canceled"
	NOTIFICATION_PAYMENT_FAILED         = "payment_failed"
	NOTIFICATION_TRIAL_ENDING           = "trial_ending"
	NOTIFICATION_NEGATIVE_REVIEW        = "negative_review"
	NOTIFICATION_NOSHOW_CHARGED         = "noshow_charged"
	NOTIFICATION_CAMPAIGN_SENT          = "campaign_sent"
	NOTIFICATION_MONTHLY_REPORT         = "monthly_report"
)

type Notification struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"userId"`
	Type        string    `gorm:"type:varchar(50);not null" json:"type"`
	Title       string    `gorm:"type:varchar(200)" json:"title"`
	Message     string    `gorm:"type:text" json:"message"`
	IsRead      bool      `gorm:"default:false;index" json:"isRead"`
	ReferenceID uint      `json:"referenceId,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// CreateNotification stores a new unread notification for the user.
func CreateNotification(db *gorm.DB, userID uint, notificationType, title, message string, referenceID uint) error {
	notification := Notification{
		UserID:      userID,
		Type:        notificationType,
		Title:       title,
		Message:     message,
		ReferenceID: referenceID,
		IsRead:      false,
	}

	return db.Create(&notification).Error
}

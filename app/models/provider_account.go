package models

import "time"

// ProviderAccount links an OAuth identity (Google) to a SpeedAI account.
type ProviderAccount struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;index" json:"userId"`
	Provider       string    `gorm:"index:ux_provider_uid,unique;type:varchar(50)" json:"provider"`
	ProviderUserID string    `gorm:"index:ux_provider_uid,unique;type:varchar(191)" json:"providerUserId"`
	Email          string    `gorm:"type:varchar(200)" json:"email"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

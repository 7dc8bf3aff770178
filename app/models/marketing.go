package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	CHANNEL_EMAIL = "email"
	CHANNEL_SMS   = "sms"
	CHANNEL_BOTH  = "both"

	CAMPAIGN_DRAFT     = "draft"
	CAMPAIGN_SCHEDULED = "scheduled"
	CAMPAIGN_SENDING   = "sending"
	CAMPAIGN_SENT      = "sent"
	CAMPAIGN_FAILED    = "failed"

	TARGET_ALL     = "all"
	TARGET_SEGMENT = "segment"
	TARGET_FILTERS = "filters"

	SEND_PENDING = "pending"
	SEND_SENT    = "sent"
	SEND_FAILED  = "failed"
)

type MarketingContact struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         uint           `gorm:"not null;index" json:"userId"`
	FirstName      string         `gorm:"type:varchar(100)" json:"firstName" validate:"max=100"`
	LastName       string         `gorm:"type:varchar(100)" json:"lastName" validate:"max=100"`
	Email          string         `gorm:"type:varchar(200);index" json:"email" validate:"omitempty,email,max=200"`
	Phone          string         `gorm:"type:varchar(30)" json:"phone" validate:"max=30"`
	OptInEmail     bool           `gorm:"default:false" json:"optInEmail"`
	OptInSms       bool           `gorm:"default:false" json:"optInSms"`
	Tags           datatypes.JSON `json:"tags,omitempty"`
	Source         string         `gorm:"type:varchar(50)" json:"source,omitempty" validate:"max=50"`
	UnsubscribedAt *time.Time     `json:"unsubscribedAt,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TagList decodes the tags column.
func (c *MarketingContact) TagList() []string {
	return decodeStringList(c.Tags)
}

// SetTags stores tags trimmed and lowercased.
func (c *MarketingContact) SetTags(tags []string) {
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			clean = append(clean, t)
		}
	}
	c.Tags = encodeStringList(clean)
}

// AcceptsChannel reports whether the contact opted in and can be reached on channel.
func (c *MarketingContact) AcceptsChannel(channel string) bool {
	switch channel {
	case CHANNEL_EMAIL:
		return c.OptInEmail && c.Email != ""
	case CHANNEL_SMS:
		return c.OptInSms && c.Phone != ""
	}
	return false
}

// FullName joins first and last name.
func (c *MarketingContact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ContactFilter selects contacts. Zero fields do not constrain.
type ContactFilter struct {
	Tags          []string   `json:"tags,omitempty"`
	Source        string     `json:"source,omitempty"`
	Channel       string     `json:"channel,omitempty"`
	CreatedAfter  *time.Time `json:"createdAfter,omitempty"`
	CreatedBefore *time.Time `json:"createdBefore,omitempty"`
	Search        string     `json:"search,omitempty"`
}

// ParseContactFilter decodes a filter stored in a JSON column.
func ParseContactFilter(raw datatypes.JSON) (ContactFilter, error) {
	var f ContactFilter
	if len(raw) == 0 {
		return f, nil
	}
	err := json.Unmarshal(raw, &f)
	return f, err
}

// EncodeContactFilter stores a filter in a JSON column.
func EncodeContactFilter(f ContactFilter) (datatypes.JSON, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

type MarketingSegment struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index" json:"userId"`
	Name        string         `gorm:"type:varchar(150);not null" json:"name" validate:"required,max=150"`
	Description string         `gorm:"type:text" json:"description,omitempty"`
	Filters     datatypes.JSON `json:"filters,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

type MarketingCampaign struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"not null;index" json:"userId"`
	Name            string         `gorm:"type:varchar(200);not null" json:"name" validate:"required,max=200"`
	Channel         string         `gorm:"type:varchar(10);not null;default:'email'" json:"channel" validate:"oneof=email sms"`
	Subject         string         `gorm:"type:varchar(255)" json:"subject" validate:"max=255"`
	Content         string         `gorm:"type:longtext" json:"content"`
	TargetType      string         `gorm:"type:varchar(20);not null;default:'all'" json:"targetType" validate:"oneof=all segment filters"`
	SegmentID       *uint          `json:"segmentId,omitempty"`
	Filters         datatypes.JSON `json:"filters,omitempty"`
	Status          string         `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	ScheduledAt     *time.Time     `gorm:"index" json:"scheduledAt,omitempty"`
	SentAt          *time.Time     `json:"sentAt,omitempty"`
	TotalRecipients int            `gorm:"default:0" json:"totalRecipients"`
	SentCount       int            `gorm:"default:0" json:"sentCount"`
	FailedCount     int            `gorm:"default:0" json:"failedCount"`
	OpenCount       int            `gorm:"default:0" json:"openCount"`
	ClickCount      int            `gorm:"default:0" json:"clickCount"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// IsEditable reports whether the campaign has not started sending.
func (c *MarketingCampaign) IsEditable() bool {
	return c.Status == CAMPAIGN_DRAFT || c.Status == CAMPAIGN_SCHEDULED
}

type MarketingSend struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"not null;index" json:"userId"`
	CampaignID        uint       `gorm:"not null;index;uniqueIndex:ux_marketing_sends_campaign_contact,priority:1" json:"campaignId"`
	ContactID         uint       `gorm:"not null;index;uniqueIndex:ux_marketing_sends_campaign_contact,priority:2" json:"contactId"`
	Channel           string     `gorm:"type:varchar(10);not null" json:"channel"`
	TrackingID        string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"trackingId"`
	Status            string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Error             string     `gorm:"type:text" json:"error,omitempty"`
	ProviderMessageID string     `gorm:"type:varchar(191)" json:"providerMessageId,omitempty"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	OpenedAt          *time.Time `json:"openedAt,omitempty"`
	ClickedAt         *time.Time `json:"clickedAt,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

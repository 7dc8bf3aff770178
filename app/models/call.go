package models

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

const (
	CALL_STATUS_ACTIVE    = "active"
	CALL_STATUS_COMPLETED = "completed"
	CALL_STATUS_FAILED    = "failed"
	CALL_STATUS_CANCELED  = "canceled"
	CALL_STATUS_NO_ANSWER = "no_answer"

	CONVERSION_CONVERTED     = "converted"
	CONVERSION_NOT_CONVERTED = "not_converted"
)

// ErrCallFinalized is returned when a terminal call would have its core fields changed.
var ErrCallFinalized = errors.New("call is finalized, only enrichment fields can change")

type Call struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	UserID            uint           `gorm:"not null;index;index:idx_calls_user_start,priority:1;uniqueIndex:ux_calls_user_external,priority:1" json:"userId"`
	ExternalID        *string        `gorm:"type:varchar(100);uniqueIndex:ux_calls_user_external,priority:2" json:"externalId,omitempty"`
	PhoneNumber       string         `gorm:"type:varchar(30);not null" json:"phoneNumber" validate:"required,max=30"`
	StartTime         time.Time      `gorm:"not null;index:idx_calls_user_start,priority:2" json:"startTime"`
	EndTime           *time.Time     `json:"endTime,omitempty"`
	Duration          *int           `json:"duration,omitempty"`
	Status            string         `gorm:"type:varchar(20);not null;default:'active';index" json:"status" validate:"oneof=active completed failed canceled no_answer"`
	ConversionResult  *string        `gorm:"type:varchar(30)" json:"conversionResult,omitempty"`
	Summary           string         `gorm:"type:text" json:"summary,omitempty"`
	Transcript        string         `gorm:"type:text" json:"transcript,omitempty"`
	ClientName        string         `gorm:"type:varchar(150)" json:"clientName,omitempty"`
	ClientEmail       string         `gorm:"type:varchar(200)" json:"clientEmail,omitempty"`
	ClientMood        string         `gorm:"type:varchar(50)" json:"clientMood,omitempty"`
	AppointmentDate   *time.Time     `gorm:"index" json:"appointmentDate,omitempty"`
	BookingConfidence *float64       `json:"bookingConfidence,omitempty"`
	Keywords          datatypes.JSON `json:"keywords,omitempty"`
	Tags              datatypes.JSON `json:"tags,omitempty"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`

	startTimeSet bool
}

// ExplicitStartTime returns the start time when the caller supplied one rather
// than relying on the receive time.
func (c *Call) ExplicitStartTime() *time.Time {
	if !c.startTimeSet {
		return nil
	}
	t := c.StartTime
	return &t
}

// IsTerminalCallStatus reports whether a call in this status is finished.
func IsTerminalCallStatus(status string) bool {
	switch status {
	case CALL_STATUS_COMPLETED, CALL_STATUS_FAILED, CALL_STATUS_CANCELED, CALL_STATUS_NO_ANSWER:
		return true
	}
	return false
}

// IsValidCallStatus reports whether s is a known call status.
func IsValidCallStatus(s string) bool {
	return s == CALL_STATUS_ACTIVE || IsTerminalCallStatus(s)
}

// IsTerminal reports whether the call has reached a terminal status.
func (c *Call) IsTerminal() bool {
	return IsTerminalCallStatus(c.Status)
}

// KeywordList decodes the keywords column.
func (c *Call) KeywordList() []string {
	return decodeStringList(c.Keywords)
}

// TagList decodes the tags column.
func (c *Call) TagList() []string {
	return decodeStringList(c.Tags)
}

// CallUpdate carries a partial update. Nil fields are left untouched.
type CallUpdate struct {
	PhoneNumber       *string    `json:"phoneNumber" validate:"omitempty,max=30"`
	StartTime         *time.Time `json:"startTime"`
	EndTime           *time.Time `json:"endTime"`
	Duration          *int       `json:"duration" validate:"omitempty,min=0"`
	Status            *string    `json:"status" validate:"omitempty,oneof=active completed failed canceled no_answer"`
	ConversionResult  *string    `json:"conversionResult" validate:"omitempty,max=30"`
	Summary           *string    `json:"summary"`
	Transcript        *string    `json:"transcript"`
	ClientName        *string    `json:"clientName" validate:"omitempty,max=150"`
	ClientEmail       *string    `json:"clientEmail" validate:"omitempty,max=200"`
	ClientMood        *string    `json:"clientMood" validate:"omitempty,max=50"`
	AppointmentDate   *time.Time `json:"appointmentDate"`
	BookingConfidence *float64   `json:"bookingConfidence"`
	Keywords          []string   `json:"keywords"`
	Tags              []string   `json:"tags"`
}

func (u CallUpdate) touchesCoreFields() bool {
	return u.PhoneNumber != nil || u.StartTime != nil || u.EndTime != nil || u.Duration != nil || u.Status != nil
}

// Apply merges the update into the call. Once the call is terminal only
// enrichment fields (summary, transcript, client data, appointment,
// confidence, keywords, tags, conversion result) may be written.
func (c *Call) Apply(u CallUpdate) error {
	if c.IsTerminal() && u.touchesCoreFields() {
		return ErrCallFinalized
	}

	if u.PhoneNumber != nil {
		c.PhoneNumber = *u.PhoneNumber
	}
	if u.StartTime != nil {
		c.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		c.EndTime = u.EndTime
	}
	if u.Duration != nil {
		c.Duration = u.Duration
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.ConversionResult != nil {
		c.ConversionResult = u.ConversionResult
	}
	if u.Summary != nil {
		c.Summary = *u.Summary
	}
	if u.Transcript != nil {
		c.Transcript = *u.Transcript
	}
	if u.ClientName != nil {
		c.ClientName = *u.ClientName
	}
	if u.ClientEmail != nil {
		c.ClientEmail = *u.ClientEmail
	}
	if u.ClientMood != nil {
		c.ClientMood = *u.ClientMood
	}
	if u.AppointmentDate != nil {
		c.AppointmentDate = u.AppointmentDate
	}
	if u.BookingConfidence != nil {
		c.BookingConfidence = u.BookingConfidence
	}
	if u.Keywords != nil {
		c.Keywords = encodeStringList(u.Keywords)
	}
	if u.Tags != nil {
		c.Tags = encodeStringList(u.Tags)
	}

	// Fill the duration from the time range when the workflow only sent an end time.
	if c.Duration == nil && c.EndTime != nil && !c.StartTime.IsZero() {
		d := int(c.EndTime.Sub(c.StartTime).Seconds())
		if d >= 0 {
			c.Duration = &d
		}
	}
	return nil
}

// CallInput is the body that creates a call.
type CallInput struct {
	ExternalID        string     `json:"externalId" validate:"max=100"`
	PhoneNumber       string     `json:"phoneNumber" validate:"required,max=30"`
	StartTime         *time.Time `json:"startTime"`
	EndTime           *time.Time `json:"endTime"`
	Duration          *int       `json:"duration" validate:"omitempty,min=0"`
	Status            string     `json:"status" validate:"omitempty,oneof=active completed failed canceled no_answer"`
	ConversionResult  *string    `json:"conversionResult" validate:"omitempty,max=30"`
	Summary           string     `json:"summary"`
	Transcript        string     `json:"transcript"`
	ClientName        string     `json:"clientName" validate:"max=150"`
	ClientEmail       string     `json:"clientEmail" validate:"max=200"`
	ClientMood        string     `json:"clientMood" validate:"max=50"`
	AppointmentDate   *time.Time `json:"appointmentDate"`
	BookingConfidence *float64   `json:"bookingConfidence"`
	Keywords          []string   `json:"keywords"`
	Tags              []string   `json:"tags"`
}

// ToCall builds the call owned by userID. A missing start time is now and a
// missing status is active.
func (in CallInput) ToCall(userID uint, now time.Time) *Call {
	c := &Call{
		UserID:            userID,
		PhoneNumber:       in.PhoneNumber,
		StartTime:         now,
		Status:            in.Status,
		ConversionResult:  in.ConversionResult,
		Summary:           in.Summary,
		Transcript:        in.Transcript,
		ClientName:        in.ClientName,
		ClientEmail:       in.ClientEmail,
		ClientMood:        in.ClientMood,
		AppointmentDate:   in.AppointmentDate,
		BookingConfidence: in.BookingConfidence,
		Keywords:          encodeStringList(in.Keywords),
		Tags:              encodeStringList(in.Tags),
	}
	if in.ExternalID != "" {
		ext := in.ExternalID
		c.ExternalID = &ext
	}
	if in.StartTime != nil {
		c.StartTime = *in.StartTime
		c.startTimeSet = true
	}
	if c.Status == "" {
		c.Status = CALL_STATUS_ACTIVE
	}
	c.EndTime = in.EndTime
	c.Duration = in.Duration
	if c.Duration == nil && c.EndTime != nil {
		if d := int(c.EndTime.Sub(c.StartTime).Seconds()); d >= 0 {
			c.Duration = &d
		}
	}
	return c
}

func encodeStringList(values []string) datatypes.JSON {
	if values == nil {
		return nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func decodeStringList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// EncodeStringList stores a string slice in a JSON column.
func EncodeStringList(values []string) datatypes.JSON {
	return encodeStringList(values)
}

// DecodeStringList reads a string slice from a JSON column.
func DecodeStringList(raw datatypes.JSON) []string {
	return decodeStringList(raw)
}

package marketing

import (
	"errors"
	"strings"

	"github.com/speedai/speedai/app/models"
)

var ErrNoChannelSelected = errors.New("no channel selected")

// ChannelFor maps the revoked consents to the unsubscribe channel.
func ChannelFor(email, sms bool) (string, error) {
	switch {
	case email && sms:
		return models.CHANNEL_BOTH, nil
	case email:
		return models.CHANNEL_EMAIL, nil
	case sms:
		return models.CHANNEL_SMS, nil
	default:
		return "", ErrNoChannelSelected
	}
}

// UnsubscribeInfo is what the public unsubscribe page shows.
type UnsubscribeInfo struct {
	TrackingID   string `json:"trackingId"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	OptInEmail   bool   `json:"optInEmail"`
	OptInSms     bool   `json:"optInSms"`
	Unsubscribed bool   `json:"unsubscribed"`
}

// LookupUnsubscribe resolves a tracking id to the contact opt-in flags.
// Contact details are masked since the tracking id is the only credential.
func (s *Service) LookupUnsubscribe(trackingID string) (*UnsubscribeInfo, error) {
	send, err := s.repo.GetSendByTrackingID(trackingID)
	if err != nil {
		return nil, err
	}
	contact, err := s.repo.GetContact(send.UserID, send.ContactID)
	if err != nil {
		return nil, err
	}
	return &UnsubscribeInfo{
		TrackingID:   trackingID,
		Email:        MaskEmail(contact.Email),
		Phone:        MaskPhone(contact.Phone),
		OptInEmail:   contact.OptInEmail,
		OptInSms:     contact.OptInSms,
		Unsubscribed: contact.UnsubscribedAt != nil,
	}, nil
}

// Unsubscribe revokes the selected consents of the contact behind trackingID.
func (s *Service) Unsubscribe(trackingID string, email, sms bool) (string, error) {
	channel, err := ChannelFor(email, sms)
	if err != nil {
		return "", err
	}
	send, err := s.repo.GetSendByTrackingID(trackingID)
	if err != nil {
		return "", err
	}
	if err := s.repo.ApplyUnsubscribe(send.UserID, send.ContactID, channel, s.now()); err != nil {
		return "", err
	}
	return channel, nil
}

// MaskEmail keeps the first letter of the local part.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return ""
	}
	return email[:1] + "***" + email[at:]
}

// MaskPhone keeps the last two digits.
func MaskPhone(phone string) string {
	if len(phone) < 4 {
		return ""
	}
	return strings.Repeat("*", len(phone)-2) + phone[len(phone)-2:]
}

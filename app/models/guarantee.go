package models

import (
	"errors"
	"fmt"
	"time"
)

const (
	GUARANTEE_PENDING       = "pending"
	GUARANTEE_CARD_SAVED    = "card_saved"
	GUARANTEE_HONORED       = "honored"
	GUARANTEE_NO_SHOW       = "no_show"
	GUARANTEE_CHARGED       = "charged"
	GUARANTEE_CHARGE_FAILED = "charge_failed"
	GUARANTEE_CANCELED      = "canceled"

	CHARGE_SUCCEEDED = "succeeded"
	CHARGE_FAILED    = "failed"
)

var ErrInvalidGuaranteeTransition = errors.New("invalid guarantee status transition")

var guaranteeTransitions = map[string][]string{
	GUARANTEE_PENDING:       {GUARANTEE_CARD_SAVED, GUARANTEE_CANCELED},
	GUARANTEE_CARD_SAVED:    {GUARANTEE_HONORED, GUARANTEE_NO_SHOW, GUARANTEE_CANCELED},
	GUARANTEE_NO_SHOW:       {GUARANTEE_CHARGED, GUARANTEE_CHARGE_FAILED},
	GUARANTEE_CHARGE_FAILED: {GUARANTEE_CHARGED, GUARANTEE_CHARGE_FAILED},
}

// GuaranteeSession is a reservation protected by a saved card.
type GuaranteeSession struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	UserID                uint       `gorm:"not null;index" json:"userId"`
	CallID                *uint      `gorm:"index" json:"callId,omitempty"`
	CustomerName          string     `gorm:"type:varchar(150);not null" json:"customerName" validate:"required,max=150"`
	CustomerEmail         string     `gorm:"type:varchar(200)" json:"customerEmail" validate:"omitempty,email,max=200"`
	CustomerPhone         string     `gorm:"type:varchar(30)" json:"customerPhone" validate:"max=30"`
	ReservationDate       time.Time  `gorm:"not null;index" json:"reservationDate" validate:"required"`
	PartySize             int        `gorm:"not null;default:1" json:"partySize" validate:"min=1,max=100"`
	AmountPerPerson       int64      `gorm:"not null" json:"amountPerPerson" validate:"min=0"`
	Currency              string     `gorm:"type:varchar(3);not null;default:'eur'" json:"currency" validate:"len=3"`
	StripeCustomerID      string     `gorm:"type:varchar(100)" json:"stripeCustomerId,omitempty"`
	StripePaymentMethodID string     `gorm:"type:varchar(100)" json:"stripePaymentMethodId,omitempty"`
	Status                string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Notes                 string     `gorm:"type:text" json:"notes,omitempty"`
	CardSavedAt           *time.Time `json:"cardSavedAt,omitempty"`
	ResolvedAt            *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// ChargeAmount is the no-show penalty in the smallest currency unit.
func (s *GuaranteeSession) ChargeAmount() int64 {
	return s.AmountPerPerson * int64(s.PartySize)
}

// HasCard reports whether a payment method is attached.
func (s *GuaranteeSession) HasCard() bool {
	return s.StripeCustomerID != "" && s.StripePaymentMethodID != ""
}

// CanTransition reports whether moving to next is allowed.
func (s *GuaranteeSession) CanTransition(next string) bool {
	for _, allowed := range guaranteeTransitions[s.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the session to next or returns ErrInvalidGuaranteeTransition.
func (s *GuaranteeSession) TransitionTo(next string, now time.Time) error {
	if !s.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidGuaranteeTransition, s.Status, next)
	}
	s.Status = next
	switch next {
	case GUARANTEE_CARD_SAVED:
		s.CardSavedAt = &now
	case GUARANTEE_HONORED, GUARANTEE_NO_SHOW, GUARANTEE_CANCELED, GUARANTEE_CHARGED:
		s.ResolvedAt = &now
	}
	return nil
}

// NoshowCharge records one payment attempt for a no-show.
type NoshowCharge struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	UserID                uint      `gorm:"not null;index" json:"userId"`
	SessionID             uint      `gorm:"not null;index" json:"sessionId"`
	Amount                int64     `gorm:"not null" json:"amount"`
	Currency              string    `gorm:"type:varchar(3);not null" json:"currency"`
	StripePaymentIntentID string    `gorm:"type:varchar(100)" json:"stripePaymentIntentId,omitempty"`
	Status                string    `gorm:"type:varchar(20);not null" json:"status"`
	FailureReason         string    `gorm:"type:text" json:"failureReason,omitempty"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

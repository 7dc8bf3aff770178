// Package guarantee runs the no-show card guarantee: reservations protected by
// a saved card and charged off-session when the customer does not show up.
package guarantee

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/billing"
	"github.com/speedai/speedai/internal/pkg/mail"
	"github.com/speedai/speedai/internal/pkg/metrics"
)

var (
	ErrNoCard           = errors.New("no card attached to the session")
	ErrNothingToCharge  = errors.New("charge amount is zero")
	ErrSessionNotNoShow = errors.New("only no-show sessions can be charged")
	ErrSessionLocked    = errors.New("session can no longer be edited")
)

// TemplateRenderer renders a named email template into subject and body.
type TemplateRenderer interface {
	Render(name string, data map[string]interface{}) (string, string, error)
}

type Config struct {
	Repo          repository.GuaranteeRepository
	Notifications repository.NotificationRepository
	Payments      billing.Payments
	Email         mail.Sender
	Templates     TemplateRenderer
	BusinessName  func(userID uint) string
}

type Service struct {
	repo          repository.GuaranteeRepository
	notifications repository.NotificationRepository
	payments      billing.Payments
	email         mail.Sender
	templates     TemplateRenderer
	businessName  func(userID uint) string
	now           func() time.Time
}

func NewService(cfg Config) *Service {
	return &Service{
		repo:          cfg.Repo,
		notifications: cfg.Notifications,
		payments:      cfg.Payments,
		email:         cfg.Email,
		templates:     cfg.Templates,
		businessName:  cfg.BusinessName,
		now:           time.Now,
	}
}

type SessionInput struct {
	CallID          *uint     `json:"callId"`
	CustomerName    string    `json:"customerName" validate:"required,max=150"`
	CustomerEmail   string    `json:"customerEmail" validate:"omitempty,email,max=200"`
	CustomerPhone   string    `json:"customerPhone" validate:"max=30"`
	ReservationDate time.Time `json:"reservationDate" validate:"required"`
	PartySize       int       `json:"partySize" validate:"min=0,max=100"`
	AmountPerPerson int64     `json:"amountPerPerson" validate:"min=0"`
	Currency        string    `json:"currency" validate:"omitempty,len=3"`
	Notes           string    `json:"notes"`
}

func (in SessionInput) apply(s *models.GuaranteeSession) {
	s.CallID = in.CallID
	s.CustomerName = strings.TrimSpace(in.CustomerName)
	s.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	s.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	s.ReservationDate = in.ReservationDate
	s.PartySize = in.PartySize
	if s.PartySize < 1 {
		s.PartySize = 1
	}
	s.AmountPerPerson = in.AmountPerPerson
	s.Currency = strings.ToLower(strings.TrimSpace(in.Currency))
	if s.Currency == "" {
		s.Currency = "eur"
	}
	s.Notes = in.Notes
}

func (s *Service) CreateSession(userID uint, in SessionInput) (*models.GuaranteeSession, error) {
	session := &models.GuaranteeSession{UserID: userID, Status: models.GUARANTEE_PENDING}
	in.apply(session)
	if err := s.repo.CreateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateSession edits the reservation while it is still open.
func (s *Service) UpdateSession(userID, id uint, in SessionInput) (*models.GuaranteeSession, error) {
	session, err := s.repo.GetSession(userID, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.GUARANTEE_PENDING && session.Status != models.GUARANTEE_CARD_SAVED {
		return nil, ErrSessionLocked
	}
	in.apply(session)
	if err := s.repo.UpdateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// SetupCard creates the Stripe customer of the session and returns the setup
// intent secret used by the card form.
func (s *Service) SetupCard(ctx context.Context, userID, id uint) (*billing.CardSetup, error) {
	if s.payments == nil {
		return nil, billing.ErrStripeNotConfigured
	}
	session, err := s.repo.GetSession(userID, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.GUARANTEE_PENDING {
		return nil, ErrSessionLocked
	}
	setup, err := s.payments.SetupCard(ctx, session.CustomerEmail, session.CustomerName)
	if err != nil {
		return nil, err
	}
	session.StripeCustomerID = setup.CustomerID
	if err := s.repo.UpdateSession(session); err != nil {
		return nil, err
	}
	return setup, nil
}

// AttachCard stores the saved payment method and moves the session to card_saved.
func (s *Service) AttachCard(userID, id uint, customerID, paymentMethodID string) (*models.GuaranteeSession, error) {
	session, err := s.repo.GetSession(userID, id)
	if err != nil {
		return nil, err
	}
	if customerID != "" {
		session.StripeCustomerID = customerID
	}
	session.StripePaymentMethodID = paymentMethodID
	if !session.HasCard() {
		return nil, ErrNoCard
	}
	if err := session.TransitionTo(models.GUARANTEE_CARD_SAVED, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Transition applies a manual status change: honored, no_show or canceled.
func (s *Service) Transition(userID, id uint, next string) (*models.GuaranteeSession, error) {
	switch next {
	case models.GUARANTEE_HONORED, models.GUARANTEE_NO_SHOW, models.GUARANTEE_CANCELED:
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidGuaranteeTransition, next)
	}
	session, err := s.repo.GetSession(userID, id)
	if err != nil {
		return nil, err
	}
	if err := session.TransitionTo(next, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// ChargeNoShow charges the no-show penalty off-session. Every attempt is
// recorded; a declined card leaves the session in charge_failed so it can be
// retried with a new idempotency key.
func (s *Service) ChargeNoShow(ctx context.Context, userID, id uint) (*models.NoshowCharge, error) {
	if s.payments == nil {
		return nil, billing.ErrStripeNotConfigured
	}
	session, err := s.repo.GetSession(userID, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.GUARANTEE_NO_SHOW && session.Status != models.GUARANTEE_CHARGE_FAILED {
		return nil, ErrSessionNotNoShow
	}
	if !session.HasCard() {
		return nil, ErrNoCard
	}
	amount := session.ChargeAmount()
	if amount <= 0 {
		return nil, ErrNothingToCharge
	}

	previous, err := s.repo.ListCharges(userID, session.ID)
	if err != nil {
		return nil, err
	}
	result, chargeErr := s.payments.Charge(ctx, billing.ChargeRequest{
		CustomerID:      session.StripeCustomerID,
		PaymentMethodID: session.StripePaymentMethodID,
		Amount:          amount,
		Currency:        session.Currency,
		Description:     fmt.Sprintf("Non-présentation du %s", session.ReservationDate.Format("02/01/2006 15:04")),
		IdempotencyKey:  billing.IdempotencyKeyForSession(session.ID, len(previous)+1),
		Metadata: map[string]string{
			"user_id":    fmt.Sprint(userID),
			"session_id": fmt.Sprint(session.ID),
		},
	})

	charge := &models.NoshowCharge{
		UserID:    userID,
		SessionID: session.ID,
		Amount:    amount,
		Currency:  session.Currency,
		Status:    models.CHARGE_FAILED,
	}
	switch {
	case chargeErr != nil:
		charge.FailureReason = chargeErr.Error()
	case result.Succeeded:
		charge.Status = models.CHARGE_SUCCEEDED
		charge.StripePaymentIntentID = result.PaymentIntentID
	default:
		charge.StripePaymentIntentID = result.PaymentIntentID
		charge.FailureReason = result.FailureReason
	}
	if err := s.repo.CreateCharge(charge); err != nil {
		return nil, err
	}
	metrics.RecordNoshowCharge(charge.Status)

	next := models.GUARANTEE_CHARGE_FAILED
	if charge.Status == models.CHARGE_SUCCEEDED {
		next = models.GUARANTEE_CHARGED
	}
	if err := session.TransitionTo(next, s.now()); err != nil {
		return charge, err
	}
	if err := s.repo.UpdateSession(session); err != nil {
		return charge, err
	}

	if charge.Status == models.CHARGE_SUCCEEDED {
		s.notifyCharged(ctx, session, charge)
	}
	if chargeErr != nil {
		return charge, chargeErr
	}
	return charge, nil
}

func (s *Service) notifyCharged(ctx context.Context, session *models.GuaranteeSession, charge *models.NoshowCharge) {
	amount := FormatAmount(charge.Amount, charge.Currency)
	if s.notifications != nil {
		if err := s.notifications.Create(&models.Notification{
			UserID:      session.UserID,
			Type:        models.NOTIFICATION_NOSHOW_CHARGED,
			Title:       "Pénalité encaissée",
			Message:     fmt.Sprintf("%s a été débité à %s pour la réservation non honorée.", amount, session.CustomerName),
			ReferenceID: session.ID,
		}); err != nil {
			zap.L().Warn("no-show notification failed", zap.Uint("session_id", session.ID), zap.Error(err))
		}
	}

	if session.CustomerEmail == "" || s.email == nil || s.templates == nil {
		return
	}
	business := ""
	if s.businessName != nil {
		business = s.businessName(session.UserID)
	}
	subject, body, err := s.templates.Render(mail.TemplateNoshowCharged, map[string]interface{}{
		"CustomerName":    session.CustomerName,
		"ReservationDate": session.ReservationDate.Format("02/01/2006 à 15:04"),
		"BusinessName":    business,
		"Amount":          amount,
	})
	if err != nil {
		zap.L().Error("no-show email render failed", zap.Uint("session_id", session.ID), zap.Error(err))
		return
	}
	if _, err := s.email.Send(ctx, mail.Message{To: session.CustomerEmail, Subject: subject, HTML: body}); err != nil {
		zap.L().Warn("no-show email failed", zap.Uint("session_id", session.ID), zap.Error(err))
	}
}

// FormatAmount renders cents the French way, e.g. 25,00 €.
func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	symbol := strings.ToUpper(currency)
	if strings.EqualFold(currency, "eur") {
		symbol = "€"
	}
	return fmt.Sprintf("%s%d,%02d %s", sign, cents/100, cents%100, symbol)
}

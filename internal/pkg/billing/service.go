package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
)

// ErrDuplicateEvent is returned when a webhook event was already processed.
var ErrDuplicateEvent = errors.New("webhook event already processed")

// Service keeps account status in sync with Stripe subscriptions.
type Service struct {
	repo Repository
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ProcessWebhook verifies, records and applies one Stripe webhook delivery.
// Redelivered events that were processed before return ErrDuplicateEvent.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signatureHeader, secret string) error {
	event, err := ConstructStripeEvent(payload, signatureHeader, secret)
	if err != nil {
		return err
	}

	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		return err
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		return ErrDuplicateEvent
	}

	handleErr := s.HandleEvent(ctx, event)
	if handleErr != nil {
		zap.L().Warn("stripe event failed", zap.String("event_id", stored.ProviderEventID), zap.String("type", string(event.Type)), zap.Error(handleErr))
	}
	if err := s.MarkWebhookProcessed(ctx, stored.ID, handleErr); err != nil {
		return err
	}
	return handleErr
}

// HandleEvent applies a decoded event. Unknown event types are ignored.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := decodeEventObject(event, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.SyncSubscription(ctx, &sub, event.Type == EventSubscriptionDeleted)
	case EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := decodeEventObject(event, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		return s.paymentFailed(ctx, &inv)
	default:
		zap.L().Debug("stripe event ignored", zap.String("type", string(event.Type)))
		return nil
	}
}

func decodeEventObject(event stripe.Event, dst interface{}) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return errors.New("event without data object")
	}
	return json.Unmarshal(event.Data.Raw, dst)
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.ID)
}

// SyncSubscription copies the subscription state onto the owning user.
func (s *Service) SyncSubscription(ctx context.Context, sub *stripe.Subscription, deleted bool) error {
	_ = ctx
	customer := customerID(sub.Customer)
	user, err := s.repo.GetUserByStripeCustomerID(customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Warn("stripe subscription for unknown customer", zap.String("customer", customer))
			return nil
		}
		return err
	}

	fields := map[string]interface{}{
		"stripe_subscription_id": sub.ID,
		"subscription_status":    string(sub.Status),
	}
	next, ok := AccountStatusForSubscription(string(sub.Status))
	if deleted {
		next, ok = models.ACCOUNT_EXPIRED, true
		fields["subscription_status"] = "canceled"
	}
	// Suspension is an admin decision and survives subscription changes.
	changed := ok && user.AccountStatus != models.ACCOUNT_SUSPENDED && next != user.AccountStatus
	if changed {
		fields["account_status"] = next
	}
	if err := s.repo.UpdateUserFields(user.ID, fields); err != nil {
		return err
	}

	if !changed {
		return nil
	}
	n := &models.Notification{UserID: user.ID}
	switch next {
	case models.ACCOUNT_ACTIVE:
		n.Type = models.NOTIFICATION_SUBSCRIPTION_ACTIVATED
		n.Title = "Abonnement activé"
		n.Message = "Votre abonnement SpeedAI est actif."
	default:
		n.Type = models.NOTIFICATION_SUBSCRIPTION_CANCELED
		n.Title = "Abonnement terminé"
		n.Message = "Votre abonnement SpeedAI a pris fin."
	}
	return s.repo.CreateNotification(n)
}

func (s *Service) paymentFailed(ctx context.Context, inv *stripe.Invoice) error {
	_ = ctx
	user, err := s.repo.GetUserByStripeCustomerID(customerID(inv.Customer))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	msg := "Le paiement de votre abonnement a échoué. Mettez à jour votre moyen de paiement."
	if inv.HostedInvoiceURL != "" {
		msg += " " + inv.HostedInvoiceURL
	}
	return s.repo.CreateNotification(&models.Notification{
		UserID:  user.ID,
		Type:    models.NOTIFICATION_PAYMENT_FAILED,
		Title:   "Paiement échoué",
		Message: msg,
	})
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

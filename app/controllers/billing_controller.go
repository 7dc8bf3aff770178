package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/billing"
)

// BillingController receives the Stripe webhooks.
type BillingController struct {
	*Deps
}

func NewBillingController(deps *Deps) *BillingController {
	return &BillingController{Deps: deps}
}

// HandleStripeWebhook verifies and applies one event. Redeliveries of an
// already processed event are acknowledged; a failed event answers 500 so
// Stripe delivers it again.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	if bc.Billing == nil || bc.StripeWebhookSecret == "" {
		return unavailable(c)
	}
	// Body() is only valid for the handler's lifetime; the service keeps a copy.
	payload := append([]byte(nil), c.Body()...)
	err := bc.Billing.ProcessWebhook(c.UserContext(), payload, c.Get("Stripe-Signature"), bc.StripeWebhookSecret)
	switch {
	case err == nil, errors.Is(err, billing.ErrDuplicateEvent):
		return c.JSON(fiber.Map{"received": true})
	case errors.Is(err, billing.ErrInvalidSignature):
		zap.L().Warn("stripe webhook rejected", zap.String("ip", c.IP()))
		return apierror.Write(c, fiber.StatusBadRequest, "invalid_signature", "Signature invalide")
	case errors.Is(err, billing.ErrInvalidPayload):
		return apierror.Write(c, fiber.StatusBadRequest, "invalid_payload", "Événement illisible")
	default:
		zap.L().Error("stripe webhook failed", zap.Error(err))
		return apierror.Write(c, fiber.StatusInternalServerError, apierror.CodeInternal, apierror.MsgInternal)
	}
}

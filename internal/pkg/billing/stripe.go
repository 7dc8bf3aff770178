package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

var ErrStripeNotConfigured = errors.New("stripe is not configured")

// ChargeRequest is an off-session payment against a saved card.
type ChargeRequest struct {
	CustomerID      string
	PaymentMethodID string
	Amount          int64
	Currency        string
	Description     string
	IdempotencyKey  string
	Metadata        map[string]string
}

// ChargeResult carries the payment intent outcome. Declined cards produce a
// result with a FailureReason and a nil error.
type ChargeResult struct {
	PaymentIntentID string
	Succeeded       bool
	FailureReason   string
}

// CardSetup is what the client needs to collect a card with Stripe.js.
type CardSetup struct {
	CustomerID   string
	ClientSecret string
}

// Payments is the Stripe surface used by the guarantee service.
type Payments interface {
	SetupCard(ctx context.Context, email, name string) (*CardSetup, error)
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// StripePayments talks to the Stripe API with a per-instance client.
type StripePayments struct {
	sc *client.API
}

// NewStripePayments returns nil when no secret key is configured.
func NewStripePayments(secretKey string) *StripePayments {
	if secretKey == "" {
		return nil
	}
	return &StripePayments{sc: client.New(secretKey, nil)}
}

func (p *StripePayments) SetupCard(ctx context.Context, email, name string) (*CardSetup, error) {
	if p == nil || p.sc == nil {
		return nil, ErrStripeNotConfigured
	}
	cparams := &stripe.CustomerParams{Email: stripe.String(email), Name: stripe.String(name)}
	cparams.Context = ctx
	cust, err := p.sc.Customers.New(cparams)
	if err != nil {
		return nil, fmt.Errorf("create stripe customer: %w", err)
	}

	sparams := &stripe.SetupIntentParams{
		Customer: stripe.String(cust.ID),
		Usage:    stripe.String(string(stripe.SetupIntentUsageOffSession)),
	}
	sparams.Context = ctx
	si, err := p.sc.SetupIntents.New(sparams)
	if err != nil {
		return nil, fmt.Errorf("create setup intent: %w", err)
	}
	return &CardSetup{CustomerID: cust.ID, ClientSecret: si.ClientSecret}, nil
}

func (p *StripePayments) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if p == nil || p.sc == nil {
		return nil, ErrStripeNotConfigured
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Description:   stripe.String(req.Description),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.sc.PaymentIntents.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
			res := &ChargeResult{FailureReason: serr.Msg}
			if serr.PaymentIntent != nil {
				res.PaymentIntentID = serr.PaymentIntent.ID
			}
			return res, nil
		}
		return nil, err
	}
	res := &ChargeResult{PaymentIntentID: pi.ID, Succeeded: pi.Status == stripe.PaymentIntentStatusSucceeded}
	if !res.Succeeded {
		res.FailureReason = "payment intent status " + string(pi.Status)
	}
	return res, nil
}

// IdempotencyKeyForSession keys a charge attempt so retries of the same
// attempt never double charge.
func IdempotencyKeyForSession(sessionID uint, attempt int) string {
	return "noshow-" + strconv.FormatUint(uint64(sessionID), 10) + "-" + strconv.Itoa(attempt)
}

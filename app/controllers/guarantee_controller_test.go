package controllers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/billing"
	"github.com/speedai/speedai/internal/pkg/guarantee"
)

// fakePayments declines the first n charges, n being declines, then succeeds.
type fakePayments struct {
	declines int
	requests []billing.ChargeRequest
}

func (f *fakePayments) SetupCard(_ context.Context, _, _ string) (*billing.CardSetup, error) {
	return &billing.CardSetup{CustomerID: "cus_test", ClientSecret: "seti_secret"}, nil
}

func (f *fakePayments) Charge(_ context.Context, req billing.ChargeRequest) (*billing.ChargeResult, error) {
	f.requests = append(f.requests, req)
	if len(f.requests) <= f.declines {
		return &billing.ChargeResult{PaymentIntentID: fmt.Sprintf("pi_%d", len(f.requests)), FailureReason: "card_declined"}, nil
	}
	return &billing.ChargeResult{PaymentIntentID: fmt.Sprintf("pi_%d", len(f.requests)), Succeeded: true}, nil
}

func guaranteeApp(t *testing.T, payments billing.Payments) (*fiber.App, *Deps) {
	repos := newTestRepos(t)
	deps := &Deps{
		Repos: repos,
		Guarantee: guarantee.NewService(guarantee.Config{
			Repo:          repos.Guarantee,
			Notifications: repos.Notification,
			Payments:      payments,
		}),
	}
	gc := NewGuaranteeController(deps)
	app := testApp(deps, func(r fiber.Router) {
		r.Get("/sessions", gc.HandleListSessions)
		r.Post("/sessions", gc.HandleCreateSession)
		r.Get("/sessions/:id", gc.HandleGetSession)
		r.Put("/sessions/:id", gc.HandleUpdateSession)
		r.Delete("/sessions/:id", gc.HandleDeleteSession)
		r.Post("/sessions/:id/setup-card", gc.HandleSetupCard)
		r.Post("/sessions/:id/card", gc.HandleAttachCard)
		r.Post("/sessions/:id/status", gc.HandleTransition)
		r.Post("/sessions/:id/charge", gc.HandleCharge)
	})
	return app, deps
}

func createSession(t *testing.T, app *fiber.App, userID uint) models.GuaranteeSession {
	t.Helper()
	resp := do(t, app, "POST", "/sessions", userID, fiber.Map{
		"customerName":    "Marie Curie",
		"reservationDate": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"partySize":       4,
		"amountPerPerson": 2500,
	})
	require.Equal(t, 201, resp.Status, string(resp.Body))
	var session models.GuaranteeSession
	resp.json(t, &session)
	return session
}

func TestGuaranteeNoShowChargeFlow(t *testing.T) {
	payments := &fakePayments{declines: 1}
	app, deps := guaranteeApp(t, payments)
	owner := createUser(t, deps.Repos, "owner@example.com")

	session := createSession(t, app, owner.ID)
	assert.Equal(t, models.GUARANTEE_PENDING, session.Status)
	assert.Equal(t, "eur", session.Currency)
	base := fmt.Sprintf("/sessions/%d", session.ID)

	resp := do(t, app, "POST", base+"/status", owner.ID, fiber.Map{"status": "no_show"})
	assert.Equal(t, 409, resp.Status)
	assert.Equal(t, "invalid_transition", resp.errorCode(t))

	resp = do(t, app, "POST", base+"/setup-card", owner.ID, nil)
	require.Equal(t, 200, resp.Status, string(resp.Body))

	resp = do(t, app, "POST", base+"/card", owner.ID, fiber.Map{"stripeCustomerId": "cus_test", "stripePaymentMethodId": "pm_card"})
	require.Equal(t, 200, resp.Status, string(resp.Body))
	resp.json(t, &session)
	assert.Equal(t, models.GUARANTEE_CARD_SAVED, session.Status)
	assert.NotNil(t, session.CardSavedAt)

	resp = do(t, app, "POST", base+"/charge", owner.ID, nil)
	assert.Equal(t, 409, resp.Status)
	assert.Equal(t, "not_no_show", resp.errorCode(t))

	resp = do(t, app, "POST", base+"/status", owner.ID, fiber.Map{"status": "no_show"})
	require.Equal(t, 200, resp.Status, string(resp.Body))

	resp = do(t, app, "POST", base+"/charge", owner.ID, nil)
	assert.Equal(t, 402, resp.Status)
	assert.Equal(t, "charge_failed", resp.errorCode(t))

	resp = do(t, app, "POST", base+"/charge", owner.ID, nil)
	require.Equal(t, 201, resp.Status, string(resp.Body))
	var charge models.NoshowCharge
	resp.json(t, &charge)
	assert.Equal(t, models.CHARGE_SUCCEEDED, charge.Status)
	assert.Equal(t, int64(10000), charge.Amount)

	require.Len(t, payments.requests, 2)
	assert.NotEqual(t, payments.requests[0].IdempotencyKey, payments.requests[1].IdempotencyKey)

	var detail struct {
		Session models.GuaranteeSession `json:"session"`
		Charges []models.NoshowCharge   `json:"charges"`
	}
	do(t, app, "GET", base, owner.ID, nil).json(t, &detail)
	assert.Equal(t, models.GUARANTEE_CHARGED, detail.Session.Status)
	assert.Len(t, detail.Charges, 2)

	n, err := deps.Repos.Notification.CountUnread(owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	resp = do(t, app, "DELETE", base, owner.ID, nil)
	assert.Equal(t, 409, resp.Status)
	assert.Equal(t, "session_locked", resp.errorCode(t))
}

func TestGuaranteeWithoutPayments(t *testing.T) {
	app, deps := guaranteeApp(t, nil)
	owner := createUser(t, deps.Repos, "owner@example.com")
	session := createSession(t, app, owner.ID)

	resp := do(t, app, "POST", fmt.Sprintf("/sessions/%d/setup-card", session.ID), owner.ID, nil)
	assert.Equal(t, 503, resp.Status)
	assert.Equal(t, "payments_unavailable", resp.errorCode(t))

	resp = do(t, app, "POST", fmt.Sprintf("/sessions/%d/card", session.ID), owner.ID, fiber.Map{"stripeCustomerId": "cus_x"})
	assert.Equal(t, 400, resp.Status)

	resp = do(t, app, "DELETE", fmt.Sprintf("/sessions/%d", session.ID), owner.ID, nil)
	assert.Equal(t, 204, resp.Status)
}

func TestGuaranteeSessionsAreTenantScoped(t *testing.T) {
	app, deps := guaranteeApp(t, &fakePayments{})
	owner := createUser(t, deps.Repos, "owner@example.com")
	other := createUser(t, deps.Repos, "other@example.com")
	session := createSession(t, app, owner.ID)

	resp := do(t, app, "GET", fmt.Sprintf("/sessions/%d", session.ID), other.ID, nil)
	assert.Equal(t, 404, resp.Status)

	var sessions []models.GuaranteeSession
	do(t, app, "GET", "/sessions", other.ID, nil).json(t, &sessions)
	assert.Empty(t, sessions)
}

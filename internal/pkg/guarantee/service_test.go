package guarantee

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/billing"
	"github.com/speedai/speedai/internal/pkg/mail"
)

type fakePayments struct {
	results []*billing.ChargeResult
	err     error
	reqs    []billing.ChargeRequest
}

func (f *fakePayments) SetupCard(_ context.Context, email, _ string) (*billing.CardSetup, error) {
	return &billing.CardSetup{CustomerID: "cus_" + email, ClientSecret: "seti_secret"}, nil
}

func (f *fakePayments) Charge(_ context.Context, req billing.ChargeRequest) (*billing.ChargeResult, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

type fakeEmail struct{ sent []mail.Message }

func (f *fakeEmail) Send(_ context.Context, msg mail.Message) (string, error) {
	f.sent = append(f.sent, msg)
	return "msg", nil
}

type fakeRenderer struct{ data map[string]interface{} }

func (f *fakeRenderer) Render(_ string, data map[string]interface{}) (string, string, error) {
	f.data = data
	return "Pénalité", "<p>body</p>", nil
}

type fixture struct {
	repos    *repository.Repositories
	svc      *Service
	payments *fakePayments
	email    *fakeEmail
	tpl      *fakeRenderer
	user     *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	f := &fixture{repos: repository.NewRepositories(db), payments: &fakePayments{}, email: &fakeEmail{}, tpl: &fakeRenderer{}}
	u, err := models.NewUser("resto@example.com", "secret-password", "Jean", "Dupont", "Chez Jean")
	require.NoError(t, err)
	require.NoError(t, f.repos.User.Create(u))
	f.user = u
	f.svc = NewService(Config{
		Repo:          f.repos.Guarantee,
		Notifications: f.repos.Notification,
		Payments:      f.payments,
		Email:         f.email,
		Templates:     f.tpl,
		BusinessName:  func(uint) string { return "Chez Jean" },
	})
	return f
}

func (f *fixture) noShow(t *testing.T) *models.GuaranteeSession {
	t.Helper()
	s, err := f.svc.CreateSession(f.user.ID, SessionInput{
		CustomerName:    "Claire",
		CustomerEmail:   "claire@example.com",
		ReservationDate: time.Date(2025, 6, 14, 20, 30, 0, 0, time.UTC),
		PartySize:       4,
		AmountPerPerson: 2500,
		Currency:        "EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, "eur", s.Currency)

	_, err = f.svc.SetupCard(context.Background(), f.user.ID, s.ID)
	require.NoError(t, err)
	_, err = f.svc.AttachCard(f.user.ID, s.ID, "", "pm_123")
	require.NoError(t, err)
	s, err = f.svc.Transition(f.user.ID, s.ID, models.GUARANTEE_NO_SHOW)
	require.NoError(t, err)
	return s
}

func TestChargeNoShowSuccess(t *testing.T) {
	f := newFixture(t)
	s := f.noShow(t)
	assert.Equal(t, "cus_claire@example.com", s.StripeCustomerID)

	f.payments.results = []*billing.ChargeResult{{PaymentIntentID: "pi_1", Succeeded: true}}
	charge, err := f.svc.ChargeNoShow(context.Background(), f.user.ID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CHARGE_SUCCEEDED, charge.Status)
	assert.Equal(t, int64(10000), charge.Amount)
	assert.Equal(t, "pi_1", charge.StripePaymentIntentID)

	require.Len(t, f.payments.reqs, 1)
	assert.Equal(t, billing.IdempotencyKeyForSession(s.ID, 1), f.payments.reqs[0].IdempotencyKey)
	assert.Equal(t, "pm_123", f.payments.reqs[0].PaymentMethodID)

	got, err := f.repos.Guarantee.GetSession(f.user.ID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GUARANTEE_CHARGED, got.Status)

	unread, err := f.repos.Notification.CountUnread(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
	require.Len(t, f.email.sent, 1)
	assert.Equal(t, "claire@example.com", f.email.sent[0].To)
	assert.Equal(t, "100,00 €", f.tpl.data["Amount"])
	assert.Equal(t, "Chez Jean", f.tpl.data["BusinessName"])

	_, err = f.svc.ChargeNoShow(context.Background(), f.user.ID, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotNoShow)
}

func TestChargeNoShowDeclinedThenRetried(t *testing.T) {
	f := newFixture(t)
	s := f.noShow(t)

	f.payments.results = []*billing.ChargeResult{
		{PaymentIntentID: "pi_1", FailureReason: "card_declined"},
		{PaymentIntentID: "pi_2", Succeeded: true},
	}
	charge, err := f.svc.ChargeNoShow(context.Background(), f.user.ID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CHARGE_FAILED, charge.Status)
	assert.Equal(t, "card_declined", charge.FailureReason)
	assert.Empty(t, f.email.sent)

	got, err := f.repos.Guarantee.GetSession(f.user.ID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GUARANTEE_CHARGE_FAILED, got.Status)

	charge, err = f.svc.ChargeNoShow(context.Background(), f.user.ID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CHARGE_SUCCEEDED, charge.Status)
	assert.Equal(t, billing.IdempotencyKeyForSession(s.ID, 2), f.payments.reqs[1].IdempotencyKey)

	charges, err := f.repos.Guarantee.ListCharges(f.user.ID, s.ID)
	require.NoError(t, err)
	assert.Len(t, charges, 2)
}

func TestChargeNoShowAPIErrorIsRecorded(t *testing.T) {
	f := newFixture(t)
	s := f.noShow(t)
	f.payments.err = errors.New("stripe unavailable")

	charge, err := f.svc.ChargeNoShow(context.Background(), f.user.ID, s.ID)
	assert.Error(t, err)
	require.NotNil(t, charge)
	assert.Equal(t, "stripe unavailable", charge.FailureReason)

	stats, err := f.repos.Guarantee.GetStats(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FailedCharges)
}

func TestChargeRequiresCardAndNoShow(t *testing.T) {
	f := newFixture(t)
	s, err := f.svc.CreateSession(f.user.ID, SessionInput{CustomerName: "Paul", ReservationDate: time.Now(), AmountPerPerson: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, s.PartySize)

	_, err = f.svc.ChargeNoShow(context.Background(), f.user.ID, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotNoShow)

	_, err = f.svc.AttachCard(f.user.ID, s.ID, "", "pm_1")
	assert.ErrorIs(t, err, ErrNoCard, "no customer yet")

	_, err = f.svc.Transition(f.user.ID, s.ID, models.GUARANTEE_NO_SHOW)
	assert.ErrorIs(t, err, models.ErrInvalidGuaranteeTransition)

	_, err = f.svc.Transition(f.user.ID, s.ID, models.GUARANTEE_CHARGED)
	assert.ErrorIs(t, err, models.ErrInvalidGuaranteeTransition, "charged is only reached by charging")
}

func TestUpdateSessionLockedAfterResolution(t *testing.T) {
	f := newFixture(t)
	s := f.noShow(t)
	_, err := f.svc.UpdateSession(f.user.ID, s.ID, SessionInput{CustomerName: "X", ReservationDate: time.Now()})
	assert.ErrorIs(t, err, ErrSessionLocked)
}

func TestStripeNotConfigured(t *testing.T) {
	f := newFixture(t)
	svc := NewService(Config{Repo: f.repos.Guarantee})
	_, err := svc.ChargeNoShow(context.Background(), f.user.ID, 1)
	assert.ErrorIs(t, err, billing.ErrStripeNotConfigured)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "25,00 €", FormatAmount(2500, "eur"))
	assert.Equal(t, "0,05 USD", FormatAmount(5, "usd"))
	assert.Equal(t, "-1,50 €", FormatAmount(-150, "EUR"))
}

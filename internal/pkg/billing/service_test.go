package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/speedai/speedai/app/models"
)

const testSecret = "whsec_test"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func sign(payload []byte, secret string, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func subscriptionEvent(id, typ, customer, status string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"data":{"object":{"id":"sub_1","customer":%q,"status":%q}}}`, id, typ, customer, status))
}

func seedCustomer(t *testing.T, db *gorm.DB, email, customerID, status string) *models.User {
	t.Helper()
	u, err := models.NewUser(email, "secret-password", "Jean", "Dupont", "Chez Jean")
	require.NoError(t, err)
	u.StripeCustomerID = customerID
	u.AccountStatus = status
	require.NoError(t, db.Create(u).Error)
	return u
}

func verify(payload []byte, header, secret string) error {
	_, err := ConstructStripeEvent(payload, header, secret)
	return err
}

func TestConstructStripeEventSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	now := time.Now()

	assert.NoError(t, verify(payload, sign(payload, testSecret, now), testSecret))
	assert.ErrorIs(t, verify(payload, sign(payload, "other", now), testSecret), ErrInvalidSignature)
	assert.ErrorIs(t, verify([]byte(`{"id":"evt_2"}`), sign(payload, testSecret, now), testSecret), ErrInvalidSignature)
	assert.ErrorIs(t, verify(payload, sign(payload, testSecret, now.Add(-time.Hour)), testSecret), ErrInvalidSignature)
	assert.ErrorIs(t, verify(payload, "", testSecret), ErrInvalidSignature)
	assert.ErrorIs(t, verify(payload, sign(payload, testSecret, now), ""), ErrInvalidSignature)
}

func TestConstructStripeEventDecodesObjects(t *testing.T) {
	payload := []byte(`{"id":"evt_9","type":"customer.subscription.updated","api_version":"2020-08-27",` +
		`"data":{"object":{"id":"sub_9","object":"subscription","customer":"cus_9","status":"trialing"}}}`)

	event, err := ConstructStripeEvent(payload, sign(payload, testSecret, time.Now()), testSecret)
	require.NoError(t, err, "a pinned account API version is accepted")
	assert.Equal(t, "evt_9", event.ID)
	assert.EqualValues(t, EventSubscriptionUpdated, event.Type)

	var sub stripe.Subscription
	require.NoError(t, decodeEventObject(event, &sub))
	assert.Equal(t, "sub_9", sub.ID)
	require.NotNil(t, sub.Customer)
	assert.Equal(t, "cus_9", sub.Customer.ID)
	assert.Equal(t, stripe.SubscriptionStatusTrialing, sub.Status)

	assert.Error(t, decodeEventObject(stripe.Event{}, &sub))

	broken := []byte(`{"id":`)
	_, err = ConstructStripeEvent(broken, sign(broken, testSecret, time.Now()), testSecret)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestProcessWebhookActivatesAndIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceFromDB(db)
	u := seedCustomer(t, db, "trial@example.com", "cus_1", models.ACCOUNT_TRIAL)

	payload := subscriptionEvent("evt_1", EventSubscriptionCreated, "cus_1", "active")
	require.NoError(t, svc.ProcessWebhook(context.Background(), payload, sign(payload, testSecret, time.Now()), testSecret))

	var got models.User
	require.NoError(t, db.First(&got, u.ID).Error)
	assert.Equal(t, models.ACCOUNT_ACTIVE, got.AccountStatus)
	assert.Equal(t, "sub_1", got.StripeSubscriptionID)
	assert.Equal(t, "active", got.SubscriptionStatus)

	err := svc.ProcessWebhook(context.Background(), payload, sign(payload, testSecret, time.Now()), testSecret)
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	var notifications int64
	require.NoError(t, db.Model(&models.Notification{}).Where("user_id = ?", u.ID).Count(&notifications).Error)
	assert.Equal(t, int64(1), notifications)

	var events []models.BillingWebhookEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.NotNil(t, events[0].ProcessedAt)
	assert.True(t, events[0].SignatureValid)
}

func TestProcessWebhookRejectsBadSignature(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceFromDB(db)
	payload := subscriptionEvent("evt_1", EventSubscriptionCreated, "cus_1", "active")

	err := svc.ProcessWebhook(context.Background(), payload, sign(payload, "nope", time.Now()), testSecret)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	var n int64
	require.NoError(t, db.Model(&models.BillingWebhookEvent{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSyncSubscriptionStatuses(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceFromDB(db)
	ctx := context.Background()

	active := seedCustomer(t, db, "active@example.com", "cus_a", models.ACCOUNT_ACTIVE)
	require.NoError(t, svc.SyncSubscription(ctx, &stripe.Subscription{ID: "sub_a", Customer: &stripe.Customer{ID: "cus_a"}, Status: "past_due"}, false))
	var got models.User
	require.NoError(t, db.First(&got, active.ID).Error)
	assert.Equal(t, models.ACCOUNT_ACTIVE, got.AccountStatus, "past_due keeps the account status")
	assert.Equal(t, "past_due", got.SubscriptionStatus)

	require.NoError(t, svc.SyncSubscription(ctx, &stripe.Subscription{ID: "sub_a", Customer: &stripe.Customer{ID: "cus_a"}, Status: "active"}, true))
	require.NoError(t, db.First(&got, active.ID).Error)
	assert.Equal(t, models.ACCOUNT_EXPIRED, got.AccountStatus)

	suspended := seedCustomer(t, db, "suspended@example.com", "cus_s", models.ACCOUNT_SUSPENDED)
	require.NoError(t, svc.SyncSubscription(ctx, &stripe.Subscription{ID: "sub_s", Customer: &stripe.Customer{ID: "cus_s"}, Status: "active"}, false))
	require.NoError(t, db.First(&got, suspended.ID).Error)
	assert.Equal(t, models.ACCOUNT_SUSPENDED, got.AccountStatus)

	assert.NoError(t, svc.SyncSubscription(ctx, &stripe.Subscription{ID: "sub_x", Customer: &stripe.Customer{ID: "cus_unknown"}, Status: "active"}, false))
}

func TestHandleEventPaymentFailedAndUnknown(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceFromDB(db)
	u := seedCustomer(t, db, "late@example.com", "cus_l", models.ACCOUNT_ACTIVE)

	ev := stripe.Event{
		Type: EventInvoicePaymentFailed,
		Data: &stripe.EventData{Raw: json.RawMessage(`{"id":"in_1","customer":"cus_l","hosted_invoice_url":"https://pay.example/in_1"}`)},
	}
	require.NoError(t, svc.HandleEvent(context.Background(), ev))

	var n models.Notification
	require.NoError(t, db.Where("user_id = ?", u.ID).First(&n).Error)
	assert.Equal(t, models.NOTIFICATION_PAYMENT_FAILED, n.Type)
	assert.Contains(t, n.Message, "https://pay.example/in_1")

	assert.NoError(t, svc.HandleEvent(context.Background(), stripe.Event{Type: "charge.refunded"}))
}

func TestRecordWebhookEventHashFallback(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceFromDB(db)

	created, ev, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{Provider: "Stripe", PayloadJSON: `{"a":1}`})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "stripe", ev.Provider)
	assert.Contains(t, ev.ProviderEventID, "hash:")

	created, _, err = svc.RecordWebhookEvent(context.Background(), WebhookEventInput{Provider: "stripe", PayloadJSON: `{"a":1}`})
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = svc.RecordWebhookEvent(context.Background(), WebhookEventInput{})
	assert.Error(t, err)
}

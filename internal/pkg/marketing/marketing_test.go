package marketing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/mail"
	"github.com/speedai/speedai/internal/pkg/security"
)

type fakeEmail struct {
	mu   sync.Mutex
	sent []mail.Message
	fail map[string]bool
}

func (f *fakeEmail) Send(_ context.Context, msg mail.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[msg.To] {
		return "", errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg_%d", len(f.sent)), nil
}

type fakeSMS struct{ bodies []string }

func (f *fakeSMS) Send(_ context.Context, to, body string) (string, error) {
	f.bodies = append(f.bodies, to+"|"+body)
	return "SM1", nil
}

type fakeCounter struct{ opens, clicks map[uint]int }

func newFakeCounter() *fakeCounter {
	return &fakeCounter{opens: map[uint]int{}, clicks: map[uint]int{}}
}

func (f *fakeCounter) AddCampaignOpen(_ context.Context, id uint) error  { f.opens[id]++; return nil }
func (f *fakeCounter) AddCampaignClick(_ context.Context, id uint) error { f.clicks[id]++; return nil }

type fixture struct {
	db      *gorm.DB
	repos   *repository.Repositories
	svc     *Service
	email   *fakeEmail
	sms     *fakeSMS
	counter *fakeCounter
	sleeps  []time.Duration
	user    *models.User
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

	f := &fixture{db: db, repos: repository.NewRepositories(db), email: &fakeEmail{fail: map[string]bool{}}, sms: &fakeSMS{}, counter: newFakeCounter()}
	f.svc = NewService(Config{
		Repo:          f.repos.Marketing,
		Notifications: f.repos.Notification,
		Email:         f.email,
		SMS:           f.sms,
		Counter:       f.counter,
		BaseURL:       "https://app.speedai.fr",
		LinkSecret:    "link-secret",
	})
	f.svc.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}

	u, err := models.NewUser("owner@example.com", "secret-password", "Jean", "Dupont", "Chez Jean")
	require.NoError(t, err)
	require.NoError(t, f.repos.User.Create(u))
	f.user = u
	return f
}

func (f *fixture) contact(t *testing.T, email, phone string, optEmail, optSms bool, tags ...string) *models.MarketingContact {
	t.Helper()
	c := &models.MarketingContact{UserID: f.user.ID, FirstName: "Claire", Email: email, Phone: phone, OptInEmail: optEmail, OptInSms: optSms}
	c.SetTags(tags)
	require.NoError(t, f.repos.Marketing.CreateContact(c))
	return c
}

func (f *fixture) campaign(t *testing.T, channel string) *models.MarketingCampaign {
	t.Helper()
	c := &models.MarketingCampaign{
		UserID:     f.user.ID,
		Name:       "Brunch",
		Channel:    channel,
		Subject:    "Bonjour {{firstName}}",
		Content:    `<p>Bonjour {{firstName}}</p><a href="https://resto.example/menu">Menu</a>`,
		TargetType: models.TARGET_ALL,
		Status:     models.CAMPAIGN_DRAFT,
	}
	require.NoError(t, f.repos.Marketing.CreateCampaign(c))
	return c
}

func TestChannelFor(t *testing.T) {
	ch, err := ChannelFor(true, false)
	require.NoError(t, err)
	assert.Equal(t, models.CHANNEL_EMAIL, ch)

	ch, err = ChannelFor(false, true)
	require.NoError(t, err)
	assert.Equal(t, models.CHANNEL_SMS, ch)

	ch, err = ChannelFor(true, true)
	require.NoError(t, err)
	assert.Equal(t, models.CHANNEL_BOTH, ch)

	_, err = ChannelFor(false, false)
	assert.ErrorIs(t, err, ErrNoChannelSelected)
}

func TestSendCampaignContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.contact(t, "a@example.com", "", true, false)
	f.contact(t, "fail@example.com", "", true, false)
	f.contact(t, "c@example.com", "", true, false)
	f.contact(t, "nooptin@example.com", "", false, true)
	f.email.fail["fail@example.com"] = true

	c := f.campaign(t, models.CHANNEL_EMAIL)
	_, err := f.svc.StartSend(f.user.ID, c.ID)
	require.NoError(t, err)
	_, err = f.svc.StartSend(f.user.ID, c.ID)
	assert.ErrorIs(t, err, ErrCampaignLocked)

	res, err := f.svc.SendCampaign(context.Background(), f.user.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, &Result{Recipients: 3, Sent: 2, Failed: 1}, res)
	assert.Equal(t, []time.Duration{SendDelay, SendDelay}, f.sleeps, "delay between sends only")

	got, err := f.repos.Marketing.GetCampaign(f.user.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CAMPAIGN_SENT, got.Status)
	assert.Equal(t, 3, got.TotalRecipients)
	assert.Equal(t, 2, got.SentCount)
	assert.Equal(t, 1, got.FailedCount)
	assert.NotNil(t, got.SentAt)

	sends, err := f.repos.Marketing.ListSends(f.user.ID, c.ID)
	require.NoError(t, err)
	require.Len(t, sends, 3)
	var failed int
	for _, s := range sends {
		assert.NotEmpty(t, s.TrackingID)
		if s.Status == models.SEND_FAILED {
			failed++
			assert.Contains(t, s.Error, "mailbox unavailable")
		}
	}
	assert.Equal(t, 1, failed)

	require.Len(t, f.email.sent, 2)
	msg := f.email.sent[0]
	assert.Equal(t, "Bonjour Claire", msg.Subject)
	assert.Contains(t, msg.HTML, "/api/marketing/track/open/")
	assert.Contains(t, msg.HTML, "/unsubscribe/")
	assert.NotEmpty(t, msg.Headers["List-Unsubscribe"])

	unread, err := f.repos.Notification.CountUnread(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestSendCampaignAllFailedMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.contact(t, "fail@example.com", "", true, false)
	f.email.fail["fail@example.com"] = true
	c := f.campaign(t, models.CHANNEL_EMAIL)
	_, err := f.svc.StartSend(f.user.ID, c.ID)
	require.NoError(t, err)

	_, err = f.svc.SendCampaign(context.Background(), f.user.ID, c.ID)
	require.NoError(t, err)
	got, err := f.repos.Marketing.GetCampaign(f.user.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CAMPAIGN_FAILED, got.Status)
}

func TestSendCampaignTwiceDeliversEachContactOnce(t *testing.T) {
	f := newFixture(t)
	f.contact(t, "a@example.com", "", true, false)
	f.contact(t, "b@example.com", "", true, false)
	c := f.campaign(t, models.CHANNEL_EMAIL)
	_, err := f.svc.StartSend(f.user.ID, c.ID)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := f.svc.SendCampaign(ctx, f.user.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Sent)

	// a requeued job picks the campaign up while it is still marked sending
	got, err := f.repos.Marketing.GetCampaign(f.user.ID, c.ID)
	require.NoError(t, err)
	got.Status = models.CAMPAIGN_SENDING
	require.NoError(t, f.repos.Marketing.UpdateCampaign(got))

	second, err := f.svc.SendCampaign(ctx, f.user.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, &Result{Recipients: 2, Sent: 2, Skipped: 2}, second)

	require.Len(t, f.email.sent, 2)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, []string{f.email.sent[0].To, f.email.sent[1].To})
	sends, err := f.repos.Marketing.ListSends(f.user.ID, c.ID)
	require.NoError(t, err)
	assert.Len(t, sends, 2)

	got, err = f.repos.Marketing.GetCampaign(f.user.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CAMPAIGN_SENT, got.Status)
	assert.Equal(t, 2, got.SentCount)
}

func TestSendCampaignResumesAfterPartialRun(t *testing.T) {
	f := newFixture(t)
	done := f.contact(t, "a@example.com", "", true, false)
	f.contact(t, "b@example.com", "", true, false)
	c := f.campaign(t, models.CHANNEL_EMAIL)
	_, err := f.svc.StartSend(f.user.ID, c.ID)
	require.NoError(t, err)
	prior := &models.MarketingSend{UserID: f.user.ID, CampaignID: c.ID, ContactID: done.ID, Channel: models.CHANNEL_EMAIL, TrackingID: uuid.NewString(), Status: models.SEND_SENT}
	require.NoError(t, f.repos.Marketing.CreateSend(prior))

	res, err := f.svc.SendCampaign(context.Background(), f.user.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, &Result{Recipients: 2, Sent: 2, Skipped: 1}, res)
	require.Len(t, f.email.sent, 1)
	assert.Equal(t, "b@example.com", f.email.sent[0].To)
}

func TestSendCampaignRequiresClaim(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, models.CHANNEL_EMAIL)
	_, err := f.svc.SendCampaign(context.Background(), f.user.ID, c.ID)
	assert.ErrorIs(t, err, ErrCampaignNotSending)
}

func TestSMSCampaignAndSegmentTarget(t *testing.T) {
	f := newFixture(t)
	f.contact(t, "", "+33611111111", false, true, "vip")
	f.contact(t, "", "+33622222222", false, true)

	filters, err := models.EncodeContactFilter(models.ContactFilter{Tags: []string{"vip"}})
	require.NoError(t, err)
	seg := &models.MarketingSegment{UserID: f.user.ID, Name: "VIP", Filters: filters}
	require.NoError(t, f.repos.Marketing.CreateSegment(seg))

	c := f.campaign(t, models.CHANNEL_SMS)
	c.TargetType = models.TARGET_SEGMENT
	c.SegmentID = &seg.ID
	c.Content = "Brunch offert {{prenom}} !"
	require.NoError(t, f.repos.Marketing.UpdateCampaign(c))

	_, err = f.svc.StartSend(f.user.ID, c.ID)
	require.NoError(t, err)
	res, err := f.svc.SendCampaign(context.Background(), f.user.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	require.Len(t, f.sms.bodies, 1)
	assert.True(t, strings.HasPrefix(f.sms.bodies[0], "+33611111111|Brunch offert Claire !"))
	assert.Contains(t, f.sms.bodies[0], "STOP : https://app.speedai.fr/unsubscribe/")
}

func TestScheduleAndClaimDue(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, models.CHANNEL_EMAIL)
	now := time.Now().UTC()
	f.svc.now = func() time.Time { return now }

	_, err := f.svc.Schedule(f.user.ID, c.ID, now.Add(-time.Minute))
	assert.ErrorIs(t, err, ErrScheduleInPast)

	_, err = f.svc.Schedule(f.user.ID, c.ID, now.Add(time.Minute))
	require.NoError(t, err)

	claimed, err := f.svc.ClaimDue()
	require.NoError(t, err)
	assert.Empty(t, claimed)

	f.svc.now = func() time.Time { return now.Add(2 * time.Minute) }
	claimed, err = f.svc.ClaimDue()
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, models.CAMPAIGN_SENDING, claimed[0].Status)
}

func sendFor(t *testing.T, f *fixture) (*models.MarketingContact, *models.MarketingSend) {
	t.Helper()
	contact := f.contact(t, "a@example.com", "+33611111111", true, true)
	c := f.campaign(t, models.CHANNEL_EMAIL)
	send := &models.MarketingSend{UserID: f.user.ID, CampaignID: c.ID, ContactID: contact.ID, Channel: models.CHANNEL_EMAIL, TrackingID: uuid.NewString(), Status: models.SEND_SENT}
	require.NoError(t, f.repos.Marketing.CreateSend(send))
	return contact, send
}

func TestTrackingOpenAndClick(t *testing.T) {
	f := newFixture(t)
	_, send := sendFor(t, f)
	ctx := context.Background()

	target := "https://resto.example/menu"
	click, err := f.svc.tracking(send.TrackingID).ClickURL(target)
	require.NoError(t, err)
	u, err := url.Parse(click)
	require.NoError(t, err)
	sig := u.Query().Get("sig")

	assert.ErrorIs(t, f.svc.RecordClick(ctx, send.TrackingID, "https://evil.example", sig), security.ErrInvalidLinkSignature)

	require.NoError(t, f.svc.RecordClick(ctx, send.TrackingID, target, sig))
	require.NoError(t, f.svc.RecordClick(ctx, send.TrackingID, target, sig))
	require.NoError(t, f.svc.RecordOpen(ctx, send.TrackingID))

	assert.Equal(t, 1, f.counter.clicks[send.CampaignID])
	assert.Equal(t, 1, f.counter.opens[send.CampaignID], "click implies one open")

	assert.ErrorIs(t, f.svc.RecordOpen(ctx, "missing"), gorm.ErrRecordNotFound)
}

func TestUnsubscribeFlow(t *testing.T) {
	f := newFixture(t)
	contact, send := sendFor(t, f)

	info, err := f.svc.LookupUnsubscribe(send.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, "a***@example.com", info.Email)
	assert.Equal(t, "**********11", info.Phone)
	assert.True(t, info.OptInEmail)

	ch, err := f.svc.Unsubscribe(send.TrackingID, true, false)
	require.NoError(t, err)
	assert.Equal(t, models.CHANNEL_EMAIL, ch)

	got, err := f.repos.Marketing.GetContact(f.user.ID, contact.ID)
	require.NoError(t, err)
	assert.False(t, got.OptInEmail)
	assert.True(t, got.OptInSms)

	_, err = f.svc.Unsubscribe(send.TrackingID, false, false)
	assert.ErrorIs(t, err, ErrNoChannelSelected)

	_, err = f.svc.Unsubscribe("unknown", true, true)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestNewServiceWarnsWithoutLinkSecret(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	NewService(Config{BaseURL: "https://app.speedai.fr", LinkSecret: "set"})
	assert.Zero(t, logs.Len())

	NewService(Config{BaseURL: "https://app.speedai.fr"})
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "link secret missing")
}

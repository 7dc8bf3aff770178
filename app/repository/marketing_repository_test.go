package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
)

func newContact(userID uint, email, phone string, optEmail, optSms bool, tags ...string) models.MarketingContact {
	c := models.MarketingContact{UserID: userID, FirstName: "Client", Email: email, Phone: phone, OptInEmail: optEmail, OptInSms: optSms, Source: "import"}
	c.SetTags(tags)
	return c
}

func TestMarketingRepositoryContactFilter(t *testing.T) {
	db := newTestDB(t)
	repo := NewMarketingRepository(db)
	u := createUser(t, db, "shop@example.com")
	other := createUser(t, db, "rival@example.com")

	require.NoError(t, repo.CreateContacts([]models.MarketingContact{
		newContact(u.ID, "a@example.com", "", true, false, "VIP", "brunch"),
		newContact(u.ID, "b@example.com", "+33600000001", false, true, "brunch"),
		newContact(u.ID, "", "+33600000002", false, true),
		newContact(u.ID, "d@example.com", "", false, false, "vip"),
		newContact(other.ID, "x@example.com", "", true, false, "vip"),
	}))

	all, total, err := repo.ListContacts(u.ID, models.ContactFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 4)

	vip, err := repo.FindContacts(u.ID, models.ContactFilter{Tags: []string{"vip"}})
	require.NoError(t, err)
	assert.Len(t, vip, 2)

	anyOf, err := repo.FindContacts(u.ID, models.ContactFilter{Tags: []string{"vip", "brunch"}})
	require.NoError(t, err)
	assert.Len(t, anyOf, 3)

	email, err := repo.FindContacts(u.ID, models.ContactFilter{Channel: models.CHANNEL_EMAIL})
	require.NoError(t, err)
	require.Len(t, email, 1)
	assert.Equal(t, "a@example.com", email[0].Email)

	sms, err := repo.FindContacts(u.ID, models.ContactFilter{Channel: models.CHANNEL_SMS, Tags: []string{"brunch"}})
	require.NoError(t, err)
	require.Len(t, sms, 1)
	assert.Equal(t, "b@example.com", sms[0].Email)

	search, err := repo.FindContacts(u.ID, models.ContactFilter{Search: "d@example"})
	require.NoError(t, err)
	assert.Len(t, search, 1)
}

func TestMarketingRepositoryApplyUnsubscribe(t *testing.T) {
	db := newTestDB(t)
	repo := NewMarketingRepository(db)
	u := createUser(t, db, "unsub@example.com")

	c := newContact(u.ID, "a@example.com", "+33600000001", true, true)
	require.NoError(t, repo.CreateContact(&c))

	now := time.Now().UTC()
	require.NoError(t, repo.ApplyUnsubscribe(u.ID, c.ID, models.CHANNEL_EMAIL, now))
	got, err := repo.GetContact(u.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, got.OptInEmail)
	assert.True(t, got.OptInSms)
	assert.Nil(t, got.UnsubscribedAt)

	require.NoError(t, repo.ApplyUnsubscribe(u.ID, c.ID, models.CHANNEL_SMS, now))
	got, err = repo.GetContact(u.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, got.OptInSms)
	assert.NotNil(t, got.UnsubscribedAt)

	assert.ErrorIs(t, repo.ApplyUnsubscribe(u.ID+100, c.ID, models.CHANNEL_BOTH, now), gorm.ErrRecordNotFound)
}

func TestMarketingRepositoryCampaignLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewMarketingRepository(db)
	u := createUser(t, db, "campaign@example.com")

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	due := &models.MarketingCampaign{UserID: u.ID, Name: "Brunch", Channel: models.CHANNEL_EMAIL, TargetType: models.TARGET_ALL, Status: models.CAMPAIGN_SCHEDULED, ScheduledAt: &past}
	later := &models.MarketingCampaign{UserID: u.ID, Name: "Later", Channel: models.CHANNEL_EMAIL, TargetType: models.TARGET_ALL, Status: models.CAMPAIGN_SCHEDULED, ScheduledAt: &future}
	require.NoError(t, repo.CreateCampaign(due))
	require.NoError(t, repo.CreateCampaign(later))

	list, err := repo.ListDueCampaigns(time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)

	won, err := repo.ClaimCampaign(u.ID, due.ID)
	require.NoError(t, err)
	assert.True(t, won)
	won, err = repo.ClaimCampaign(u.ID, due.ID)
	require.NoError(t, err)
	assert.False(t, won, "second claim loses")

	got, err := repo.GetCampaign(u.ID, due.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CAMPAIGN_SENDING, got.Status)

	require.NoError(t, repo.DeleteCampaign(u.ID, later.ID))
	_, err = repo.GetCampaign(u.ID, later.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMarketingRepositoryTrackingMarksFirstOnly(t *testing.T) {
	db := newTestDB(t)
	repo := NewMarketingRepository(db)
	u := createUser(t, db, "tracking@example.com")

	c := newContact(u.ID, "a@example.com", "", true, false)
	require.NoError(t, repo.CreateContact(&c))
	campaign := &models.MarketingCampaign{UserID: u.ID, Name: "Promo", Channel: models.CHANNEL_EMAIL, TargetType: models.TARGET_ALL, Status: models.CAMPAIGN_SENT}
	require.NoError(t, repo.CreateCampaign(campaign))
	send := &models.MarketingSend{UserID: u.ID, CampaignID: campaign.ID, ContactID: c.ID, Channel: models.CHANNEL_EMAIL, TrackingID: uuid.NewString(), Status: models.SEND_SENT}
	require.NoError(t, repo.CreateSend(send))

	first := time.Now().UTC().Add(-time.Minute)
	got, isFirst, err := repo.MarkSendOpened(send.TrackingID, first)
	require.NoError(t, err)
	assert.True(t, isFirst)
	require.NotNil(t, got.OpenedAt)

	_, isFirst, err = repo.MarkSendOpened(send.TrackingID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, isFirst)

	_, isFirst, err = repo.MarkSendClicked(send.TrackingID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, isFirst)

	_, _, err = repo.MarkSendOpened("unknown", time.Now().UTC())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMarketingRepositoryClaimSendOncePerContact(t *testing.T) {
	db := newTestDB(t)
	repo := NewMarketingRepository(db)
	u := createUser(t, db, "claim@example.com")

	c := newContact(u.ID, "a@example.com", "", true, false)
	require.NoError(t, repo.CreateContact(&c))
	campaign := &models.MarketingCampaign{UserID: u.ID, Name: "Promo", Channel: models.CHANNEL_EMAIL, TargetType: models.TARGET_ALL, Status: models.CAMPAIGN_SENDING}
	require.NoError(t, repo.CreateCampaign(campaign))

	newSend := func() *models.MarketingSend {
		return &models.MarketingSend{UserID: u.ID, CampaignID: campaign.ID, ContactID: c.ID, Channel: models.CHANNEL_EMAIL, TrackingID: uuid.NewString(), Status: models.SEND_PENDING}
	}
	claimed, err := repo.ClaimSend(newSend())
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimSend(newSend())
	require.NoError(t, err)
	assert.False(t, claimed)

	sends, err := repo.ListSends(u.ID, campaign.ID)
	require.NoError(t, err)
	assert.Len(t, sends, 1)
}

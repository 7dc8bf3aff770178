package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/apikey"
)

func TestUserRepositoryGetByEmailIsCaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	u := createUser(t, db, "Marie@Example.com")

	got, err := repo.GetByEmail("  MARIE@example.com ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestUserRepositoryAPIKeyLookup(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	u := createUser(t, db, "api@example.com")

	key, err := u.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, repo.Update(u))

	candidates, err := repo.GetByAPIKeyPrefix(apikey.LookupPrefix(key))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.True(t, candidates[0].MatchesAPIKey(key))

	now := time.Now().UTC()
	require.NoError(t, repo.TouchAPIKey(u.ID, now))
	got, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.APIKeyLastUsedAt)

	got.RevokeAPIKey()
	require.NoError(t, repo.Update(got))
	_, err = repo.GetByAPIKeyPrefix(apikey.LookupPrefix(key))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepositoryTokens(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	u := createUser(t, db, "tokens@example.com")
	require.NoError(t, u.GenerateVerificationToken())
	require.NoError(t, u.GenerateResetToken())
	require.NoError(t, repo.Update(u))

	got, err := repo.GetByVerificationToken(u.VerificationToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = repo.GetByResetToken(u.ResetToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repo.GetByResetToken("")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepositorySetAccountStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	u := createUser(t, db, "status@example.com")

	require.NoError(t, repo.SetAccountStatus(u.ID, models.ACCOUNT_SUSPENDED))
	got, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ACCOUNT_SUSPENDED, got.AccountStatus)

	assert.Error(t, repo.SetAccountStatus(u.ID, "banned"))
	assert.ErrorIs(t, repo.SetAccountStatus(9999, models.ACCOUNT_ACTIVE), gorm.ErrRecordNotFound)
}

func TestUserRepositoryDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	calls := NewCallRepository(db)
	marketing := NewMarketingRepository(db)
	u := createUser(t, db, "leaving@example.com")
	keep := createUser(t, db, "staying@example.com")

	seedCall(t, calls, u.ID, time.Now().UTC(), models.CALL_STATUS_COMPLETED, nil, nil)
	seedCall(t, calls, keep.ID, time.Now().UTC(), models.CALL_STATUS_COMPLETED, nil, nil)
	require.NoError(t, marketing.CreateContact(&models.MarketingContact{UserID: u.ID, Email: "c@example.com"}))
	require.NoError(t, models.CreateNotification(db, u.ID, models.NOTIFICATION_DAILY_SUMMARY, "t", "m", 0))

	require.NoError(t, repo.Delete(u.ID))

	_, err := repo.GetByID(u.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var n int64
	require.NoError(t, db.Model(&models.Call{}).Where("user_id = ?", u.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&models.MarketingContact{}).Where("user_id = ?", u.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&models.Notification{}).Where("user_id = ?", u.ID).Count(&n).Error)
	assert.Zero(t, n)

	require.NoError(t, db.Model(&models.Call{}).Where("user_id = ?", keep.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, repo.Delete(u.ID), gorm.ErrRecordNotFound)
}

func TestUserRepositorySearchAndIDs(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	a := createUser(t, db, "alpha@example.com")
	b := createUser(t, db, "beta@example.com")

	found, err := repo.Search("beta")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, b.ID, found[0].ID)

	ids, err := repo.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID, b.ID}, ids)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestUserRepositoryProviderAccounts(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	u := createUser(t, db, "oauth@example.com")

	require.NoError(t, repo.CreateProviderAccount(&models.ProviderAccount{UserID: u.ID, Provider: "google", ProviderUserID: "g-1", Email: u.Email}))
	acc, err := repo.GetProviderAccount("google", "g-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, acc.UserID)

	assert.Error(t, repo.CreateProviderAccount(&models.ProviderAccount{UserID: u.ID, Provider: "google", ProviderUserID: "g-1"}))
}

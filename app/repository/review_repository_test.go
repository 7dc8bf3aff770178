package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedai/speedai/app/models"
)

func TestReviewRepositoryUpsertConfig(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	u := createUser(t, db, "resto@example.com")

	require.NoError(t, repo.UpsertConfig(&models.ReviewConfig{UserID: u.ID, BusinessName: "Chez Jean", AlertThreshold: 3, PreferredPlatform: models.PLATFORM_GOOGLE}))
	require.NoError(t, repo.UpsertConfig(&models.ReviewConfig{UserID: u.ID, BusinessName: "Chez Jeanne", AlertThreshold: 2, PreferredPlatform: models.PLATFORM_GOOGLE}))

	cfg, err := repo.GetConfig(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chez Jeanne", cfg.BusinessName)
	assert.Equal(t, 2, cfg.AlertThreshold)

	var n int64
	require.NoError(t, db.Model(&models.ReviewConfig{}).Where("user_id = ?", u.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestReviewRepositoryUpsertReviewAndStats(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	u := createUser(t, db, "reviews@example.com")

	published := time.Now().UTC().Add(-time.Hour)
	created, err := repo.UpsertReview(&models.Review{UserID: u.ID, Platform: models.PLATFORM_GOOGLE, ExternalID: "r1", Rating: 5, AuthorName: "Anne", PublishedAt: &published})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.UpsertReview(&models.Review{UserID: u.ID, Platform: models.PLATFORM_GOOGLE, ExternalID: "r1", Rating: 4, AuthorName: "Anne", PublishedAt: &published})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = repo.UpsertReview(&models.Review{UserID: u.ID, Platform: models.PLATFORM_FACEBOOK, ExternalID: "r1", Rating: 2})
	require.NoError(t, err)

	reviews, total, err := repo.ListReviews(u.ID, ReviewFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, reviews, 2)

	low, _, err := repo.ListReviews(u.ID, ReviewFilter{MaxRating: 3})
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, models.PLATFORM_FACEBOOK, low[0].Platform)

	stats, err := repo.GetStats(u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalReviews)
	assert.Equal(t, 3.0, stats.AverageRating)
	assert.Equal(t, int64(1), stats.ByPlatform[models.PLATFORM_GOOGLE])
	assert.Equal(t, int64(1), stats.Distribution[4])
	assert.Equal(t, int64(0), stats.Distribution[5])
}

func TestReviewRepositoryUpsertReviewConcurrentSync(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	u := createUser(t, db, "sync-race@example.com")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(rating int) {
			defer wg.Done()
			ok, err := repo.UpsertReview(&models.Review{UserID: u.ID, Platform: models.PLATFORM_GOOGLE, ExternalID: "same", Rating: rating, AuthorName: "Luc"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				created++
			}
		}(i%5 + 1)
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, 1, created)
	_, total, err := repo.ListReviews(u.ID, ReviewFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestReviewRepositoryRequests(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	u := createUser(t, db, "requests@example.com")

	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.CreateRequest(&models.ReviewRequest{UserID: u.ID, ShortCode: "abc123", Status: models.REVIEW_REQUEST_PENDING}))
	require.NoError(t, repo.CreateRequest(&models.ReviewRequest{UserID: u.ID, ShortCode: "def456", Status: models.REVIEW_REQUEST_PENDING, SendAfter: &future}))

	due, err := repo.ListDueRequests(time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "abc123", due[0].ShortCode)

	req, err := repo.GetRequestByShortCode("def456")
	require.NoError(t, err)
	assert.Equal(t, u.ID, req.UserID)

	assert.Error(t, repo.CreateRequest(&models.ReviewRequest{UserID: u.ID, ShortCode: "abc123"}), "short codes are unique")
}

func TestReviewRepositoryAlerts(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	u := createUser(t, db, "alerts@example.com")
	other := createUser(t, db, "other-alerts@example.com")

	alert := &models.ReviewAlert{UserID: u.ID, ReviewID: 1, Type: models.REVIEW_ALERT_NEGATIVE, Message: "Avis 1/5"}
	require.NoError(t, repo.CreateAlert(alert))

	assert.Error(t, repo.MarkAlertRead(other.ID, alert.ID))
	require.NoError(t, repo.MarkAlertRead(u.ID, alert.ID))

	unread, err := repo.ListAlerts(u.ID, true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

package repository

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/analytics"
)

type reviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository creates a new review repository instance
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) GetConfig(userID uint) (*models.ReviewConfig, error) {
	var cfg models.ReviewConfig
	if err := r.db.Where("user_id = ?", userID).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpsertConfig writes the single config row of the user
func (r *reviewRepository) UpsertConfig(cfg *models.ReviewConfig) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"business_name", "google_review_url", "facebook_page_url", "tripadvisor_url",
			"preferred_platform", "alert_threshold", "auto_request", "request_delay_hours",
			"email_subject", "email_message", "updated_at",
		}),
	}).Create(cfg).Error
}

func (r *reviewRepository) CreateIncentive(incentive *models.ReviewIncentive) error {
	return r.db.Create(incentive).Error
}

func (r *reviewRepository) GetIncentive(userID, id uint) (*models.ReviewIncentive, error) {
	var inc models.ReviewIncentive
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&inc).Error; err != nil {
		return nil, err
	}
	return &inc, nil
}

func (r *reviewRepository) ListIncentives(userID uint) ([]models.ReviewIncentive, error) {
	var out []models.ReviewIncentive
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error
	return out, err
}

func (r *reviewRepository) UpdateIncentive(incentive *models.ReviewIncentive) error {
	return affected(r.db.Model(incentive).Where("user_id = ?", incentive.UserID).
		Select("*").Omit("id", "user_id", "created_at").Updates(incentive))
}

func (r *reviewRepository) DeleteIncentive(userID, id uint) error {
	return affected(r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.ReviewIncentive{}))
}

func (r *reviewRepository) CreateRequest(req *models.ReviewRequest) error {
	return r.db.Create(req).Error
}

func (r *reviewRepository) GetRequest(userID, id uint) (*models.ReviewRequest, error) {
	var req models.ReviewRequest
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// GetRequestByShortCode resolves the public /r/<code> link
func (r *reviewRepository) GetRequestByShortCode(code string) (*models.ReviewRequest, error) {
	if code == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var req models.ReviewRequest
	if err := r.db.Where("short_code = ?", code).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *reviewRepository) ListRequests(userID uint) ([]models.ReviewRequest, error) {
	var out []models.ReviewRequest
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC").Find(&out).Error
	return out, err
}

// ListDueRequests returns pending requests of every tenant ready to be sent
func (r *reviewRepository) ListDueRequests(now time.Time) ([]models.ReviewRequest, error) {
	var out []models.ReviewRequest
	err := r.db.Where("status = ? AND (send_after IS NULL OR send_after <= ?)", models.REVIEW_REQUEST_PENDING, now).
		Order("id").Find(&out).Error
	return out, err
}

func (r *reviewRepository) UpdateRequest(req *models.ReviewRequest) error {
	return affected(r.db.Model(req).Where("user_id = ?", req.UserID).
		Select("*").Omit("id", "user_id", "created_at").Updates(req))
}

// UpsertReview inserts a review or refreshes the mutable fields of the stored
// one with the same platform and external id. created is true for new reviews.
func (r *reviewRepository) UpsertReview(review *models.Review) (bool, error) {
	var created bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "platform"}, {Name: "external_id"}},
			DoNothing: true,
		}).Create(review)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			created = true
			return nil
		}

		var existing models.Review
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND platform = ? AND external_id = ?", review.UserID, review.Platform, review.ExternalID).
			First(&existing).Error; err != nil {
			return err
		}
		existing.AuthorName = review.AuthorName
		existing.Rating = review.Rating
		existing.Content = review.Content
		existing.PublishedAt = review.PublishedAt
		if review.SourceID != nil {
			existing.SourceID = review.SourceID
		}
		if err := tx.Model(&existing).Select("author_name", "rating", "content", "published_at", "source_id").Updates(&existing).Error; err != nil {
			return err
		}
		*review = existing
		return nil
	})
	return created, err
}

func (r *reviewRepository) GetReview(userID, id uint) (*models.Review, error) {
	var rv models.Review
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&rv).Error; err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *reviewRepository) ListReviews(userID uint, filter ReviewFilter) ([]models.Review, int64, error) {
	q := r.db.Model(&models.Review{}).Where("user_id = ?", userID)
	if filter.Platform != "" {
		q = q.Where("platform = ?", filter.Platform)
	}
	if filter.MaxRating > 0 {
		q = q.Where("rating <= ?", filter.MaxRating)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []models.Review
	err := q.Order("published_at DESC").Order("id DESC").Offset(filter.Offset).Limit(limit).Find(&out).Error
	return out, total, err
}

func (r *reviewRepository) UpdateReview(review *models.Review) error {
	return affected(r.db.Model(review).Where("user_id = ?", review.UserID).
		Select("*").Omit("id", "user_id", "created_at").Updates(review))
}

func (r *reviewRepository) CreateAlert(alert *models.ReviewAlert) error {
	return r.db.Create(alert).Error
}

func (r *reviewRepository) ListAlerts(userID uint, unreadOnly bool) ([]models.ReviewAlert, error) {
	q := r.db.Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var out []models.ReviewAlert
	err := q.Order("created_at DESC").Order("id DESC").Find(&out).Error
	return out, err
}

func (r *reviewRepository) MarkAlertRead(userID, id uint) error {
	var alert models.ReviewAlert
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&alert).Error; err != nil {
		return err
	}
	return r.db.Model(&alert).UpdateColumn("is_read", true).Error
}

func (r *reviewRepository) CreateSource(source *models.ReviewSource) error {
	return r.db.Create(source).Error
}

func (r *reviewRepository) GetSource(userID, id uint) (*models.ReviewSource, error) {
	var s models.ReviewSource
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *reviewRepository) ListSources(userID uint) ([]models.ReviewSource, error) {
	var out []models.ReviewSource
	err := r.db.Where("user_id = ?", userID).Order("id").Find(&out).Error
	return out, err
}

// ListActiveSources returns the sources of every tenant that take part in sync
func (r *reviewRepository) ListActiveSources() ([]models.ReviewSource, error) {
	var out []models.ReviewSource
	err := r.db.Where("is_active = ?", true).Order("user_id").Order("id").Find(&out).Error
	return out, err
}

func (r *reviewRepository) UpdateSource(source *models.ReviewSource) error {
	return affected(r.db.Model(source).Where("user_id = ?", source.UserID).
		Select("*").Omit("id", "user_id", "created_at").Updates(source))
}

func (r *reviewRepository) DeleteSource(userID, id uint) error {
	return affected(r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.ReviewSource{}))
}

func (r *reviewRepository) CreateSyncLog(log *models.ReviewSyncLog) error {
	return r.db.Create(log).Error
}

func (r *reviewRepository) UpdateSyncLog(log *models.ReviewSyncLog) error {
	return r.db.Model(log).Where("user_id = ?", log.UserID).Select("*").Omit("id", "user_id").Updates(log).Error
}

func (r *reviewRepository) ListSyncLogs(userID uint, limit int) ([]models.ReviewSyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.ReviewSyncLog
	err := r.db.Where("user_id = ?", userID).Order("started_at DESC").Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// GetStats summarizes the user's reviews and requests
func (r *reviewRepository) GetStats(userID uint) (*ReviewStats, error) {
	stats := &ReviewStats{
		ByPlatform:   map[string]int64{},
		Distribution: map[int]int64{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}

	var avg sql.NullFloat64
	row := r.db.Model(&models.Review{}).Where("user_id = ?", userID).Select("COUNT(*), AVG(rating)").Row()
	if err := row.Scan(&stats.TotalReviews, &avg); err != nil {
		return nil, fmt.Errorf("failed to aggregate reviews: %w", err)
	}
	if avg.Valid {
		stats.AverageRating = analytics.Round1(avg.Float64)
	}

	var platforms []struct {
		Platform string
		Count    int64
	}
	if err := r.db.Model(&models.Review{}).Select("platform, COUNT(*) AS count").
		Where("user_id = ?", userID).Group("platform").Scan(&platforms).Error; err != nil {
		return nil, fmt.Errorf("failed to count reviews per platform: %w", err)
	}
	for _, p := range platforms {
		stats.ByPlatform[p.Platform] = p.Count
	}

	var ratings []struct {
		Rating int
		Count  int64
	}
	if err := r.db.Model(&models.Review{}).Select("rating, COUNT(*) AS count").
		Where("user_id = ?", userID).Group("rating").Scan(&ratings).Error; err != nil {
		return nil, fmt.Errorf("failed to count ratings: %w", err)
	}
	for _, rt := range ratings {
		stats.Distribution[rt.Rating] = rt.Count
	}

	if err := r.db.Model(&models.ReviewAlert{}).Where("user_id = ? AND is_read = ?", userID, false).
		Count(&stats.UnreadAlerts).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.ReviewRequest{}).Where("user_id = ? AND sent_at IS NOT NULL", userID).
		Count(&stats.RequestsSent).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.ReviewRequest{}).Where("user_id = ? AND clicked_at IS NOT NULL", userID).
		Count(&stats.RequestsClick).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/speedai/speedai/app/models"
)

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository instance
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(n *models.Notification) error {
	return r.db.Create(n).Error
}

// List returns the user's notifications, newest first
func (r *notificationRepository) List(userID uint, unreadOnly bool, offset, limit int) ([]models.Notification, error) {
	q := r.db.Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if limit <= 0 {
		limit = 50
	}
	var out []models.Notification
	err := q.Order("created_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

func (r *notificationRepository) CountUnread(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", userID, false).Count(&count).Error
	return count, err
}

func (r *notificationRepository) SetRead(userID, id uint, read bool) error {
	res := r.db.Model(&models.Notification{}).Where("id = ? AND user_id = ?", id, userID).Update("is_read", read)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(userID uint) (int64, error) {
	res := r.db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", userID, false).Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) Delete(userID, id uint) error {
	res := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository creates a new monthly report repository instance
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

// CreateIfNotExists inserts the report unless one exists for the same user and period.
func (r *reportRepository) CreateIfNotExists(report *models.MonthlyReport) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "period"}},
		DoNothing: true,
	}).Create(report)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *reportRepository) List(userID uint) ([]models.MonthlyReport, error) {
	var out []models.MonthlyReport
	err := r.db.Where("user_id = ?", userID).Order("period DESC").Find(&out).Error
	return out, err
}

func (r *reportRepository) GetByPeriod(userID uint, period string) (*models.MonthlyReport, error) {
	var report models.MonthlyReport
	err := r.db.Where("user_id = ? AND period = ?", userID, period).First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
)

type guaranteeRepository struct {
	db *gorm.DB
}

// NewGuaranteeRepository creates a new no-show guarantee repository instance
func NewGuaranteeRepository(db *gorm.DB) GuaranteeRepository {
	return &guaranteeRepository{db: db}
}

func (r *guaranteeRepository) CreateSession(session *models.GuaranteeSession) error {
	if session.Status == "" {
		session.Status = models.GUARANTEE_PENDING
	}
	return r.db.Create(session).Error
}

func (r *guaranteeRepository) GetSession(userID, id uint) (*models.GuaranteeSession, error) {
	var s models.GuaranteeSession
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *guaranteeRepository) ListSessions(userID uint, status string) ([]models.GuaranteeSession, error) {
	q := r.db.Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.GuaranteeSession
	err := q.Order("reservation_date DESC").Order("id DESC").Find(&out).Error
	return out, err
}

func (r *guaranteeRepository) UpdateSession(session *models.GuaranteeSession) error {
	return affected(r.db.Model(session).Where("user_id = ?", session.UserID).
		Select("*").Omit("id", "user_id", "created_at").Updates(session))
}

func (r *guaranteeRepository) DeleteSession(userID, id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ? AND user_id = ?", id, userID).Delete(&models.NoshowCharge{}).Error; err != nil {
			return err
		}
		return affected(tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.GuaranteeSession{}))
	})
}

func (r *guaranteeRepository) CreateCharge(charge *models.NoshowCharge) error {
	return r.db.Create(charge).Error
}

func (r *guaranteeRepository) ListCharges(userID, sessionID uint) ([]models.NoshowCharge, error) {
	var out []models.NoshowCharge
	err := r.db.Where("user_id = ? AND session_id = ?", userID, sessionID).Order("id").Find(&out).Error
	return out, err
}

// GetStats counts sessions per outcome and sums the collected amounts
func (r *guaranteeRepository) GetStats(userID uint) (*GuaranteeStats, error) {
	var stats GuaranteeStats
	row := r.db.Model(&models.GuaranteeSession{}).Where("user_id = ?", userID).Select(
		"COUNT(*), "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0), "+
			"COALESCE(SUM(CASE WHEN status IN (?, ?, ?) THEN 1 ELSE 0 END), 0), "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)",
		models.GUARANTEE_HONORED,
		models.GUARANTEE_NO_SHOW, models.GUARANTEE_CHARGED, models.GUARANTEE_CHARGE_FAILED,
		models.GUARANTEE_CHARGED,
	).Row()
	if err := row.Scan(&stats.TotalSessions, &stats.Honored, &stats.NoShows, &stats.Charged); err != nil {
		return nil, fmt.Errorf("failed to aggregate guarantee sessions: %w", err)
	}

	row = r.db.Model(&models.NoshowCharge{}).Where("user_id = ?", userID).Select(
		"COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0), "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)",
		models.CHARGE_SUCCEEDED, models.CHARGE_FAILED,
	).Row()
	if err := row.Scan(&stats.ChargedAmount, &stats.FailedCharges); err != nil {
		return nil, fmt.Errorf("failed to aggregate no-show charges: %w", err)
	}
	return &stats, nil
}

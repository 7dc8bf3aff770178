package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/analytics"
)

// callRepository implements the CallRepository interface
type callRepository struct {
	db *gorm.DB
}

// NewCallRepository creates a new call repository instance
func NewCallRepository(db *gorm.DB) CallRepository {
	return &callRepository{db: db}
}

// scoped restricts a call query to one tenant and an optional start_time range.
func (r *callRepository) scoped(userID uint, cr CallRange) *gorm.DB {
	q := r.db.Model(&models.Call{}).Where("user_id = ?", userID)
	if cr.Since != nil {
		q = q.Where("start_time >= ?", *cr.Since)
	}
	if cr.Until != nil {
		q = q.Where("start_time < ?", *cr.Until)
	}
	return q
}

// Create stores a new call
func (r *callRepository) Create(call *models.Call) error {
	if call.UserID == 0 {
		return errors.New("call without user")
	}
	return r.db.Create(call).Error
}

// UpsertByExternalID creates the call, or applies its fields to the existing call
// with the same external id. created reports which path was taken. Concurrent
// deliveries of one external id resolve on ux_calls_user_external.
func (r *callRepository) UpsertByExternalID(call *models.Call) (bool, error) {
	if call.ExternalID == nil || *call.ExternalID == "" {
		return true, r.Create(call)
	}
	if call.UserID == 0 {
		return false, errors.New("call without user")
	}

	var created bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "external_id"}},
			DoNothing: true,
		}).Create(call)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			created = true
			return nil
		}

		var existing models.Call
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND external_id = ?", call.UserID, *call.ExternalID).
			First(&existing).Error; err != nil {
			return err
		}

		update := models.CallUpdate{
			ConversionResult:  call.ConversionResult,
			AppointmentDate:   call.AppointmentDate,
			BookingConfidence: call.BookingConfidence,
			Keywords:          call.KeywordList(),
			Tags:              call.TagList(),
		}
		setIfNotEmpty(&update.Summary, call.Summary)
		setIfNotEmpty(&update.Transcript, call.Transcript)
		setIfNotEmpty(&update.ClientName, call.ClientName)
		setIfNotEmpty(&update.ClientEmail, call.ClientEmail)
		setIfNotEmpty(&update.ClientMood, call.ClientMood)
		if !existing.IsTerminal() {
			update.StartTime = call.ExplicitStartTime()
			setIfNotEmpty(&update.PhoneNumber, call.PhoneNumber)
			setIfNotEmpty(&update.Status, call.Status)
			update.EndTime = call.EndTime
			update.Duration = call.Duration
		}
		if err := existing.Apply(update); err != nil {
			return err
		}
		if err := tx.Model(&existing).Select("*").Omit("id", "user_id", "created_at").Updates(&existing).Error; err != nil {
			return err
		}
		*call = existing
		return nil
	})
	return created, err
}

func setIfNotEmpty(dst **string, v string) {
	if v != "" {
		*dst = &v
	}
}

// GetByID retrieves one of the user's calls
func (r *callRepository) GetByID(userID, id uint) (*models.Call, error) {
	var call models.Call
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&call).Error
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// GetByExternalID retrieves a call by the workflow id
func (r *callRepository) GetByExternalID(userID uint, externalID string) (*models.Call, error) {
	var call models.Call
	err := r.db.Where("user_id = ? AND external_id = ?", userID, externalID).First(&call).Error
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// List returns a page of calls, newest first, together with the unpaged total
func (r *callRepository) List(userID uint, filter CallListFilter) ([]models.Call, int64, error) {
	q := r.scoped(userID, filter.Range)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.AppointmentsOnly {
		q = q.Where("appointment_date IS NOT NULL")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count calls: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var calls []models.Call
	err := q.Order("start_time DESC").Offset(filter.Offset).Limit(limit).Find(&calls).Error
	return calls, total, err
}

// Update saves a call. The caller applies the finalization rule first.
func (r *callRepository) Update(call *models.Call) error {
	res := r.db.Model(call).Where("user_id = ?", call.UserID).Select("*").Omit("id", "user_id", "created_at").Updates(call)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes one of the user's calls
func (r *callRepository) Delete(userID, id uint) error {
	res := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Call{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetStats aggregates the user's calls in one query
func (r *callRepository) GetStats(userID uint, cr CallRange) (*CallAggregate, error) {
	var (
		agg CallAggregate
		avg sql.NullFloat64
	)
	row := r.scoped(userID, cr).Select(
		"COUNT(*), "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0), "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0), "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0), "+
			"COALESCE(SUM(CASE WHEN "+analytics.SuccessfulCallSQL+" THEN 1 ELSE 0 END), 0), "+
			"AVG(CASE WHEN status = ? AND duration IS NOT NULL THEN duration END)",
		models.CALL_STATUS_ACTIVE, models.CALL_STATUS_COMPLETED, models.CALL_STATUS_FAILED, models.CALL_STATUS_COMPLETED,
	).Row()
	if err := row.Scan(&agg.Total, &agg.Active, &agg.Completed, &agg.Failed, &agg.Successful, &avg); err != nil {
		return nil, fmt.Errorf("failed to aggregate calls: %w", err)
	}
	if avg.Valid {
		agg.AverageDuration = avg.Float64
	}
	return &agg, nil
}

// GetChartPoints returns the columns needed to bucket calls by day
func (r *callRepository) GetChartPoints(userID uint, cr CallRange) ([]analytics.CallPoint, error) {
	var rows []struct {
		StartTime time.Time
		Status    string
		Duration  *int
	}
	err := r.scoped(userID, cr).Select("start_time, status, duration").Order("start_time").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load chart points: %w", err)
	}
	points := make([]analytics.CallPoint, len(rows))
	for i, row := range rows {
		points[i] = analytics.CallPoint{StartTime: row.StartTime, Status: row.Status, Duration: row.Duration}
	}
	return points, nil
}

// GetStartTimes returns call start times, used for the peak hour
func (r *callRepository) GetStartTimes(userID uint, cr CallRange) ([]time.Time, error) {
	var times []time.Time
	err := r.scoped(userID, cr).Order("start_time").Pluck("start_time", &times).Error
	return times, err
}

// BackfillConversionResults marks legacy completed calls as converted so the
// successful predicate no longer needs its status fallback.
func (r *callRepository) BackfillConversionResults() (int64, error) {
	res := r.db.Model(&models.Call{}).
		Where("status = ? AND (conversion_result IS NULL OR conversion_result = '')", models.CALL_STATUS_COMPLETED).
		UpdateColumn("conversion_result", models.CONVERSION_CONVERTED)
	return res.RowsAffected, res.Error
}

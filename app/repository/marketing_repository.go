package repository

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/speedai/speedai/app/models"
)

type marketingRepository struct {
	db *gorm.DB
}

// NewMarketingRepository creates a new marketing repository instance
func NewMarketingRepository(db *gorm.DB) MarketingRepository {
	return &marketingRepository{db: db}
}

func affected(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// applyContactFilter narrows a contact query. Tags match any-of on the JSON text,
// which keeps the query portable between MySQL and SQLite.
func applyContactFilter(q *gorm.DB, f models.ContactFilter) *gorm.DB {
	if len(f.Tags) > 0 {
		var (
			conds []string
			args  []interface{}
		)
		for _, tag := range f.Tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" {
				continue
			}
			conds = append(conds, "tags LIKE ?")
			args = append(args, `%"`+tag+`"%`)
		}
		if len(conds) > 0 {
			q = q.Where("("+strings.Join(conds, " OR ")+")", args...)
		}
	}
	if f.Source != "" {
		q = q.Where("source = ?", f.Source)
	}
	switch f.Channel {
	case models.CHANNEL_EMAIL:
		q = q.Where("opt_in_email = ? AND email <> ''", true)
	case models.CHANNEL_SMS:
		q = q.Where("opt_in_sms = ? AND phone <> ''", true)
	}
	if f.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		q = q.Where("created_at < ?", *f.CreatedBefore)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := "%" + s + "%"
		q = q.Where("(first_name LIKE ? OR last_name LIKE ? OR email LIKE ? OR phone LIKE ?)", p, p, p, p)
	}
	return q
}

func (r *marketingRepository) CreateContact(contact *models.MarketingContact) error {
	return r.db.Create(contact).Error
}

// CreateContacts inserts a batch of contacts in one transaction
func (r *marketingRepository) CreateContacts(contacts []models.MarketingContact) error {
	if len(contacts) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&contacts, 100).Error
	})
}

func (r *marketingRepository) GetContact(userID, id uint) (*models.MarketingContact, error) {
	var c models.MarketingContact
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *marketingRepository) ListContacts(userID uint, filter models.ContactFilter, offset, limit int) ([]models.MarketingContact, int64, error) {
	q := applyContactFilter(r.db.Model(&models.MarketingContact{}).Where("user_id = ?", userID), filter)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}
	var out []models.MarketingContact
	err := q.Order("created_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

// FindContacts returns every contact matching the filter, for recipient resolution
func (r *marketingRepository) FindContacts(userID uint, filter models.ContactFilter) ([]models.MarketingContact, error) {
	var out []models.MarketingContact
	err := applyContactFilter(r.db.Where("user_id = ?", userID), filter).Order("id").Find(&out).Error
	return out, err
}

func (r *marketingRepository) UpdateContact(contact *models.MarketingContact) error {
	return affected(r.db.Model(contact).Where("user_id = ?", contact.UserID).
		Select("*").Omit("id", "user_id", "created_at").Updates(contact))
}

func (r *marketingRepository) DeleteContact(userID, id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contact_id = ? AND user_id = ?", id, userID).Delete(&models.MarketingSend{}).Error; err != nil {
			return err
		}
		return affected(tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.MarketingContact{}))
	})
}

// ApplyUnsubscribe revokes consent for channel (email, sms or both). Once no
// channel is left the contact is stamped as unsubscribed.
func (r *marketingRepository) ApplyUnsubscribe(userID, contactID uint, channel string, at time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var c models.MarketingContact
		if err := tx.Where("id = ? AND user_id = ?", contactID, userID).First(&c).Error; err != nil {
			return err
		}
		switch channel {
		case models.CHANNEL_EMAIL:
			c.OptInEmail = false
		case models.CHANNEL_SMS:
			c.OptInSms = false
		case models.CHANNEL_BOTH:
			c.OptInEmail = false
			c.OptInSms = false
		default:
			return fmt.Errorf("unknown channel %q", channel)
		}
		fields := map[string]interface{}{
			"opt_in_email": c.OptInEmail,
			"opt_in_sms":   c.OptInSms,
		}
		if !c.OptInEmail && !c.OptInSms && c.UnsubscribedAt == nil {
			fields["unsubscribed_at"] = at
		}
		return tx.Model(&models.MarketingContact{}).Where("id = ? AND user_id = ?", contactID, userID).Updates(fields).Error
	})
}

func (r *marketingRepository) CreateSegment(segment *models.MarketingSegment) error {
	return r.db.Create(segment).Error
}

func (r *marketingRepository) GetSegment(userID, id uint) (*models.MarketingSegment, error) {
	var s models.MarketingSegment
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *marketingRepository) ListSegments(userID uint) ([]models.MarketingSegment, error) {
	var out []models.MarketingSegment
	err := r.db.Where("user_id = ?", userID).Order("name").Find(&out).Error
	return out, err
}

func (r *marketingRepository) UpdateSegment(segment *models.MarketingSegment) error {
	return affected(r.db.Model(segment).Where("user_id = ?", segment.UserID).
		Select("*").Omit("id", "user_id", "created_at").Updates(segment))
}

func (r *marketingRepository) DeleteSegment(userID, id uint) error {
	return affected(r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.MarketingSegment{}))
}

func (r *marketingRepository) CreateCampaign(campaign *models.MarketingCampaign) error {
	return r.db.Create(campaign).Error
}

func (r *marketingRepository) GetCampaign(userID, id uint) (*models.MarketingCampaign, error) {
	var c models.MarketingCampaign
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *marketingRepository) ListCampaigns(userID uint, status string) ([]models.MarketingCampaign, error) {
	q := r.db.Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.MarketingCampaign
	err := q.Order("created_at DESC").Order("id DESC").Find(&out).Error
	return out, err
}

// ListDueCampaigns returns scheduled campaigns of every tenant whose time has come
func (r *marketingRepository) ListDueCampaigns(now time.Time) ([]models.MarketingCampaign, error) {
	var out []models.MarketingCampaign
	err := r.db.Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", models.CAMPAIGN_SCHEDULED, now).
		Order("scheduled_at").Find(&out).Error
	return out, err
}

func (r *marketingRepository) UpdateCampaign(campaign *models.MarketingCampaign) error {
	return affected(r.db.Model(campaign).Where("user_id = ?", campaign.UserID).
		Select("*").Omit("id", "user_id", "created_at", "open_count", "click_count").Updates(campaign))
}

// ClaimCampaign moves a draft or scheduled campaign to sending. Only one caller wins.
func (r *marketingRepository) ClaimCampaign(userID, id uint) (bool, error) {
	res := r.db.Model(&models.MarketingCampaign{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userID, []string{models.CAMPAIGN_DRAFT, models.CAMPAIGN_SCHEDULED}).
		Update("status", models.CAMPAIGN_SENDING)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *marketingRepository) DeleteCampaign(userID, id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ? AND user_id = ?", id, userID).Delete(&models.MarketingSend{}).Error; err != nil {
			return err
		}
		return affected(tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.MarketingCampaign{}))
	})
}

func (r *marketingRepository) CreateSend(send *models.MarketingSend) error {
	return r.db.Create(send).Error
}

// ClaimSend inserts the send row unless the contact already has one for the
// campaign. claimed is false when another run got there first.
func (r *marketingRepository) ClaimSend(send *models.MarketingSend) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "contact_id"}},
		DoNothing: true,
	}).Create(send)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *marketingRepository) UpdateSend(send *models.MarketingSend) error {
	return affected(r.db.Model(send).Where("user_id = ?", send.UserID).
		Select("*").Omit("id", "user_id", "created_at").Updates(send))
}

// GetSendByTrackingID resolves a public tracking id. The id is the only secret,
// so this lookup is not tenant scoped.
func (r *marketingRepository) GetSendByTrackingID(trackingID string) (*models.MarketingSend, error) {
	if strings.TrimSpace(trackingID) == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var s models.MarketingSend
	if err := r.db.Where("tracking_id = ?", trackingID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *marketingRepository) ListSends(userID, campaignID uint) ([]models.MarketingSend, error) {
	var out []models.MarketingSend
	err := r.db.Where("user_id = ? AND campaign_id = ?", userID, campaignID).Order("id").Find(&out).Error
	return out, err
}

// markFirst stamps column once. first reports whether this call set it.
func (r *marketingRepository) markFirst(trackingID, column string, at time.Time) (*models.MarketingSend, bool, error) {
	res := r.db.Model(&models.MarketingSend{}).
		Where("tracking_id = ? AND "+column+" IS NULL", trackingID).
		Update(column, at)
	if res.Error != nil {
		return nil, false, res.Error
	}
	send, err := r.GetSendByTrackingID(trackingID)
	if err != nil {
		return nil, false, err
	}
	return send, res.RowsAffected > 0, nil
}

func (r *marketingRepository) MarkSendOpened(trackingID string, at time.Time) (*models.MarketingSend, bool, error) {
	return r.markFirst(trackingID, "opened_at", at)
}

func (r *marketingRepository) MarkSendClicked(trackingID string, at time.Time) (*models.MarketingSend, bool, error) {
	return r.markFirst(trackingID, "clicked_at", at)
}

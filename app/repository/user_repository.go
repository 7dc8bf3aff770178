package repository

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address, case-insensitively
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) getByToken(column, token string) (*models.User, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	err := r.db.Where(column+" = ?", trimmed).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByVerificationToken retrieves a user by their email verification token
func (r *userRepository) GetByVerificationToken(token string) (*models.User, error) {
	return r.getByToken("verification_token", token)
}

// GetByResetToken retrieves a user by their password reset token
func (r *userRepository) GetByResetToken(token string) (*models.User, error) {
	return r.getByToken("reset_token", token)
}

// GetByAPIKeyPrefix returns the candidates whose stored key prefix matches.
// The caller verifies the full key against each hash.
func (r *userRepository) GetByAPIKeyPrefix(prefix string) ([]models.User, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var users []models.User
	err := r.db.Where("api_key_prefix = ? AND api_key_hash <> ''", prefix).Find(&users).Error
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return users, nil
}

// GetByStripeCustomerID resolves a billing customer to its user
func (r *userRepository) GetByStripeCustomerID(customerID string) (*models.User, error) {
	return r.getByToken("stripe_customer_id", customerID)
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// UpdateFields writes only the given columns
func (r *userRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Updates(fields).Error
}

// TouchAPIKey records the last successful API key use
func (r *userRepository) TouchAPIKey(id uint, at time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).UpdateColumn("api_key_last_used_at", at).Error
}

// SetAccountStatus changes the lifecycle status of an account
func (r *userRepository) SetAccountStatus(id uint, status string) error {
	if !models.IsValidAccountStatus(status) {
		return fmt.Errorf("invalid account status %q", status)
	}
	res := r.db.Model(&models.User{}).Where("id = ?", id).Update("account_status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ownedModels lists everything that belongs to a user, children first.
var ownedModels = []interface{}{
	&models.ReviewAlert{},
	&models.ReviewSyncLog{},
	&models.Review{},
	&models.ReviewSource{},
	&models.ReviewRequest{},
	&models.ReviewIncentive{},
	&models.ReviewConfig{},
	&models.MarketingSend{},
	&models.MarketingCampaign{},
	&models.MarketingSegment{},
	&models.MarketingContact{},
	&models.NoshowCharge{},
	&models.GuaranteeSession{},
	&models.MonthlyReport{},
	&models.Notification{},
	&models.Call{},
	&models.ProviderAccount{},
}

// Delete removes a user and every row they own in one transaction
func (r *userRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range ownedModels {
			if err := tx.Where("user_id = ?", id).Delete(m).Error; err != nil {
				return fmt.Errorf("failed to delete %T rows: %w", m, err)
			}
		}
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// List retrieves a paginated list of users
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// ListIDs returns every user ID, for the batch jobs
func (r *userRepository) ListIDs() ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.User{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

// Search searches for users by name, company or email
func (r *userRepository) Search(query string) ([]models.User, error) {
	var users []models.User
	searchPattern := "%" + strings.TrimSpace(query) + "%"
	err := r.db.Where("first_name LIKE ? OR last_name LIKE ? OR company_name LIKE ? OR email LIKE ?",
		searchPattern, searchPattern, searchPattern, searchPattern).
		Order("created_at DESC").Find(&users).Error
	return users, err
}

// GetProviderAccount looks up an OAuth identity
func (r *userRepository) GetProviderAccount(provider, providerUserID string) (*models.ProviderAccount, error) {
	var account models.ProviderAccount
	err := r.db.Where("provider = ? AND provider_user_id = ?", provider, providerUserID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateProviderAccount links an OAuth identity to a user
func (r *userRepository) CreateProviderAccount(account *models.ProviderAccount) error {
	return r.db.Create(account).Error
}

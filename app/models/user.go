package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

const (
	ROLE_USER  = "user"
	ROLE_ADMIN = "admin"

	ACCOUNT_TRIAL     = "trial"
	ACCOUNT_ACTIVE    = "active"
	ACCOUNT_SUSPENDED = "suspended"
	ACCOUNT_EXPIRED   = "expired"

	TrialPeriod             = 14 * 24 * time.Hour
	VerificationTokenExpiry = 24 * time.Hour
	ResetTokenExpiry        = time.Hour
)

type User struct {
	ID                         uint       `gorm:"primaryKey" json:"id"`
	Email                      string     `gorm:"uniqueIndex;type:varchar(200);not null" json:"email" validate:"required,email,max=200"`
	Password                   string     `gorm:"type:text" json:"-"`
	FirstName                  string     `gorm:"type:varchar(100)" json:"firstName" validate:"max=100"`
	LastName                   string     `gorm:"type:varchar(100)" json:"lastName" validate:"max=100"`
	CompanyName                string     `gorm:"type:varchar(200)" json:"companyName" validate:"max=200"`
	Phone                      string     `gorm:"type:varchar(30)" json:"phone" validate:"max=30"`
	Role                       string     `gorm:"type:varchar(20);default:'user'" json:"role" validate:"oneof=user admin"`
	IsVerified                 bool       `gorm:"default:false" json:"isVerified"`
	VerificationToken          string     `gorm:"type:varchar(100);index" json:"-"`
	VerificationTokenExpiresAt *time.Time `json:"-"`
	ResetToken                 string     `gorm:"type:varchar(100);index" json:"-"`
	ResetTokenExpiresAt        *time.Time `json:"-"`
	StripeCustomerID           string     `gorm:"type:varchar(100);index" json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID       string     `gorm:"type:varchar(100)" json:"stripeSubscriptionId,omitempty"`
	SubscriptionStatus         string     `gorm:"type:varchar(50)" json:"subscriptionStatus,omitempty"`
	AccountStatus              string     `gorm:"type:varchar(20);default:'trial';index" json:"accountStatus" validate:"oneof=trial active suspended expired"`
	TrialEndsAt                *time.Time `json:"trialEndsAt,omitempty"`
	APIKeyHash                 string     `gorm:"type:varchar(100)" json:"-"`
	APIKeyPrefix               string     `gorm:"type:varchar(32);index" json:"apiKeyPrefix,omitempty"`
	APIKeyCreatedAt            *time.Time `json:"apiKeyCreatedAt,omitempty"`
	APIKeyLastUsedAt           *time.Time `json:"apiKeyLastUsedAt,omitempty"`
	LastLoginAt                *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt                  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt                  time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NewUser builds a trial account with a hashed password. It is not persisted.
func NewUser(email, password, firstName, lastName, companyName string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	trialEnds := time.Now().Add(TrialPeriod)
	u := &User{
		Email:         strings.ToLower(strings.TrimSpace(email)),
		Password:      pw,
		FirstName:     strings.TrimSpace(firstName),
		LastName:      strings.TrimSpace(lastName),
		CompanyName:   strings.TrimSpace(companyName),
		Role:          ROLE_USER,
		AccountStatus: ACCOUNT_TRIAL,
		TrialEndsAt:   &trialEnds,
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// CheckPassword verifies if the provided password matches the user's stored password
func (u *User) CheckPassword(password string) bool {
	if u.Password == "" {
		return false
	}
	return CheckPasswordHash(password, u.Password)
}

// SetPassword hashes and sets a new password for the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.Password = hashedPassword
	return nil
}

// DisplayName returns the best human readable name of the account.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.CompanyName != "" {
		return u.CompanyName
	}
	return u.Email
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateVerificationToken sets a fresh email verification token valid for 24 hours.
func (u *User) GenerateVerificationToken() error {
	token, err := randomToken()
	if err != nil {
		return err
	}
	expires := time.Now().Add(VerificationTokenExpiry)
	u.VerificationToken = token
	u.VerificationTokenExpiresAt = &expires
	return nil
}

// IsVerificationTokenValid checks the token against the stored one and its expiry.
func (u *User) IsVerificationTokenValid(token string, now time.Time) bool {
	if u.VerificationToken == "" || u.VerificationTokenExpiresAt == nil || token == "" {
		return false
	}
	if u.VerificationToken != token {
		return false
	}
	return now.Before(*u.VerificationTokenExpiresAt)
}

// MarkVerified clears the verification token.
func (u *User) MarkVerified() {
	u.IsVerified = true
	u.VerificationToken = ""
	u.VerificationTokenExpiresAt = nil
}

// GenerateResetToken sets a fresh password reset token valid for one hour.
func (u *User) GenerateResetToken() error {
	token, err := randomToken()
	if err != nil {
		return err
	}
	expires := time.Now().Add(ResetTokenExpiry)
	u.ResetToken = token
	u.ResetTokenExpiresAt = &expires
	return nil
}

// IsResetTokenValid checks the token against the stored one and its expiry.
func (u *User) IsResetTokenValid(token string, now time.Time) bool {
	if u.ResetToken == "" || u.ResetTokenExpiresAt == nil || token == "" {
		return false
	}
	if u.ResetToken != token {
		return false
	}
	return now.Before(*u.ResetTokenExpiresAt)
}

// ClearResetToken invalidates the password reset token.
func (u *User) ClearResetToken() {
	u.ResetToken = ""
	u.ResetTokenExpiresAt = nil
}

// IsAdmin reports whether the account has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == ROLE_ADMIN
}

// HasAPIKey reports whether an API key is currently issued.
func (u *User) HasAPIKey() bool {
	return u.APIKeyHash != ""
}

// EffectiveAccountStatus resolves an elapsed trial to expired.
func (u *User) EffectiveAccountStatus(now time.Time) string {
	if u.AccountStatus == ACCOUNT_TRIAL && u.TrialEndsAt != nil && !now.Before(*u.TrialEndsAt) {
		return ACCOUNT_EXPIRED
	}
	if u.AccountStatus == "" {
		return ACCOUNT_TRIAL
	}
	return u.AccountStatus
}

// IsValidAccountStatus reports whether s is a known account status.
func IsValidAccountStatus(s string) bool {
	switch s {
	case ACCOUNT_TRIAL, ACCOUNT_ACTIVE, ACCOUNT_SUSPENDED, ACCOUNT_EXPIRED:
		return true
	}
	return false
}

package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/markbates/goth"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
)

var ErrMissingEmail = errors.New("oauth provider returned no email")

// ResolveUser finds the account behind an OAuth identity. An unknown identity
// is linked to the account with the same email, or to a new trial account.
func ResolveUser(users repository.UserRepository, gu goth.User) (*models.User, bool, error) {
	if account, err := users.GetProviderAccount(gu.Provider, gu.UserID); err == nil {
		u, err := users.GetByID(account.UserID)
		return u, false, err
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	email := strings.ToLower(strings.TrimSpace(gu.Email))
	if email == "" {
		return nil, false, ErrMissingEmail
	}

	created := false
	u, err := users.GetByEmail(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pw, perr := randomPassword()
		if perr != nil {
			return nil, false, perr
		}
		u, err = models.NewUser(email, pw, gu.FirstName, gu.LastName, "")
		if err != nil {
			return nil, false, err
		}
		u.MarkVerified()
		if err := users.Create(u); err != nil {
			return nil, false, fmt.Errorf("create oauth user: %w", err)
		}
		created = true
	} else if err != nil {
		return nil, false, err
	}

	if err := users.CreateProviderAccount(&models.ProviderAccount{
		UserID:         u.ID,
		Provider:       gu.Provider,
		ProviderUserID: gu.UserID,
		Email:          email,
	}); err != nil {
		return nil, false, fmt.Errorf("link provider account: %w", err)
	}

	now := time.Now()
	_ = users.UpdateFields(u.ID, map[string]interface{}{"last_login_at": now})
	return u, created, nil
}

// randomPassword is never shown; the account signs in through the provider
// or resets its password.
func randomPassword() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

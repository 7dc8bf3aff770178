package entitlements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/speedai/speedai/app/models"
)

func TestCheckAccess(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(36 * time.Hour)

	tests := []struct {
		name string
		user *models.User
		want error
	}{
		{"running trial", &models.User{AccountStatus: models.ACCOUNT_TRIAL, TrialEndsAt: &future}, nil},
		{"elapsed trial", &models.User{AccountStatus: models.ACCOUNT_TRIAL, TrialEndsAt: &past}, ErrAccountExpired},
		{"active", &models.User{AccountStatus: models.ACCOUNT_ACTIVE}, nil},
		{"suspended", &models.User{AccountStatus: models.ACCOUNT_SUSPENDED}, ErrAccountSuspended},
		{"expired", &models.User{AccountStatus: models.ACCOUNT_EXPIRED}, ErrAccountExpired},
		{"admin bypass", &models.User{Role: models.ROLE_ADMIN, AccountStatus: models.ACCOUNT_EXPIRED}, nil},
		{"nil user", nil, ErrAccountExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckAccess(tt.user, now))
		})
	}
}

func TestCodesAndDays(t *testing.T) {
	assert.Equal(t, "account_suspended", Code(ErrAccountSuspended))
	assert.Equal(t, "account_expired", Code(ErrAccountExpired))
	assert.Empty(t, Code(nil))
	assert.NotEmpty(t, Message(ErrAccountExpired))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(36 * time.Hour)
	assert.Equal(t, 2, TrialDaysLeft(&models.User{AccountStatus: models.ACCOUNT_TRIAL, TrialEndsAt: &future}, now))
	assert.Equal(t, 0, TrialDaysLeft(&models.User{AccountStatus: models.ACCOUNT_ACTIVE, TrialEndsAt: &future}, now))
}

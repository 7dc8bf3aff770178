package entitlements

import (
	"errors"
	"time"

	"github.com/speedai/speedai/app/models"
)

var (
	ErrAccountSuspended = errors.New("account suspended")
	ErrAccountExpired   = errors.New("account expired")
)

// Code is the machine error code returned to clients for a gating error.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAccountSuspended):
		return "account_suspended"
	case errors.Is(err, ErrAccountExpired):
		return "account_expired"
	default:
		return ""
	}
}

// Message is the French message shown for a gating error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrAccountSuspended):
		return "Votre compte est suspendu. Contactez le support."
	case errors.Is(err, ErrAccountExpired):
		return "Votre période d'essai ou votre abonnement a expiré."
	default:
		return ""
	}
}

// CheckAccess returns nil when the account may use the product at now.
// An elapsed trial counts as expired.
func CheckAccess(u *models.User, now time.Time) error {
	if u == nil {
		return ErrAccountExpired
	}
	if u.IsAdmin() {
		return nil
	}
	switch u.EffectiveAccountStatus(now) {
	case models.ACCOUNT_SUSPENDED:
		return ErrAccountSuspended
	case models.ACCOUNT_EXPIRED:
		return ErrAccountExpired
	default:
		return nil
	}
}

// TrialDaysLeft returns the whole days until the trial ends, 0 when over or
// when the account is not on trial.
func TrialDaysLeft(u *models.User, now time.Time) int {
	if u == nil || u.EffectiveAccountStatus(now) != models.ACCOUNT_TRIAL || u.TrialEndsAt == nil {
		return 0
	}
	left := u.TrialEndsAt.Sub(now)
	if left <= 0 {
		return 0
	}
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}

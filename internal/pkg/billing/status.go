package billing

import (
	"strings"

	"github.com/speedai/speedai/app/models"
)

// AccountStatusForSubscription maps a Stripe subscription status to the
// account lifecycle. ok is false when the account status should not change.
func AccountStatusForSubscription(status string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing":
		return models.ACCOUNT_ACTIVE, true
	case "canceled", "unpaid", "incomplete_expired":
		return models.ACCOUNT_EXPIRED, true
	default:
		return "", false
	}
}

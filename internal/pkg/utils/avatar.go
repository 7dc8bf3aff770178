package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const defaultAvatarSize = 80

// AvatarURL returns the Gravatar image of email, falling back to generated
// initials. Gravatar accepts the SHA-256 of the trimmed, lowercased address.
func AvatarURL(email string, size int) string {
	if size <= 0 {
		size = defaultAvatarSize
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?s=%d&d=initials", hex.EncodeToString(sum[:]), size)
}

package models

import (
	"time"

	"github.com/speedai/speedai/internal/pkg/apikey"
)

// IssueAPIKey replaces any existing key and returns the plaintext once.
func (u *User) IssueAPIKey() (string, error) {
	key, err := apikey.Generate()
	if err != nil {
		return "", err
	}
	hash, err := apikey.Hash(key)
	if err != nil {
		return "", err
	}

	now := time.Now()
	u.APIKeyHash = hash
	u.APIKeyPrefix = apikey.LookupPrefix(key)
	u.APIKeyCreatedAt = &now
	u.APIKeyLastUsedAt = nil
	return key, nil
}

// RevokeAPIKey removes the issued key.
func (u *User) RevokeAPIKey() {
	u.APIKeyHash = ""
	u.APIKeyPrefix = ""
	u.APIKeyCreatedAt = nil
	u.APIKeyLastUsedAt = nil
}

// MatchesAPIKey verifies key against the stored hash.
func (u *User) MatchesAPIKey(key string) bool {
	return apikey.Verify(key, u.APIKeyHash)
}

// Package apikey issues and verifies tenant API keys.
//
// A key is "speedai_live_" followed by 64 lowercase hex characters (32 bytes
// from crypto/rand). Only a bcrypt hash and a short lookup prefix are stored.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

const (
	Prefix = "speedai_live_"

	secretBytes = 32
	// lookupLength is the number of leading characters stored in clear for lookup.
	lookupLength = len(Prefix) + 12
)

var (
	ErrInvalidFormat = errors.New("invalid api key format")

	keyPattern = regexp.MustCompile(`^speedai_live_[0-9a-f]{64}$`)
)

// Generate returns a new random API key.
func Generate() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return Prefix + hex.EncodeToString(b), nil
}

// IsValidFormat reports whether key has the expected prefix, length and alphabet.
func IsValidFormat(key string) bool {
	return keyPattern.MatchString(key)
}

// LookupPrefix returns the non-secret part of the key used to find its owner.
func LookupPrefix(key string) string {
	if len(key) < lookupLength {
		return key
	}
	return key[:lookupLength]
}

// Hash returns the bcrypt hash stored for key.
func Hash(key string) (string, error) {
	if !IsValidFormat(key) {
		return "", ErrInvalidFormat
	}
	h, err := bcrypt.GenerateFromPassword(digest(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify compares key against a stored hash in constant time.
func Verify(key, hash string) bool {
	if hash == "" || !IsValidFormat(key) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), digest(key)) == nil
}

// bcrypt input is capped at 72 bytes; the full key is longer.
func digest(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return []byte(hex.EncodeToString(sum[:]))
}

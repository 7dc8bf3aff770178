package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

var ErrInvalidLinkSignature = errors.New("invalid link signature")

func linkMAC(trackingID, target, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(trackingID))
	mac.Write([]byte{0})
	mac.Write([]byte(target))
	return mac.Sum(nil)
}

// SignLink binds a redirect target to a tracking id so the click endpoint
// cannot be used as an open redirect.
func SignLink(trackingID, target, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required for link signing")
	}
	return base64.RawURLEncoding.EncodeToString(linkMAC(trackingID, target, secret)), nil
}

// VerifyLink checks a signature produced by SignLink.
func VerifyLink(trackingID, target, sig, secret string) error {
	if secret == "" {
		return errors.New("secret is required for link verification")
	}
	sigBytes, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return ErrInvalidLinkSignature
	}
	if !hmac.Equal(sigBytes, linkMAC(trackingID, target, secret)) {
		return ErrInvalidLinkSignature
	}
	return nil
}

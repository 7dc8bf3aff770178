package hcaptcha

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/speedai/speedai/internal/pkg/env"
)

const defaultVerifyURL = "https://hcaptcha.com/siteverify"

var (
	ErrEmptyToken = errors.New("hCaptcha token is empty")
	ErrFailed     = errors.New("hCaptcha validation failed")
)

type Response struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

// Verifier checks hCaptcha tokens. A verifier without secret is disabled.
type Verifier struct {
	Secret    string
	VerifyURL string
	Timeout   time.Duration
}

func NewVerifierFromEnv() *Verifier {
	return &Verifier{
		Secret:    env.GetEnv("HCAPTCHA_SECRET", ""),
		VerifyURL: env.GetEnv("HCAPTCHA_VERIFY_URL", defaultVerifyURL),
		Timeout:   5 * time.Second,
	}
}

// Enabled reports whether signups must carry a captcha token.
func (v *Verifier) Enabled() bool {
	return v != nil && v.Secret != ""
}

func (v *Verifier) Verify(token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("secret", v.Secret)
	args.Set("response", token)

	a := fiber.Post(v.VerifyURL)
	a.Form(args)
	if v.Timeout > 0 {
		a.Timeout(v.Timeout)
	}
	code, raw, errs := a.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("failed to send request to hCaptcha API: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("hCaptcha API returned %d", code)
	}

	var response Response
	if err := json.Unmarshal(raw, &response); err != nil {
		return fmt.Errorf("failed to decode hCaptcha API response: %w", err)
	}
	if !response.Success {
		if len(response.ErrorCodes) > 0 {
			return fmt.Errorf("%w: %s", ErrFailed, strings.Join(response.ErrorCodes, ", "))
		}
		return ErrFailed
	}
	return nil
}

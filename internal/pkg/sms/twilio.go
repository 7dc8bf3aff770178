package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/speedai/speedai/internal/pkg/env"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

var ErrNotConfigured = errors.New("sms provider is not configured")

// MaxBodyLength is the longest body sent; longer texts are truncated.
const MaxBodyLength = 1600

// Sender delivers one text message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Twilio sends SMS through the Twilio Messages REST API.
type Twilio struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
	Timeout    time.Duration
}

func NewTwilioFromEnv() *Twilio {
	return &Twilio{
		BaseURL:    env.GetEnv("TWILIO_BASE_URL", defaultTwilioBaseURL),
		AccountSID: env.GetEnv("TWILIO_ACCOUNT_SID", ""),
		AuthToken:  env.GetEnv("TWILIO_AUTH_TOKEN", ""),
		From:       env.GetEnv("TWILIO_FROM_NUMBER", ""),
		Timeout:    10 * time.Second,
	}
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (t *Twilio) Send(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if t.AccountSID == "" || t.AuthToken == "" || t.From == "" {
		return "", ErrNotConfigured
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return "", errors.New("recipient phone number is empty")
	}
	if r := []rune(body); len(r) > MaxBodyLength {
		body = string(r[:MaxBodyLength])
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(t.BaseURL, "/"), t.AccountSID)
	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("To", to)
	args.Set("From", t.From)
	args.Set("Body", body)

	a := fiber.Post(endpoint)
	a.BasicAuth(t.AccountSID, t.AuthToken)
	a.Form(args)
	if t.Timeout > 0 {
		a.Timeout(t.Timeout)
	}

	code, raw, errs := a.Bytes()
	if len(errs) > 0 {
		return "", fmt.Errorf("twilio request: %w", errors.Join(errs...))
	}
	var resp twilioResponse
	_ = json.Unmarshal(raw, &resp)
	if code < 200 || code >= 300 {
		return "", fmt.Errorf("twilio returned %d: %s", code, resp.Message)
	}
	return resp.SID, nil
}

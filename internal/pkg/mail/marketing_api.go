package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/speedai/speedai/internal/pkg/env"
)

const defaultMarketingEndpoint = "https://api.resend.com/emails"

var ErrMarketingNotConfigured = errors.New("marketing email api is not configured")

// APIMailer sends marketing mail through a hosted, Resend-compatible API.
type APIMailer struct {
	Endpoint string
	APIKey   string
	From     string
	Timeout  time.Duration
}

func NewAPIMailerFromEnv() *APIMailer {
	return &APIMailer{
		Endpoint: env.GetEnv("MARKETING_EMAIL_ENDPOINT", defaultMarketingEndpoint),
		APIKey:   env.GetEnv("MARKETING_EMAIL_API_KEY", ""),
		From:     env.GetEnv("MARKETING_EMAIL_FROM", "SpeedAI <marketing@speedai.fr>"),
		Timeout:  10 * time.Second,
	}
}

type apiRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers,omitempty"`
}

type apiResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (m *APIMailer) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.APIKey == "" {
		return "", ErrMarketingNotConfigured
	}

	a := fiber.Post(m.Endpoint)
	a.Set(fiber.HeaderAuthorization, "Bearer "+m.APIKey)
	a.JSON(apiRequest{From: m.From, To: []string{msg.To}, Subject: msg.Subject, HTML: msg.HTML, Headers: msg.Headers})
	if m.Timeout > 0 {
		a.Timeout(m.Timeout)
	}

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return "", fmt.Errorf("marketing email request: %w", errors.Join(errs...))
	}
	var resp apiResponse
	_ = json.Unmarshal(body, &resp)
	if code < 200 || code >= 300 {
		if resp.Message == "" {
			resp.Message = string(body)
		}
		return "", fmt.Errorf("marketing email api returned %d: %s", code, resp.Message)
	}
	return resp.ID, nil
}

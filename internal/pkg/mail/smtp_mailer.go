package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/speedai/speedai/internal/pkg/env"
)

// Message is one outgoing HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Headers map[string]string
}

// Sender delivers a message and returns the provider message id, if any.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SMTPConfig holds the transactional mail settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

func SMTPConfigFromEnv() SMTPConfig {
	cfg := SMTPConfig{
		Host:     env.GetEnv("SMTP_HOST", ""),
		Port:     env.GetEnv("SMTP_PORT", "587"),
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		Sender:   env.GetEnv("SMTP_SENDER", ""),
	}
	if cfg.Sender == "" {
		cfg.Sender = "no-reply@localhost"
		zap.L().Warn("SMTP_SENDER not set, using default sender", zap.String("sender", cfg.Sender))
	}
	return cfg
}

// SMTPMailer sends transactional emails via SMTP.
type SMTPMailer struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, sendMail: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.cfg.Host == "" {
		return "", fmt.Errorf("smtp host is not configured")
	}

	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)

	err := m.sendMail(addr, auth, m.cfg.Sender, []string{msg.To}, buildMIME(m.cfg.Sender, msg))
	if err != nil {
		zap.L().Error("smtp send failed", zap.String("to", msg.To), zap.String("addr", addr), zap.Error(err))
		return "", err
	}
	zap.L().Info("email sent", zap.String("to", msg.To), zap.String("addr", addr))
	return "", nil
}

func buildMIME(from string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\nTo: %s\r\nSubject: %s\r\n", from, msg.To, msg.Subject)
	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, msg.Headers[k])
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

var defaultMailer Sender

// SetDefault installs the transactional sender used by SendMail.
func SetDefault(s Sender) { defaultMailer = s }

// SendMail sends an HTML email through the default transactional sender.
func SendMail(to string, subject string, body string) error {
	if defaultMailer == nil {
		defaultMailer = NewSMTPMailer(SMTPConfigFromEnv())
	}
	_, err := defaultMailer.Send(context.Background(), Message{To: to, Subject: subject, HTML: body})
	return err
}

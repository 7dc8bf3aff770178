package marketing

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/mail"
	"github.com/speedai/speedai/internal/pkg/sms"
)

// SendDelay is the pause between two recipients of a campaign.
const SendDelay = 100 * time.Millisecond

// EventCounter buffers open and click increments for campaign rows.
type EventCounter interface {
	AddCampaignOpen(ctx context.Context, campaignID uint) error
	AddCampaignClick(ctx context.Context, campaignID uint) error
}

// Config wires the marketing service.
type Config struct {
	Repo          repository.MarketingRepository
	Notifications repository.NotificationRepository
	Email         mail.Sender
	SMS           sms.Sender
	Counter       EventCounter
	BaseURL       string
	LinkSecret    string
	Delay         time.Duration
}

type Service struct {
	repo          repository.MarketingRepository
	notifications repository.NotificationRepository
	email         mail.Sender
	sms           sms.Sender
	counter       EventCounter
	baseURL       string
	secret        string
	delay         time.Duration
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
}

func NewService(cfg Config) *Service {
	delay := cfg.Delay
	if delay == 0 {
		delay = SendDelay
	}
	if strings.TrimSpace(cfg.LinkSecret) == "" {
		zap.L().Warn("marketing link secret missing, emails with tracked links will fail to send")
	}
	return &Service{
		repo:          cfg.Repo,
		notifications: cfg.Notifications,
		email:         cfg.Email,
		sms:           cfg.SMS,
		counter:       cfg.Counter,
		baseURL:       cfg.BaseURL,
		secret:        cfg.LinkSecret,
		delay:         delay,
		now:           time.Now,
		sleep:         sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) tracking(trackingID string) mail.Tracking {
	return mail.Tracking{BaseURL: s.baseURL, TrackingID: trackingID, Secret: s.secret}
}

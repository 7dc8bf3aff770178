package marketing

import (
	"context"

	"go.uber.org/zap"

	"github.com/speedai/speedai/internal/pkg/metrics"
	"github.com/speedai/speedai/internal/pkg/security"
)

// RecordOpen stores the first open of a send and bumps the campaign counter.
func (s *Service) RecordOpen(ctx context.Context, trackingID string) error {
	send, first, err := s.repo.MarkSendOpened(trackingID, s.now())
	if err != nil {
		return err
	}
	metrics.RecordTrackingEvent("open")
	if first && s.counter != nil {
		if err := s.counter.AddCampaignOpen(ctx, send.CampaignID); err != nil {
			zap.L().Warn("open counter failed", zap.Uint("campaign_id", send.CampaignID), zap.Error(err))
		}
	}
	return nil
}

// RecordClick verifies the signed target and stores the first click. A
// click also counts as an open when the pixel was blocked.
func (s *Service) RecordClick(ctx context.Context, trackingID, target, sig string) error {
	if err := security.VerifyLink(trackingID, target, sig, s.secret); err != nil {
		return err
	}
	send, first, err := s.repo.MarkSendClicked(trackingID, s.now())
	if err != nil {
		return err
	}
	metrics.RecordTrackingEvent("click")
	if !first {
		return nil
	}
	if send.OpenedAt == nil {
		if err := s.RecordOpen(ctx, trackingID); err != nil {
			zap.L().Warn("implicit open failed", zap.String("tracking_id", trackingID), zap.Error(err))
		}
	}
	if s.counter != nil {
		if err := s.counter.AddCampaignClick(ctx, send.CampaignID); err != nil {
			zap.L().Warn("click counter failed", zap.Uint("campaign_id", send.CampaignID), zap.Error(err))
		}
	}
	return nil
}

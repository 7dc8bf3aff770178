package marketing

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/speedai/speedai/app/models"
)

var (
	ErrCampaignLocked    = errors.New("campaign has already been sent or is sending")
	ErrScheduleInPast    = errors.New("scheduled time must be in the future")
	ErrCampaignHasNoBody = errors.New("campaign content is empty")
)

// StartSend moves an editable campaign to sending. The caller enqueues the
// delivery job once this returns nil.
func (s *Service) StartSend(userID, campaignID uint) (*models.MarketingCampaign, error) {
	campaign, err := s.repo.GetCampaign(userID, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.IsEditable() {
		return nil, ErrCampaignLocked
	}
	if campaign.Content == "" {
		return nil, ErrCampaignHasNoBody
	}
	won, err := s.repo.ClaimCampaign(userID, campaignID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrCampaignLocked
	}
	campaign.Status = models.CAMPAIGN_SENDING
	return campaign, nil
}

// Schedule marks an editable campaign for delivery at at.
func (s *Service) Schedule(userID, campaignID uint, at time.Time) (*models.MarketingCampaign, error) {
	campaign, err := s.repo.GetCampaign(userID, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.IsEditable() {
		return nil, ErrCampaignLocked
	}
	if !at.After(s.now()) {
		return nil, ErrScheduleInPast
	}
	campaign.Status = models.CAMPAIGN_SCHEDULED
	campaign.ScheduledAt = &at
	if err := s.repo.UpdateCampaign(campaign); err != nil {
		return nil, err
	}
	return campaign, nil
}

// ClaimDue claims every scheduled campaign whose time has come. Campaigns
// lost to a concurrent claimer are skipped.
func (s *Service) ClaimDue() ([]models.MarketingCampaign, error) {
	due, err := s.repo.ListDueCampaigns(s.now())
	if err != nil {
		return nil, err
	}
	claimed := make([]models.MarketingCampaign, 0, len(due))
	for _, c := range due {
		won, err := s.repo.ClaimCampaign(c.UserID, c.ID)
		if err != nil {
			zap.L().Warn("claim scheduled campaign failed", zap.Uint("campaign_id", c.ID), zap.Error(err))
			continue
		}
		if won {
			c.Status = models.CAMPAIGN_SENDING
			claimed = append(claimed, c)
		}
	}
	return claimed, nil
}

package marketing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/mail"
	"github.com/speedai/speedai/internal/pkg/metrics"
)

var (
	ErrCampaignNotSending = errors.New("campaign is not in sending state")
	errAlreadySent        = errors.New("contact already has a send for this campaign")
)

// Result summarizes one campaign run. Skipped counts contacts another run of
// the same campaign had already claimed.
type Result struct {
	Recipients int
	Sent       int
	Failed     int
	Skipped    int
}

// SendCampaign delivers a claimed campaign to its recipients and stores the
// final counters and status.
func (s *Service) SendCampaign(ctx context.Context, userID, campaignID uint) (*Result, error) {
	campaign, err := s.repo.GetCampaign(userID, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CAMPAIGN_SENDING {
		return nil, fmt.Errorf("%w: %s", ErrCampaignNotSending, campaign.Status)
	}

	recipients, err := s.ResolveRecipients(userID, campaign)
	if err != nil {
		campaign.Status = models.CAMPAIGN_FAILED
		if uerr := s.repo.UpdateCampaign(campaign); uerr != nil {
			zap.L().Error("campaign status update failed", zap.Uint("campaign_id", campaign.ID), zap.Error(uerr))
		}
		return nil, err
	}

	res, sendErr := s.SendCampaignToRecipients(ctx, campaign, recipients)
	if res.Skipped > 0 {
		if err := s.tally(campaign, res); err != nil {
			return res, err
		}
	}

	now := s.now()
	campaign.TotalRecipients = res.Recipients
	campaign.SentCount = res.Sent
	campaign.FailedCount = res.Failed
	campaign.SentAt = &now
	campaign.Status = models.CAMPAIGN_SENT
	if res.Recipients > 0 && res.Sent == 0 {
		campaign.Status = models.CAMPAIGN_FAILED
	}
	if err := s.repo.UpdateCampaign(campaign); err != nil {
		return res, err
	}

	if s.notifications != nil {
		n := &models.Notification{
			UserID:      userID,
			Type:        models.NOTIFICATION_CAMPAIGN_SENT,
			Title:       "Campagne envoyée",
			Message:     fmt.Sprintf("« %s » : %d envoi(s) réussi(s), %d échec(s).", campaign.Name, res.Sent, res.Failed),
			ReferenceID: campaign.ID,
		}
		if err := s.notifications.Create(n); err != nil {
			zap.L().Warn("campaign notification failed", zap.Uint("campaign_id", campaign.ID), zap.Error(err))
		}
	}
	zap.L().Info("campaign sent",
		zap.Uint("campaign_id", campaign.ID),
		zap.Int("recipients", res.Recipients),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed))
	return res, sendErr
}

// SendCampaignToRecipients sends sequentially with a fixed delay between
// recipients. A failed recipient is recorded and the loop continues.
func (s *Service) SendCampaignToRecipients(ctx context.Context, campaign *models.MarketingCampaign, recipients []models.MarketingContact) (*Result, error) {
	res := &Result{Recipients: len(recipients)}
	for i := range recipients {
		if i > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return res, err
			}
		}
		err := s.sendOne(ctx, campaign, &recipients[i])
		if errors.Is(err, errAlreadySent) {
			res.Skipped++
			continue
		}
		if err != nil {
			res.Failed++
			zap.L().Warn("campaign send failed",
				zap.Uint("campaign_id", campaign.ID),
				zap.Uint("contact_id", recipients[i].ID),
				zap.Error(err))
			continue
		}
		res.Sent++
	}
	return res, nil
}

func (s *Service) sendOne(ctx context.Context, campaign *models.MarketingCampaign, contact *models.MarketingContact) error {
	send := &models.MarketingSend{
		UserID:     campaign.UserID,
		CampaignID: campaign.ID,
		ContactID:  contact.ID,
		Channel:    campaign.Channel,
		TrackingID: uuid.NewString(),
		Status:     models.SEND_PENDING,
	}
	claimed, err := s.repo.ClaimSend(send)
	if err != nil {
		return err
	}
	if !claimed {
		return errAlreadySent
	}

	providerID, err := s.deliver(ctx, campaign, contact, send.TrackingID)
	if err != nil {
		send.Status = models.SEND_FAILED
		send.Error = err.Error()
	} else {
		now := s.now()
		send.Status = models.SEND_SENT
		send.ProviderMessageID = providerID
		send.SentAt = &now
	}
	metrics.RecordCampaignSend(campaign.Channel, send.Status)
	if uerr := s.repo.UpdateSend(send); uerr != nil {
		zap.L().Error("send row update failed", zap.String("tracking_id", send.TrackingID), zap.Error(uerr))
	}
	return err
}

// tally rebuilds the counters from the stored send rows once a run has shared
// the campaign with another one.
func (s *Service) tally(campaign *models.MarketingCampaign, res *Result) error {
	sends, err := s.repo.ListSends(campaign.UserID, campaign.ID)
	if err != nil {
		return err
	}
	res.Sent, res.Failed = 0, 0
	for _, send := range sends {
		switch send.Status {
		case models.SEND_SENT:
			res.Sent++
		case models.SEND_FAILED:
			res.Failed++
		}
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, campaign *models.MarketingCampaign, contact *models.MarketingContact, trackingID string) (string, error) {
	t := s.tracking(trackingID)
	content := Personalize(campaign.Content, contact)
	switch campaign.Channel {
	case models.CHANNEL_EMAIL:
		if s.email == nil {
			return "", errors.New("no email sender configured")
		}
		body, err := mail.PrepareMarketingHTML(content, t)
		if err != nil {
			return "", err
		}
		return s.email.Send(ctx, mail.Message{
			To:      contact.Email,
			Subject: Personalize(campaign.Subject, contact),
			HTML:    body,
			Headers: t.Headers(),
		})
	case models.CHANNEL_SMS:
		if s.sms == nil {
			return "", errors.New("no sms sender configured")
		}
		return s.sms.Send(ctx, contact.Phone, content+"\nSTOP : "+t.UnsubscribeURL())
	default:
		return "", fmt.Errorf("unknown channel %q", campaign.Channel)
	}
}

// Personalize replaces the contact placeholders of a template.
func Personalize(text string, contact *models.MarketingContact) string {
	return strings.NewReplacer(
		"{{firstName}}", contact.FirstName,
		"{{lastName}}", contact.LastName,
		"{{prenom}}", contact.FirstName,
		"{{nom}}", contact.LastName,
	).Replace(text)
}

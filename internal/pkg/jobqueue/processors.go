package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/marketing"
	"github.com/speedai/speedai/internal/pkg/reviews"
)

type CampaignSender interface {
	SendCampaign(ctx context.Context, userID, campaignID uint) (*marketing.Result, error)
}

type ReviewRequestSender interface {
	Send(ctx context.Context, userID, id uint) (*models.ReviewRequest, error)
	SendDue(ctx context.Context) (sent, failed int, err error)
}

type ReportGenerator interface {
	GenerateForUser(ctx context.Context, userID uint, period string) (bool, error)
	GenerateAll(ctx context.Context, period string) (created, failed int, err error)
}

// Processors are the services behind the job handlers. Nil services leave
// their job type unregistered.
type Processors struct {
	Campaigns      CampaignSender
	ReviewRequests ReviewRequestSender
	Reports        ReportGenerator
}

// Register installs the job handlers on q.
func (p Processors) Register(q *Queue) {
	if p.Campaigns != nil {
		q.Handle(JobTypeCampaignSend, p.processCampaignSend)
	}
	if p.ReviewRequests != nil {
		q.Handle(JobTypeReviewRequestSend, p.processReviewRequestSend)
	}
	if p.Reports != nil {
		q.Handle(JobTypeMonthlyReport, p.processMonthlyReport)
	}
}

func (p Processors) processCampaignSend(ctx context.Context, job *Job) error {
	payload, err := CampaignSendPayloadFromMap(job.Payload)
	if err != nil || payload.CampaignID == 0 {
		return fmt.Errorf("%w: invalid campaign_send payload", ErrPermanent)
	}
	res, err := p.Campaigns.SendCampaign(ctx, payload.UserID, payload.CampaignID)
	if err != nil {
		// The campaign left the sending state; a retry cannot succeed.
		if errors.Is(err, marketing.ErrCampaignNotSending) || errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		return err
	}
	zap.L().Info("campaign delivered",
		zap.Uint("campaign_id", payload.CampaignID),
		zap.Int("recipients", res.Recipients),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed))
	return nil
}

func (p Processors) processReviewRequestSend(ctx context.Context, job *Job) error {
	payload, err := ReviewRequestSendPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("%w: invalid review_request_send payload", ErrPermanent)
	}
	if payload.RequestID == 0 {
		sent, failed, err := p.ReviewRequests.SendDue(ctx)
		if err != nil {
			return err
		}
		if sent+failed > 0 {
			zap.L().Info("due review requests processed", zap.Int("sent", sent), zap.Int("failed", failed))
		}
		return nil
	}
	_, err = p.ReviewRequests.Send(ctx, payload.UserID, payload.RequestID)
	switch {
	case errors.Is(err, reviews.ErrRequestAlreadySent):
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	return err
}

func (p Processors) processMonthlyReport(ctx context.Context, job *Job) error {
	payload, err := MonthlyReportPayloadFromMap(job.Payload)
	if err != nil || payload.Period == "" {
		return fmt.Errorf("%w: invalid monthly_report payload", ErrPermanent)
	}
	if payload.UserID != 0 {
		_, err := p.Reports.GenerateForUser(ctx, payload.UserID, payload.Period)
		return err
	}
	created, failed, err := p.Reports.GenerateAll(ctx, payload.Period)
	if err != nil {
		return err
	}
	zap.L().Info("monthly reports generated", zap.String("period", payload.Period), zap.Int("created", created), zap.Int("failed", failed))
	return nil
}

// Package reports generates the monthly activity reports of every tenant.
package reports

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/mail"
)

// Builder computes the aggregates of one period.
type Builder interface {
	BuildMonthlyReport(userID uint, period string) (*models.MonthlyReport, error)
}

type TemplateRenderer interface {
	Render(name string, data map[string]interface{}) (string, string, error)
}

type Config struct {
	Builder       Builder
	Reports       repository.ReportRepository
	Users         repository.UserRepository
	Notifications repository.NotificationRepository
	Email         mail.Sender
	Templates     TemplateRenderer
	BaseURL       string
}

type Generator struct {
	cfg Config
	now func() time.Time
}

func NewGenerator(cfg Config) *Generator {
	return &Generator{cfg: cfg, now: time.Now}
}

// PreviousPeriod returns the YYYY-MM of the month before t.
func PreviousPeriod(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return models.ReportPeriod(first.AddDate(0, -1, 0))
}

// GenerateForUser stores the report of period once. A report that already
// exists is left untouched and reported as not created.
func (g *Generator) GenerateForUser(ctx context.Context, userID uint, period string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := g.cfg.Reports.GetByPeriod(userID, period); err == nil {
		return false, nil
	}
	report, err := g.cfg.Builder.BuildMonthlyReport(userID, period)
	if err != nil {
		return false, err
	}
	created, err := g.cfg.Reports.CreateIfNotExists(report)
	if err != nil || !created {
		return created, err
	}

	msg := fmt.Sprintf("Période %s : %d appels, %.1f%% de conversion, %.1f h économisées.",
		period, report.TotalCalls, report.ConversionRate, report.HoursSaved)
	if g.cfg.Notifications != nil {
		if err := g.cfg.Notifications.Create(&models.Notification{
			UserID:      userID,
			Type:        models.NOTIFICATION_MONTHLY_REPORT,
			Title:       "Votre rapport mensuel est disponible",
			Message:     msg,
			ReferenceID: report.ID,
		}); err != nil {
			zap.L().Warn("monthly report notification failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	g.email(ctx, userID, report)
	return true, nil
}

func (g *Generator) email(ctx context.Context, userID uint, report *models.MonthlyReport) {
	if g.cfg.Email == nil || g.cfg.Templates == nil || g.cfg.Users == nil {
		return
	}
	user, err := g.cfg.Users.GetByID(userID)
	if err != nil {
		return
	}
	subject, body, err := g.cfg.Templates.Render(mail.TemplateMonthlyReport, map[string]interface{}{
		"Name":             user.FirstName,
		"Period":           report.Period,
		"TotalCalls":       report.TotalCalls,
		"SuccessfulCalls":  report.SuccessfulCalls,
		"ConversionRate":   fmt.Sprintf("%.1f", report.ConversionRate),
		"HoursSaved":       fmt.Sprintf("%.1f", report.HoursSaved),
		"EstimatedRevenue": fmt.Sprintf("%.0f", report.EstimatedRevenue),
		"Link":             g.cfg.BaseURL + "/reports/" + report.Period,
	})
	if err != nil {
		zap.L().Error("monthly report email render failed", zap.Error(err))
		return
	}
	if _, err := g.cfg.Email.Send(ctx, mail.Message{To: user.Email, Subject: subject, HTML: body}); err != nil {
		zap.L().Warn("monthly report email failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// GenerateAll generates period for every user; failures are logged and counted.
func (g *Generator) GenerateAll(ctx context.Context, period string) (created, failed int, err error) {
	ids, err := g.cfg.Users.ListIDs()
	if err != nil {
		return 0, 0, err
	}
	for _, id := range ids {
		ok, err := g.GenerateForUser(ctx, id, period)
		if err != nil {
			if ctx.Err() != nil {
				return created, failed, ctx.Err()
			}
			failed++
			zap.L().Warn("monthly report failed", zap.Uint("user_id", id), zap.String("period", period), zap.Error(err))
			continue
		}
		if ok {
			created++
		}
	}
	return created, failed, nil
}

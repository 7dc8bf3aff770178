package controllers

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/billing"
	"github.com/speedai/speedai/internal/pkg/guarantee"
	"github.com/speedai/speedai/internal/pkg/jobqueue"
	"github.com/speedai/speedai/internal/pkg/mail"
	"github.com/speedai/speedai/internal/pkg/marketing"
	"github.com/speedai/speedai/internal/pkg/reviews"
	"github.com/speedai/speedai/internal/pkg/statistics"
	"github.com/speedai/speedai/internal/pkg/usercontext"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobEnqueuer hands work to the background queue.
type JobEnqueuer interface {
	EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// QueueInspector reports the state of the background queue.
type QueueInspector interface {
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
}

// Captcha verifies signup challenges.
type Captcha interface {
	Enabled() bool
	Verify(token string) error
}

// TemplateRenderer renders a named email template into subject and body.
type TemplateRenderer interface {
	Render(name string, data map[string]interface{}) (string, string, error)
}

// Deps carries everything the controllers need. Optional services may be nil;
// the routes depending on them answer 503.
type Deps struct {
	Repos               *repository.Repositories
	Stats               *statistics.Service
	Marketing           *marketing.Service
	ReviewRequests      *reviews.Requests
	ReviewSync          *reviews.Syncer
	Guarantee           *guarantee.Service
	Billing             *billing.Service
	Jobs                JobEnqueuer
	Queue               QueueInspector
	Mail                mail.Sender
	Templates           TemplateRenderer
	Captcha             Captcha
	BaseURL             string
	StripeWebhookSecret string
	Now                 func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

var validate = validator.New()

// bindJSON decodes and validates the request body.
func bindJSON(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apierror.BadRequest("invalid_body", "Corps de requête invalide")
	}
	return validate.Struct(dst)
}

// paramID parses a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apierror.BadRequest("invalid_id", "Identifiant invalide")
	}
	return uint(id), nil
}

// pagination reads page/limit query parameters (page starts at 1).
func pagination(c *fiber.Ctx) (offset, limit int) {
	limit = c.QueryInt("limit", defaultPageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit, limit
}

func currentUserID(c *fiber.Ctx) uint {
	return usercontext.GetUserID(c)
}

func unavailable(c *fiber.Ctx) error {
	return apierror.Write(c, fiber.StatusServiceUnavailable, "service_unavailable", "Service indisponible")
}

func noContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

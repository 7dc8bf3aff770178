package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/mail"
	"github.com/speedai/speedai/internal/pkg/objectstore"
	"github.com/speedai/speedai/internal/pkg/qrcode"
	"github.com/speedai/speedai/internal/pkg/shortener"
	"github.com/speedai/speedai/internal/pkg/sms"
)

var (
	ErrNoContactChannel   = errors.New("a customer email or phone is required")
	ErrNoReviewURL        = errors.New("no review link configured")
	ErrRequestAlreadySent = errors.New("review request was already sent")
)

const shortCodeAttempts = 3

// TemplateRenderer renders a named email template into subject and body.
type TemplateRenderer interface {
	Render(name string, data map[string]interface{}) (string, string, error)
}

type RequestsConfig struct {
	Repo      repository.ReviewRepository
	Email     mail.Sender
	SMS       sms.Sender
	Templates TemplateRenderer
	Store     objectstore.Store
	BaseURL   string
}

// Requests creates, sends and resolves review requests.
type Requests struct {
	repo      repository.ReviewRepository
	email     mail.Sender
	sms       sms.Sender
	templates TemplateRenderer
	store     objectstore.Store
	baseURL   string
	now       func() time.Time
}

func NewRequests(cfg RequestsConfig) *Requests {
	return &Requests{
		repo:      cfg.Repo,
		email:     cfg.Email,
		sms:       cfg.SMS,
		templates: cfg.Templates,
		store:     cfg.Store,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		now:       time.Now,
	}
}

type NewRequestInput struct {
	CallID        *uint  `json:"callId"`
	IncentiveID   *uint  `json:"incentiveId"`
	CustomerName  string `json:"customerName" validate:"max=150"`
	CustomerEmail string `json:"customerEmail" validate:"omitempty,email,max=200"`
	CustomerPhone string `json:"customerPhone" validate:"max=30"`
	SendNow       bool   `json:"sendNow"`
}

// ShortLink is the public redirect link of a request.
func (r *Requests) ShortLink(code string) string {
	return r.baseURL + "/r/" + code
}

// Create stores a pending request. Unless SendNow is set the configured delay
// is applied before the request becomes due.
func (r *Requests) Create(userID uint, in NewRequestInput) (*models.ReviewRequest, error) {
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	in.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	if in.CustomerEmail == "" && in.CustomerPhone == "" {
		return nil, ErrNoContactChannel
	}
	if in.IncentiveID != nil {
		if _, err := r.repo.GetIncentive(userID, *in.IncentiveID); err != nil {
			return nil, err
		}
	}

	cfg, err := r.config(userID)
	if err != nil {
		return nil, err
	}

	req := &models.ReviewRequest{
		UserID:        userID,
		CallID:        in.CallID,
		IncentiveID:   in.IncentiveID,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerEmail: in.CustomerEmail,
		CustomerPhone: in.CustomerPhone,
		Status:        models.REVIEW_REQUEST_PENDING,
	}
	if !in.SendNow && cfg.RequestDelayHours > 0 {
		at := r.now().Add(time.Duration(cfg.RequestDelayHours) * time.Hour)
		req.SendAfter = &at
	}

	for attempt := 1; ; attempt++ {
		code, err := shortener.NewReviewCode()
		if err != nil {
			return nil, err
		}
		req.ShortCode = code
		err = r.repo.CreateRequest(req)
		if err == nil {
			return req, nil
		}
		if attempt == shortCodeAttempts {
			return nil, fmt.Errorf("failed to create review request: %w", err)
		}
		req.ID = 0
	}
}

func (r *Requests) config(userID uint) (*models.ReviewConfig, error) {
	cfg, err := r.repo.GetConfig(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.ReviewConfig{UserID: userID, AlertThreshold: models.DefaultAlertThreshold, PreferredPlatform: models.PLATFORM_GOOGLE}, nil
	}
	return cfg, err
}

// Send delivers a pending request by email, or by SMS when no email is known.
func (r *Requests) Send(ctx context.Context, userID, id uint) (*models.ReviewRequest, error) {
	req, err := r.repo.GetRequest(userID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.REVIEW_REQUEST_PENDING && req.Status != models.REVIEW_REQUEST_FAILED {
		return req, ErrRequestAlreadySent
	}
	cfg, err := r.config(userID)
	if err != nil {
		return nil, err
	}

	sendErr := r.deliver(ctx, req, cfg)
	if sendErr != nil {
		req.Status = models.REVIEW_REQUEST_FAILED
		req.Error = sendErr.Error()
	} else {
		sentAt := r.now()
		req.Status = models.REVIEW_REQUEST_SENT
		req.SentAt = &sentAt
		req.Error = ""
	}
	if err := r.repo.UpdateRequest(req); err != nil {
		return req, err
	}
	return req, sendErr
}

func (r *Requests) deliver(ctx context.Context, req *models.ReviewRequest, cfg *models.ReviewConfig) error {
	link := r.ShortLink(req.ShortCode)
	incentive := r.incentiveText(req)
	business := cfg.BusinessName
	if business == "" {
		business = "notre établissement"
	}

	if req.CustomerEmail != "" {
		if r.email == nil || r.templates == nil {
			return mail.ErrMarketingNotConfigured
		}
		data := map[string]interface{}{
			"CustomerName": req.CustomerName,
			"Message":      cfg.EmailMessage,
			"BusinessName": business,
			"Incentive":    incentive,
			"Link":         link,
		}
		if cfg.EmailSubject != "" {
			data["Subject"] = cfg.EmailSubject
		}
		subject, body, err := r.templates.Render(mail.TemplateReviewRequest, data)
		if err != nil {
			return err
		}
		_, err = r.email.Send(ctx, mail.Message{To: req.CustomerEmail, Subject: subject, HTML: body})
		return err
	}

	if r.sms == nil {
		return sms.ErrNotConfigured
	}
	body := fmt.Sprintf("Merci de votre visite chez %s ! Votre avis compte : %s", business, link)
	if req.CustomerName != "" {
		body = "Bonjour " + req.CustomerName + ", " + strings.ToLower(body[:1]) + body[1:]
	}
	if incentive != "" {
		body += " (" + incentive + ")"
	}
	_, err := r.sms.Send(ctx, req.CustomerPhone, body)
	return err
}

func (r *Requests) incentiveText(req *models.ReviewRequest) string {
	if req.IncentiveID == nil {
		return ""
	}
	inc, err := r.repo.GetIncentive(req.UserID, *req.IncentiveID)
	if err != nil || !inc.IsActive {
		return ""
	}
	if inc.Value == "" {
		return inc.Title
	}
	return inc.Title + " : " + inc.Value
}

// SendDue sends every pending request whose delay has elapsed.
func (r *Requests) SendDue(ctx context.Context) (sent, failed int, err error) {
	due, err := r.repo.ListDueRequests(r.now())
	if err != nil {
		return 0, 0, err
	}
	for _, req := range due {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}
		if _, err := r.Send(ctx, req.UserID, req.ID); err != nil {
			failed++
			zap.L().Warn("review request send failed", zap.Uint("request_id", req.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, failed, nil
}

// Resolve returns the review page a short code redirects to and records the
// first click.
func (r *Requests) Resolve(code string) (string, error) {
	if !shortener.IsValidCode(code) {
		return "", gorm.ErrRecordNotFound
	}
	req, err := r.repo.GetRequestByShortCode(code)
	if err != nil {
		return "", err
	}
	cfg, err := r.config(req.UserID)
	if err != nil {
		return "", err
	}
	target := cfg.ReviewURL()
	if target == "" {
		return "", ErrNoReviewURL
	}

	if req.ClickedAt == nil {
		now := r.now()
		req.ClickedAt = &now
		if req.Status != models.REVIEW_REQUEST_COMPLETED {
			req.Status = models.REVIEW_REQUEST_CLICKED
		}
		if err := r.repo.UpdateRequest(req); err != nil {
			zap.L().Warn("review request click update failed", zap.Uint("request_id", req.ID), zap.Error(err))
		}
	}
	return target, nil
}

// QRCode renders the short link of a request as PNG. When an object store is
// configured the image is archived and its public URL returned.
func (r *Requests) QRCode(ctx context.Context, userID, id uint, size int) ([]byte, string, error) {
	req, err := r.repo.GetRequest(userID, id)
	if err != nil {
		return nil, "", err
	}
	png, err := qrcode.PNG(r.ShortLink(req.ShortCode), size)
	if err != nil {
		return nil, "", err
	}
	if r.store == nil {
		return png, "", nil
	}
	url, err := r.store.Put(ctx, objectstore.QRCodeKey(userID, req.ShortCode), "image/png", png)
	if err != nil {
		zap.L().Warn("qr code archive failed", zap.Uint("request_id", req.ID), zap.Error(err))
		return png, "", nil
	}
	return png, url, nil
}

// Respond stores the owner's public answer to a review.
func (r *Requests) Respond(userID, reviewID uint, response string) (*models.Review, error) {
	review, err := r.repo.GetReview(userID, reviewID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	review.Response = strings.TrimSpace(response)
	review.RespondedAt = &now
	if err := r.repo.UpdateReview(review); err != nil {
		return nil, err
	}
	return review, nil
}

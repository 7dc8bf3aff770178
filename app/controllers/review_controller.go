package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/jobqueue"
	"github.com/speedai/speedai/internal/pkg/reviews"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

// ReviewController serves the reputation management API and the public
// review link redirect.
type ReviewController struct {
	*Deps
}

func NewReviewController(deps *Deps) *ReviewController {
	return &ReviewController{Deps: deps}
}

type incentiveRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Type        string `json:"type" validate:"omitempty,oneof=discount gift other"`
	Value       string `json:"value" validate:"max=100"`
	IsActive    *bool  `json:"isActive"`
}

func (r incentiveRequest) apply(in *models.ReviewIncentive) {
	in.Title = strings.TrimSpace(r.Title)
	in.Description = r.Description
	in.Type = r.Type
	if in.Type == "" {
		in.Type = "discount"
	}
	in.Value = strings.TrimSpace(r.Value)
	if r.IsActive != nil {
		in.IsActive = *r.IsActive
	}
}

type sourceRequest struct {
	Platform    string `json:"platform" validate:"required,oneof=google facebook tripadvisor"`
	ExternalRef string `json:"externalRef" validate:"required,max=255"`
	DisplayName string `json:"displayName" validate:"max=200"`
	IsActive    *bool  `json:"isActive"`
}

type respondRequest struct {
	Response string `json:"response" validate:"required,max=4000"`
}

// HandleGetConfig returns the stored config, or the defaults when none is saved yet.
func (rc *ReviewController) HandleGetConfig(c *fiber.Ctx) error {
	userID := currentUserID(c)
	cfg, err := rc.Repos.Review.GetConfig(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = &models.ReviewConfig{
			UserID:            userID,
			PreferredPlatform: models.PLATFORM_GOOGLE,
			AlertThreshold:    models.DefaultAlertThreshold,
			RequestDelayHours: 2,
		}
	} else if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(cfg)
}

func (rc *ReviewController) HandleSaveConfig(c *fiber.Ctx) error {
	var cfg models.ReviewConfig
	if err := c.BodyParser(&cfg); err != nil {
		return apierror.Respond(c, apierror.BadRequest("invalid_body", "Corps de requête invalide"))
	}
	if cfg.AlertThreshold == 0 {
		cfg.AlertThreshold = models.DefaultAlertThreshold
	}
	if cfg.PreferredPlatform == "" {
		cfg.PreferredPlatform = models.PLATFORM_GOOGLE
	}
	if err := validate.Struct(cfg); err != nil {
		return apierror.Respond(c, err)
	}
	cfg.ID = 0
	cfg.UserID = currentUserID(c)
	if err := rc.Repos.Review.UpsertConfig(&cfg); err != nil {
		return apierror.Respond(c, err)
	}
	saved, err := rc.Repos.Review.GetConfig(cfg.UserID)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(saved)
}

func (rc *ReviewController) HandleListIncentives(c *fiber.Ctx) error {
	items, err := rc.Repos.Review.ListIncentives(currentUserID(c))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(items)
}

func (rc *ReviewController) HandleCreateIncentive(c *fiber.Ctx) error {
	var req incentiveRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	incentive := &models.ReviewIncentive{UserID: currentUserID(c), IsActive: true}
	req.apply(incentive)
	if err := rc.Repos.Review.CreateIncentive(incentive); err != nil {
		return apierror.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(incentive)
}

func (rc *ReviewController) HandleUpdateIncentive(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	var req incentiveRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	incentive, err := rc.Repos.Review.GetIncentive(currentUserID(c), id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	req.apply(incentive)
	if err := rc.Repos.Review.UpdateIncentive(incentive); err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(incentive)
}

func (rc *ReviewController) HandleDeleteIncentive(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	if err := rc.Repos.Review.DeleteIncentive(currentUserID(c), id); err != nil {
		return apierror.Respond(c, err)
	}
	return noContent(c)
}

func (rc *ReviewController) HandleListSources(c *fiber.Ctx) error {
	items, err := rc.Repos.Review.ListSources(currentUserID(c))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(items)
}

func (rc *ReviewController) HandleCreateSource(c *fiber.Ctx) error {
	var req sourceRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	source := &models.ReviewSource{
		UserID:      currentUserID(c),
		Platform:    req.Platform,
		ExternalRef: strings.TrimSpace(req.ExternalRef),
		DisplayName: strings.TrimSpace(req.DisplayName),
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := rc.Repos.Review.CreateSource(source); err != nil {
		return apierror.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(source)
}

func (rc *ReviewController) HandleUpdateSource(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	var req sourceRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	source, err := rc.Repos.Review.GetSource(currentUserID(c), id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	source.Platform = req.Platform
	source.ExternalRef = strings.TrimSpace(req.ExternalRef)
	source.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.IsActive != nil {
		source.IsActive = *req.IsActive
	}
	if err := rc.Repos.Review.UpdateSource(source); err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(source)
}

func (rc *ReviewController) HandleDeleteSource(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	if err := rc.Repos.Review.DeleteSource(currentUserID(c), id); err != nil {
		return apierror.Respond(c, err)
	}
	return noContent(c)
}

// HandleSyncSource runs one source sync synchronously and returns its log.
func (rc *ReviewController) HandleSyncSource(c *fiber.Ctx) error {
	if rc.ReviewSync == nil {
		return unavailable(c)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	source, err := rc.Repos.Review.GetSource(currentUserID(c), id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	log, err := rc.ReviewSync.SyncSource(c.UserContext(), *source)
	if errors.Is(err, reviews.ErrConnectorUnsupported) {
		return apierror.Write(c, fiber.StatusBadRequest, "platform_unsupported", "Synchronisation non disponible pour cette plateforme")
	}
	if err != nil && log == nil {
		return apierror.Respond(c, err)
	}
	// A failed run still has a log describing the failure.
	return c.JSON(log)
}

// HandleListReviews answers GET /api/reviews?platform=&maxRating=&page=&limit=
func (rc *ReviewController) HandleListReviews(c *fiber.Ctx) error {
	offset, limit := pagination(c)
	platform := c.Query("platform")
	if platform != "" && !models.IsValidPlatform(platform) {
		return apierror.Write(c, fiber.StatusBadRequest, "invalid_platform", "Plateforme inconnue")
	}
	items, total, err := rc.Repos.Review.ListReviews(currentUserID(c), repository.ReviewFilter{
		Platform:  platform,
		MaxRating: c.QueryInt("maxRating"),
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"reviews": items, "total": total, "limit": limit, "offset": offset})
}

func (rc *ReviewController) HandleRespond(c *fiber.Ctx) error {
	if rc.ReviewRequests == nil {
		return unavailable(c)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	var req respondRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	review, err := rc.ReviewRequests.Respond(currentUserID(c), id, req.Response)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(review)
}

func (rc *ReviewController) HandleListAlerts(c *fiber.Ctx) error {
	items, err := rc.Repos.Review.ListAlerts(currentUserID(c), c.QueryBool("unread"))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(items)
}

func (rc *ReviewController) HandleMarkAlertRead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	if err := rc.Repos.Review.MarkAlertRead(currentUserID(c), id); err != nil {
		return apierror.Respond(c, err)
	}
	return noContent(c)
}

func (rc *ReviewController) HandleListSyncLogs(c *fiber.Ctx) error {
	items, err := rc.Repos.Review.ListSyncLogs(currentUserID(c), c.QueryInt("limit", 50))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(items)
}

func (rc *ReviewController) HandleStats(c *fiber.Ctx) error {
	stats, err := rc.Repos.Review.GetStats(currentUserID(c))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(stats)
}

func (rc *ReviewController) HandleListRequests(c *fiber.Ctx) error {
	items, err := rc.Repos.Review.ListRequests(currentUserID(c))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(items)
}

// HandleCreateRequest stores a review request. With sendNow the delivery is
// queued immediately, otherwise the periodic sender picks it up once due.
func (rc *ReviewController) HandleCreateRequest(c *fiber.Ctx) error {
	if rc.ReviewRequests == nil {
		return unavailable(c)
	}
	var in reviews.NewRequestInput
	if err := bindJSON(c, &in); err != nil {
		return apierror.Respond(c, err)
	}
	userID := currentUserID(c)
	req, err := rc.ReviewRequests.Create(userID, in)
	if errors.Is(err, reviews.ErrNoContactChannel) {
		return apierror.Write(c, fiber.StatusBadRequest, "contact_required", "Un email ou un téléphone client est requis")
	}
	if err != nil {
		return apierror.Respond(c, err)
	}
	if in.SendNow && rc.Jobs != nil {
		payload := jobqueue.ReviewRequestSendPayload{UserID: userID, RequestID: req.ID}
		if _, err := rc.Jobs.EnqueueJob(jobqueue.JobTypeReviewRequestSend, payload.ToMap()); err != nil {
			zap.L().Warn("enqueue review request failed", zap.Uint("request_id", req.ID), zap.Error(err))
		}
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"request": req,
		"link":    rc.ReviewRequests.ShortLink(req.ShortCode),
	})
}

// HandleSendRequest delivers a pending request right away.
func (rc *ReviewController) HandleSendRequest(c *fiber.Ctx) error {
	if rc.ReviewRequests == nil {
		return unavailable(c)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	req, err := rc.ReviewRequests.Send(c.UserContext(), currentUserID(c), id)
	switch {
	case errors.Is(err, reviews.ErrRequestAlreadySent):
		return apierror.Write(c, fiber.StatusConflict, "already_sent", "Demande déjà envoyée")
	case errors.Is(err, reviews.ErrNoReviewURL):
		return apierror.Write(c, fiber.StatusBadRequest, "review_url_missing", "Configurez d'abord un lien d'avis")
	case err != nil && req == nil:
		return apierror.Respond(c, err)
	case err != nil:
		return apierror.Write(c, fiber.StatusBadGateway, "delivery_failed", "L'envoi de la demande a échoué")
	}
	return c.JSON(req)
}

// HandleQRCode answers GET /api/reviews/requests/:id/qrcode?size=
func (rc *ReviewController) HandleQRCode(c *fiber.Ctx) error {
	if rc.ReviewRequests == nil {
		return unavailable(c)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	size := c.QueryInt("size", defaultQRSize)
	if size <= 0 || size > maxQRSize {
		size = defaultQRSize
	}
	png, url, err := rc.ReviewRequests.QRCode(c.UserContext(), currentUserID(c), id, size)
	if err != nil {
		return apierror.Respond(c, err)
	}
	if url != "" {
		c.Set("X-QR-Code-URL", url)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

// HandleShortLink resolves /r/:code to the configured review page.
func (rc *ReviewController) HandleShortLink(c *fiber.Ctx) error {
	if rc.ReviewRequests == nil {
		return fiber.ErrNotFound
	}
	target, err := rc.ReviewRequests.Resolve(c.Params("code"))
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, reviews.ErrNoReviewURL) {
		return fiber.ErrNotFound
	}
	if err != nil {
		zap.L().Error("review link resolve failed", zap.String("code", c.Params("code")), zap.Error(err))
		return fiber.ErrInternalServerError
	}
	return c.Redirect(target, fiber.StatusFound)
}

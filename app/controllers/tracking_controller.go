package controllers

import (
	"encoding/base64"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/constants"
	"github.com/speedai/speedai/internal/pkg/flash"
	"github.com/speedai/speedai/internal/pkg/marketing"
	"github.com/speedai/speedai/internal/pkg/security"
)

// 1x1 transparent GIF
var trackingPixel, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

// TrackingController serves the public marketing endpoints: open pixel,
// click redirect and unsubscribe.
type TrackingController struct {
	*Deps
}

func NewTrackingController(deps *Deps) *TrackingController {
	return &TrackingController{Deps: deps}
}

// HandleOpen always answers with the pixel; unknown tracking ids are ignored.
func (tc *TrackingController) HandleOpen(c *fiber.Ctx) error {
	if tc.Marketing != nil {
		if err := tc.Marketing.RecordOpen(c.UserContext(), c.Params("trackingId")); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Warn("record open failed", zap.String("tracking_id", c.Params("trackingId")), zap.Error(err))
		}
	}
	c.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate, max-age=0")
	c.Set(fiber.HeaderContentType, "image/gif")
	return c.Send(trackingPixel)
}

// HandleClick records the click and redirects to the signed target. A bad
// signature never redirects, so the endpoint cannot serve as an open redirect.
func (tc *TrackingController) HandleClick(c *fiber.Ctx) error {
	if tc.Marketing == nil {
		return unavailable(c)
	}
	trackingID := c.Params("trackingId")
	target := c.Query("url")
	err := tc.Marketing.RecordClick(c.UserContext(), trackingID, target, c.Query("sig"))
	switch {
	case err == nil:
	case errors.Is(err, security.ErrInvalidLinkSignature):
		return apierror.Write(c, fiber.StatusBadRequest, "invalid_link", "Lien invalide")
	case errors.Is(err, gorm.ErrRecordNotFound):
		// The signature matched, the send row is gone (contact deleted).
	default:
		zap.L().Warn("record click failed", zap.String("tracking_id", trackingID), zap.Error(err))
	}
	return c.Redirect(target, fiber.StatusFound)
}

type unsubscribeRequest struct {
	Email bool `json:"email" form:"email"`
	Sms   bool `json:"sms" form:"sms"`
}

// HandleUnsubscribeInfo answers GET /api/marketing/unsubscribe/:trackingId
func (tc *TrackingController) HandleUnsubscribeInfo(c *fiber.Ctx) error {
	if tc.Marketing == nil {
		return unavailable(c)
	}
	info, err := tc.Marketing.LookupUnsubscribe(c.Params("trackingId"))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(info)
}

// HandleUnsubscribe answers POST /api/marketing/unsubscribe/:trackingId
func (tc *TrackingController) HandleUnsubscribe(c *fiber.Ctx) error {
	if tc.Marketing == nil {
		return unavailable(c)
	}
	var req unsubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return apierror.Respond(c, apierror.BadRequest("invalid_body", "Corps de requête invalide"))
	}
	channel, err := tc.Marketing.Unsubscribe(c.Params("trackingId"), req.Email, req.Sms)
	if errors.Is(err, marketing.ErrNoChannelSelected) {
		return apierror.Write(c, fiber.StatusBadRequest, "no_channel_selected", "Sélectionnez au moins un canal")
	}
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"channel": channel, "message": "Désinscription enregistrée"})
}

// HandleUnsubscribePage renders the public unsubscribe form.
func (tc *TrackingController) HandleUnsubscribePage(c *fiber.Ctx) error {
	data := fiber.Map{
		"Title":      "Se désinscrire",
		"TrackingID": c.Params("trackingId"),
		"Flash":      flash.Get(c),
		"Csrf":       c.Locals("csrf"),
	}
	if tc.Marketing != nil {
		info, err := tc.Marketing.LookupUnsubscribe(c.Params("trackingId"))
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Error("unsubscribe lookup failed", zap.Error(err))
		}
		data["Info"] = info
	}
	return c.Render("unsubscribe", data, "layouts/main")
}

// HandleUnsubscribeForm processes the form, and also the RFC 8058 one-click
// POST mail clients send from the List-Unsubscribe header.
func (tc *TrackingController) HandleUnsubscribeForm(c *fiber.Ctx) error {
	trackingID := c.Params("trackingId")
	back := constants.UnsubscribeRoute + "/" + trackingID
	if tc.Marketing == nil {
		return flash.Error(c, back, apierror.MsgInternal)
	}

	email := c.FormValue("email") != ""
	sms := c.FormValue("sms") != ""
	oneClick := c.FormValue("List-Unsubscribe") == "One-Click"
	if oneClick {
		email = true
	}

	channel, err := tc.Marketing.Unsubscribe(trackingID, email, sms)
	if oneClick {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Error("one-click unsubscribe failed", zap.String("tracking_id", trackingID), zap.Error(err))
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendStatus(fiber.StatusOK)
	}

	switch {
	case errors.Is(err, marketing.ErrNoChannelSelected):
		return flash.Error(c, back, "Sélectionnez au moins un canal")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return flash.Error(c, back, "Lien de désinscription invalide")
	case err != nil:
		zap.L().Error("unsubscribe failed", zap.String("tracking_id", trackingID), zap.Error(err))
		return flash.Error(c, back, apierror.MsgInternal)
	}
	return flash.Success(c, back, unsubscribeMessage(channel))
}

func unsubscribeMessage(channel string) string {
	switch channel {
	case models.CHANNEL_EMAIL:
		return "Vous ne recevrez plus nos emails"
	case models.CHANNEL_SMS:
		return "Vous ne recevrez plus nos SMS"
	}
	return "Vous ne recevrez plus nos emails ni nos SMS"
}

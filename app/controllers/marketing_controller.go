package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/jobqueue"
	"github.com/speedai/speedai/internal/pkg/marketing"
)

const maxBulkContacts = 1000

// MarketingController serves contacts, segments and campaigns.
type MarketingController struct {
	*Deps
}

func NewMarketingController(deps *Deps) *MarketingController {
	return &MarketingController{Deps: deps}
}

type contactRequest struct {
	FirstName  string   `json:"firstName" validate:"max=100"`
	LastName   string   `json:"lastName" validate:"max=100"`
	Email      string   `json:"email" validate:"omitempty,email,max=200"`
	Phone      string   `json:"phone" validate:"max=30"`
	OptInEmail bool     `json:"optInEmail"`
	OptInSms   bool     `json:"optInSms"`
	Tags       []string `json:"tags" validate:"max=50,dive,max=50"`
	Source     string   `json:"source" validate:"max=50"`
}

func (r contactRequest) apply(contact *models.MarketingContact) {
	contact.FirstName = strings.TrimSpace(r.FirstName)
	contact.LastName = strings.TrimSpace(r.LastName)
	contact.Email = strings.ToLower(strings.TrimSpace(r.Email))
	contact.Phone = strings.TrimSpace(r.Phone)
	contact.OptInEmail = r.OptInEmail
	contact.OptInSms = r.OptInSms
	contact.Source = strings.TrimSpace(r.Source)
	contact.SetTags(r.Tags)
}

var errContactUnreachable = apierror.BadRequest("contact_unreachable", "Un email ou un téléphone est requis")

func (r contactRequest) check() error {
	if strings.TrimSpace(r.Email) == "" && strings.TrimSpace(r.Phone) == "" {
		return errContactUnreachable
	}
	return nil
}

type bulkContactsRequest struct {
	Contacts []contactRequest `json:"contacts" validate:"required,min=1,dive"`
}

type segmentRequest struct {
	Name        string               `json:"name" validate:"required,max=150"`
	Description string               `json:"description"`
	Filters     models.ContactFilter `json:"filters"`
}

type campaignRequest struct {
	Name       string                `json:"name" validate:"required,max=200"`
	Channel    string                `json:"channel" validate:"required,oneof=email sms"`
	Subject    string                `json:"subject" validate:"max=255"`
	Content    string                `json:"content"`
	TargetType string                `json:"targetType" validate:"omitempty,oneof=all segment filters"`
	SegmentID  *uint                 `json:"segmentId"`
	Filters    *models.ContactFilter `json:"filters"`
}

type scheduleRequest struct {
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
}

// contactFilter reads the contact list query: search, tags (comma separated), source, channel.
func contactFilter(c *fiber.Ctx) models.ContactFilter {
	f := models.ContactFilter{
		Search:  c.Query("search"),
		Source:  c.Query("source"),
		Channel: c.Query("channel"),
	}
	if tags := c.Query("tags"); tags != "" {
		f.Tags = strings.Split(tags, ",")
	}
	return f
}

func (mc *MarketingController) HandleListContacts(c *fiber.Ctx) error {
	offset, limit := pagination(c)
	contacts, total, err := mc.Repos.Marketing.ListContacts(currentUserID(c), contactFilter(c), offset, limit)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"contacts": contacts, "total": total, "limit": limit, "offset": offset})
}

func (mc *MarketingController) HandleGetContact(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	contact, err := mc.Repos.Marketing.GetContact(currentUserID(c), id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(contact)
}

func (mc *MarketingController) HandleCreateContact(c *fiber.Ctx) error {
	var req contactRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	if err := req.check(); err != nil {
		return apierror.Respond(c, err)
	}
	contact := &models.MarketingContact{UserID: currentUserID(c)}
	req.apply(contact)
	if err := mc.Repos.Marketing.CreateContact(contact); err != nil {
		return apierror.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(contact)
}

// HandleBulkCreateContacts inserts a JSON array of contacts in one transaction.
func (mc *MarketingController) HandleBulkCreateContacts(c *fiber.Ctx) error {
	var req bulkContactsRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	if len(req.Contacts) > maxBulkContacts {
		return apierror.Write(c, fiber.StatusBadRequest, "too_many_contacts", "Trop de contacts dans une seule importation")
	}
	userID := currentUserID(c)
	contacts := make([]models.MarketingContact, 0, len(req.Contacts))
	skipped := 0
	for _, in := range req.Contacts {
		if in.check() != nil {
			skipped++
			continue
		}
		contact := models.MarketingContact{UserID: userID}
		in.apply(&contact)
		contacts = append(contacts, contact)
	}
	if err := mc.Repos.Marketing.CreateContacts(contacts); err != nil {
		return apierror.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"created": len(contacts), "skipped": skipped})
}

func (mc *MarketingController) HandleUpdateContact(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	var req contactRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	if err := req.check(); err != nil {
		return apierror.Respond(c, err)
	}
	contact, err := mc.Repos.Marketing.GetContact(currentUserID(c), id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	req.apply(contact)
	if err := mc.Repos.Marketing.UpdateContact(contact); err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(contact)
}

func (mc *MarketingController) HandleDeleteContact(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	if err := mc.Repos.Marketing.DeleteContact(currentUserID(c), id); err != nil {
		return apierror.Respond(c, err)
	}
	return noContent(c)
}

func (mc *MarketingController) HandleListSegments(c *fiber.Ctx) error {
	segments, err := mc.Repos.Marketing.ListSegments(currentUserID(c))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(segments)
}

func (mc *MarketingController) HandleCreateSegment(c *fiber.Ctx) error {
	var req segmentRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	filters, err := models.EncodeContactFilter(req.Filters)
	if err != nil {
		return apierror.Respond(c, err)
	}
	segment := &models.MarketingSegment{
		UserID:      currentUserID(c),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Filters:     filters,
	}
	if err := mc.Repos.Marketing.CreateSegment(segment); err != nil {
		return apierror.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(segment)
}

func (mc *MarketingController) HandleUpdateSegment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	var req segmentRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	segment, err := mc.Repos.Marketing.GetSegment(currentUserID(c), id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	filters, err := models.EncodeContactFilter(req.Filters)
	if err != nil {
		return apierror.Respond(c, err)
	}
	segment.Name = strings.TrimSpace(req.Name)
	segment.Description = req.Description
	segment.Filters = filters
	if err := mc.Repos.Marketing.UpdateSegment(segment); err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(segment)
}

func (mc *MarketingController) HandleDeleteSegment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	if err := mc.Repos.Marketing.DeleteSegment(currentUserID(c), id); err != nil {
		return apierror.Respond(c, err)
	}
	return noContent(c)
}

// HandleSegmentPreview counts the contacts a segment currently matches.
func (mc *MarketingController) HandleSegmentPreview(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	userID := currentUserID(c)
	segment, err := mc.Repos.Marketing.GetSegment(userID, id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	filter, err := models.ParseContactFilter(segment.Filters)
	if err != nil {
		return apierror.Respond(c, err)
	}
	_, total, err := mc.Repos.Marketing.ListContacts(userID, filter, 0, 1)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"segmentId": segment.ID, "contacts": total})
}

func (mc *MarketingController) HandleListCampaigns(c *fiber.Ctx) error {
	campaigns, err := mc.Repos.Marketing.ListCampaigns(currentUserID(c), c.Query("status"))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(campaigns)
}

func (mc *MarketingController) HandleGetCampaign(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	campaign, err := mc.Repos.Marketing.GetCampaign(currentUserID(c), id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(campaign)
}

func (mc *MarketingController) applyCampaign(userID uint, req campaignRequest, campaign *models.MarketingCampaign) error {
	campaign.Name = strings.TrimSpace(req.Name)
	campaign.Channel = req.Channel
	campaign.Subject = strings.TrimSpace(req.Subject)
	campaign.Content = req.Content
	campaign.TargetType = req.TargetType
	if campaign.TargetType == "" {
		campaign.TargetType = models.TARGET_ALL
	}
	campaign.SegmentID = nil
	campaign.Filters = nil
	switch campaign.TargetType {
	case models.TARGET_SEGMENT:
		if req.SegmentID == nil {
			return apierror.BadRequest("segment_required", "Un segment est requis")
		}
		if _, err := mc.Repos.Marketing.GetSegment(userID, *req.SegmentID); err != nil {
			return err
		}
		campaign.SegmentID = req.SegmentID
	case models.TARGET_FILTERS:
		var f models.ContactFilter
		if req.Filters != nil {
			f = *req.Filters
		}
		raw, err := models.EncodeContactFilter(f)
		if err != nil {
			return err
		}
		campaign.Filters = raw
	}
	if campaign.Channel == models.CHANNEL_EMAIL && campaign.Subject == "" {
		return apierror.BadRequest("subject_required", "Un objet est requis pour une campagne email")
	}
	return nil
}

func (mc *MarketingController) HandleCreateCampaign(c *fiber.Ctx) error {
	var req campaignRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	userID := currentUserID(c)
	campaign := &models.MarketingCampaign{UserID: userID, Status: models.CAMPAIGN_DRAFT}
	if err := mc.applyCampaign(userID, req, campaign); err != nil {
		return apierror.Respond(c, err)
	}
	if err := mc.Repos.Marketing.CreateCampaign(campaign); err != nil {
		return apierror.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(campaign)
}

func (mc *MarketingController) HandleUpdateCampaign(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	var req campaignRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	userID := currentUserID(c)
	campaign, err := mc.Repos.Marketing.GetCampaign(userID, id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	if !campaign.IsEditable() {
		return campaignError(c, marketing.ErrCampaignLocked)
	}
	if err := mc.applyCampaign(userID, req, campaign); err != nil {
		return apierror.Respond(c, err)
	}
	if err := mc.Repos.Marketing.UpdateCampaign(campaign); err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(campaign)
}

func (mc *MarketingController) HandleDeleteCampaign(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	userID := currentUserID(c)
	campaign, err := mc.Repos.Marketing.GetCampaign(userID, id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	if campaign.Status == models.CAMPAIGN_SENDING {
		return campaignError(c, marketing.ErrCampaignLocked)
	}
	if err := mc.Repos.Marketing.DeleteCampaign(userID, id); err != nil {
		return apierror.Respond(c, err)
	}
	return noContent(c)
}

func (mc *MarketingController) HandleScheduleCampaign(c *fiber.Ctx) error {
	if mc.Marketing == nil {
		return unavailable(c)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	var req scheduleRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	campaign, err := mc.Marketing.Schedule(currentUserID(c), id, req.ScheduledAt)
	if err != nil {
		return campaignError(c, err)
	}
	return c.JSON(campaign)
}

// HandleSendCampaign claims the campaign and hands delivery to the job queue.
func (mc *MarketingController) HandleSendCampaign(c *fiber.Ctx) error {
	if mc.Marketing == nil || mc.Jobs == nil {
		return unavailable(c)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	userID := currentUserID(c)
	campaign, err := mc.Marketing.StartSend(userID, id)
	if err != nil {
		return campaignError(c, err)
	}
	job, err := mc.Jobs.EnqueueJob(jobqueue.JobTypeCampaignSend, jobqueue.CampaignSendPayload{UserID: userID, CampaignID: id}.ToMap())
	if err != nil {
		zap.L().Error("enqueue campaign send failed", zap.Uint("campaign_id", id), zap.Error(err))
		// Hand the campaign back so it can be sent again.
		campaign.Status = models.CAMPAIGN_DRAFT
		if uerr := mc.Repos.Marketing.UpdateCampaign(campaign); uerr != nil {
			zap.L().Error("campaign rollback failed", zap.Uint("campaign_id", id), zap.Error(uerr))
		}
		return apierror.Respond(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"campaign": campaign, "jobId": job.ID})
}

// HandleCampaignStats returns the counters and the per-recipient sends.
func (mc *MarketingController) HandleCampaignStats(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	userID := currentUserID(c)
	campaign, err := mc.Repos.Marketing.GetCampaign(userID, id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	sends, err := mc.Repos.Marketing.ListSends(userID, id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{
		"campaignId":  campaign.ID,
		"status":      campaign.Status,
		"recipients":  campaign.TotalRecipients,
		"sent":        campaign.SentCount,
		"failed":      campaign.FailedCount,
		"opens":       campaign.OpenCount,
		"clicks":      campaign.ClickCount,
		"openRate":    rate(campaign.OpenCount, campaign.SentCount),
		"clickRate":   rate(campaign.ClickCount, campaign.SentCount),
		"sends":       sends,
		"lastUpdated": campaign.UpdatedAt,
	})
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(int(float64(part)/float64(total)*1000+0.5)) / 10
}

func campaignError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, marketing.ErrCampaignLocked):
		return apierror.Write(c, fiber.StatusConflict, "campaign_locked", "Campagne déjà envoyée ou en cours d'envoi")
	case errors.Is(err, marketing.ErrScheduleInPast):
		return apierror.Write(c, fiber.StatusBadRequest, "schedule_in_past", "La date d'envoi doit être dans le futur")
	case errors.Is(err, marketing.ErrCampaignHasNoBody):
		return apierror.Write(c, fiber.StatusBadRequest, "empty_content", "Le contenu de la campagne est vide")
	}
	return apierror.Respond(c, err)
}

package controllers

import (
	"regexp"

	"github.com/gofiber/fiber/v2"

	"github.com/speedai/speedai/internal/pkg/apierror"
)

// NotificationController serves the notification bell and the monthly reports.
type NotificationController struct {
	*Deps
}

func NewNotificationController(deps *Deps) *NotificationController {
	return &NotificationController{Deps: deps}
}

// HandleList answers GET /api/notifications?unread=true&page=&limit=
func (nc *NotificationController) HandleList(c *fiber.Ctx) error {
	offset, limit := pagination(c)
	items, err := nc.Repos.Notification.List(currentUserID(c), c.QueryBool("unread"), offset, limit)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(items)
}

func (nc *NotificationController) HandleUnreadCount(c *fiber.Ctx) error {
	n, err := nc.Repos.Notification.CountUnread(currentUserID(c))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"count": n})
}

func (nc *NotificationController) HandleMarkRead(c *fiber.Ctx) error {
	return nc.setRead(c, true)
}

func (nc *NotificationController) HandleMarkUnread(c *fiber.Ctx) error {
	return nc.setRead(c, false)
}

func (nc *NotificationController) setRead(c *fiber.Ctx, read bool) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	if err := nc.Repos.Notification.SetRead(currentUserID(c), id, read); err != nil {
		return apierror.Respond(c, err)
	}
	return noContent(c)
}

func (nc *NotificationController) HandleMarkAllRead(c *fiber.Ctx) error {
	n, err := nc.Repos.Notification.MarkAllRead(currentUserID(c))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"updated": n})
}

func (nc *NotificationController) HandleDelete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	if err := nc.Repos.Notification.Delete(currentUserID(c), id); err != nil {
		return apierror.Respond(c, err)
	}
	return noContent(c)
}

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

func (nc *NotificationController) HandleListReports(c *fiber.Ctx) error {
	reports, err := nc.Repos.Report.List(currentUserID(c))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(reports)
}

// HandleGetReport answers GET /api/reports/:period with period as YYYY-MM.
func (nc *NotificationController) HandleGetReport(c *fiber.Ctx) error {
	period := c.Params("period")
	if !periodPattern.MatchString(period) {
		return apierror.Write(c, fiber.StatusBadRequest, "invalid_period", "Période invalide (AAAA-MM)")
	}
	report, err := nc.Repos.Report.GetByPeriod(currentUserID(c), period)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(report)
}

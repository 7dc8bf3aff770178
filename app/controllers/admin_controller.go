package controllers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/usercontext"
)

// AdminController serves the back-office API.
type AdminController struct {
	*Deps
}

func NewAdminController(deps *Deps) *AdminController {
	return &AdminController{Deps: deps}
}

type accountStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=trial active suspended expired"`
}

// HandleListUsers answers GET /api/admin/users?q=&page=&limit=
func (ac *AdminController) HandleListUsers(c *fiber.Ctx) error {
	if q := c.Query("q"); q != "" {
		users, err := ac.Repos.User.Search(q)
		if err != nil {
			return apierror.Respond(c, err)
		}
		return c.JSON(fiber.Map{"users": users, "total": len(users)})
	}
	offset, limit := pagination(c)
	users, err := ac.Repos.User.List(offset, limit)
	if err != nil {
		return apierror.Respond(c, err)
	}
	total, err := ac.Repos.User.Count()
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"users": users, "total": total, "limit": limit, "offset": offset})
}

func (ac *AdminController) HandleGetUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	user, err := ac.Repos.User.GetByID(id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(userResponse(user, ac.Deps))
}

// HandleSetAccountStatus suspends, reactivates or expires an account.
func (ac *AdminController) HandleSetAccountStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	var req accountStatusRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	if id == currentUserID(c) && req.Status == models.ACCOUNT_SUSPENDED {
		return apierror.Write(c, fiber.StatusBadRequest, "self_suspend", "Impossible de suspendre votre propre compte")
	}
	if err := ac.Repos.User.SetAccountStatus(id, req.Status); err != nil {
		return apierror.Respond(c, err)
	}
	zap.L().Info("account status changed",
		zap.Uint("user_id", id),
		zap.String("status", req.Status),
		zap.Uint("admin_id", usercontext.GetUserID(c)))
	return noContent(c)
}

// HandleBackfillConversions writes conversion_result on legacy completed calls.
func (ac *AdminController) HandleBackfillConversions(c *fiber.Ctx) error {
	n, err := ac.Repos.Call.BackfillConversionResults()
	if err != nil {
		return apierror.Respond(c, err)
	}
	zap.L().Info("conversion results backfilled", zap.Int64("rows", n))
	return c.JSON(fiber.Map{"updated": n})
}

func (ac *AdminController) HandleQueueStats(c *fiber.Ctx) error {
	if ac.Queue == nil {
		return unavailable(c)
	}
	ctx := c.UserContext()
	stats, err := ac.Queue.GetJobStats(ctx)
	if err != nil {
		return apierror.Respond(c, err)
	}
	pending, err := ac.Queue.GetQueueSize(ctx)
	if err != nil {
		return apierror.Respond(c, err)
	}
	processing, err := ac.Queue.GetProcessingSize(ctx)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"stats": stats, "pending": pending, "processing": processing})
}

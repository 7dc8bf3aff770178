package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/analytics"
	"github.com/speedai/speedai/internal/pkg/apierror"
)

// CallController serves the dashboard call list and statistics.
type CallController struct {
	*Deps
}

func NewCallController(deps *Deps) *CallController {
	return &CallController{Deps: deps}
}

func timeFilter(c *fiber.Ctx) (analytics.TimeFilter, error) {
	f, err := analytics.ParseTimeFilter(c.Query("timeFilter"))
	if err != nil {
		return "", apierror.BadRequest("invalid_time_filter", "Filtre de période invalide")
	}
	return f, nil
}

// HandleList answers GET /api/calls?timeFilter=&statusFilter=&appointmentsOnly=&page=&limit=
func (cc *CallController) HandleList(c *fiber.Ctx) error {
	f, err := timeFilter(c)
	if err != nil {
		return apierror.Respond(c, err)
	}
	status := c.Query("statusFilter")
	if status == "all" {
		status = ""
	}
	if status != "" && !models.IsValidCallStatus(status) {
		return apierror.Write(c, fiber.StatusBadRequest, "invalid_status_filter", "Filtre de statut invalide")
	}
	offset, limit := pagination(c)

	calls, total, err := cc.Repos.Call.List(currentUserID(c), repository.CallListFilter{
		Range:            repository.CallRange{Since: f.SincePtr(cc.now())},
		Status:           status,
		AppointmentsOnly: c.QueryBool("appointmentsOnly"),
		Offset:           offset,
		Limit:            limit,
	})
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"calls": calls, "total": total, "limit": limit, "offset": offset})
}

func (cc *CallController) HandleGet(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	call, err := cc.Repos.Call.GetByID(currentUserID(c), id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(call)
}

func (cc *CallController) HandleCreate(c *fiber.Ctx) error {
	var in models.CallInput
	if err := bindJSON(c, &in); err != nil {
		return apierror.Respond(c, err)
	}
	userID := currentUserID(c)
	call := in.ToCall(userID, cc.now())
	if err := cc.Repos.Call.Create(call); err != nil {
		return apierror.Respond(c, err)
	}
	cc.invalidate(userID)
	return c.Status(fiber.StatusCreated).JSON(call)
}

// HandleUpdate applies a partial update; a finished call accepts enrichment only.
func (cc *CallController) HandleUpdate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	var upd models.CallUpdate
	if err := bindJSON(c, &upd); err != nil {
		return apierror.Respond(c, err)
	}
	userID := currentUserID(c)
	call, err := UpdateCall(cc.Repos.Call, userID, id, upd)
	if err != nil {
		return apierror.Respond(c, err)
	}
	cc.invalidate(userID)
	return c.JSON(call)
}

func (cc *CallController) HandleDelete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	userID := currentUserID(c)
	if err := cc.Repos.Call.Delete(userID, id); err != nil {
		return apierror.Respond(c, err)
	}
	cc.invalidate(userID)
	return noContent(c)
}

// HandleStats answers GET /api/calls/stats?timeFilter=
func (cc *CallController) HandleStats(c *fiber.Ctx) error {
	f, err := timeFilter(c)
	if err != nil {
		return apierror.Respond(c, err)
	}
	stats, err := cc.Stats.DashboardStats(c.UserContext(), currentUserID(c), f)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(stats)
}

func (cc *CallController) HandleChart(c *fiber.Ctx) error {
	f, err := timeFilter(c)
	if err != nil {
		return apierror.Respond(c, err)
	}
	rows, err := cc.Stats.ChartData(c.UserContext(), currentUserID(c), f)
	if err != nil {
		return apierror.Respond(c, err)
	}
	if rows == nil {
		rows = []models.DailyCallStats{}
	}
	return c.JSON(rows)
}

func (cc *CallController) HandleInsights(c *fiber.Ctx) error {
	f, err := timeFilter(c)
	if err != nil {
		return apierror.Respond(c, err)
	}
	in, err := cc.Stats.Insights(c.UserContext(), currentUserID(c), f)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(in)
}

func (cc *CallController) invalidate(userID uint) {
	if cc.Stats != nil {
		cc.Stats.Invalidate(userID)
	}
}

// UpdateCall loads, patches and saves one call of userID.
func UpdateCall(calls repository.CallRepository, userID, id uint, upd models.CallUpdate) (*models.Call, error) {
	call, err := calls.GetByID(userID, id)
	if err != nil {
		return nil, err
	}
	if err := call.Apply(upd); err != nil {
		if errors.Is(err, models.ErrCallFinalized) {
			return nil, apierror.BadRequest("call_finalized", "Appel terminé : seules les informations d'enrichissement sont modifiables")
		}
		return nil, err
	}
	if err := calls.Update(call); err != nil {
		return nil, err
	}
	return call, nil
}

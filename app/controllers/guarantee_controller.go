package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/billing"
	"github.com/speedai/speedai/internal/pkg/guarantee"
)

// GuaranteeController serves the no-show card guarantee.
type GuaranteeController struct {
	*Deps
}

func NewGuaranteeController(deps *Deps) *GuaranteeController {
	return &GuaranteeController{Deps: deps}
}

type attachCardRequest struct {
	CustomerID      string `json:"stripeCustomerId" validate:"required,max=100"`
	PaymentMethodID string `json:"stripePaymentMethodId" validate:"required,max=100"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=honored no_show canceled"`
}

func (gc *GuaranteeController) HandleListSessions(c *fiber.Ctx) error {
	sessions, err := gc.Repos.Guarantee.ListSessions(currentUserID(c), c.Query("status"))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(sessions)
}

func (gc *GuaranteeController) HandleGetSession(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	userID := currentUserID(c)
	session, err := gc.Repos.Guarantee.GetSession(userID, id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	charges, err := gc.Repos.Guarantee.ListCharges(userID, id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"session": session, "charges": charges})
}

func (gc *GuaranteeController) HandleCreateSession(c *fiber.Ctx) error {
	if gc.Guarantee == nil {
		return unavailable(c)
	}
	var in guarantee.SessionInput
	if err := bindJSON(c, &in); err != nil {
		return apierror.Respond(c, err)
	}
	session, err := gc.Guarantee.CreateSession(currentUserID(c), in)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

func (gc *GuaranteeController) HandleUpdateSession(c *fiber.Ctx) error {
	if gc.Guarantee == nil {
		return unavailable(c)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	var in guarantee.SessionInput
	if err := bindJSON(c, &in); err != nil {
		return apierror.Respond(c, err)
	}
	session, err := gc.Guarantee.UpdateSession(currentUserID(c), id, in)
	if err != nil {
		return guaranteeError(c, err)
	}
	return c.JSON(session)
}

// HandleDeleteSession removes a session that never held a card.
func (gc *GuaranteeController) HandleDeleteSession(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	userID := currentUserID(c)
	session, err := gc.Repos.Guarantee.GetSession(userID, id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	if session.Status != models.GUARANTEE_PENDING && session.Status != models.GUARANTEE_CANCELED {
		return guaranteeError(c, guarantee.ErrSessionLocked)
	}
	if err := gc.Repos.Guarantee.DeleteSession(userID, id); err != nil {
		return apierror.Respond(c, err)
	}
	return noContent(c)
}

// HandleSetupCard returns the setup intent the card form confirms.
func (gc *GuaranteeController) HandleSetupCard(c *fiber.Ctx) error {
	if gc.Guarantee == nil {
		return unavailable(c)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	setup, err := gc.Guarantee.SetupCard(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return guaranteeError(c, err)
	}
	return c.JSON(setup)
}

func (gc *GuaranteeController) HandleAttachCard(c *fiber.Ctx) error {
	if gc.Guarantee == nil {
		return unavailable(c)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	var req attachCardRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	session, err := gc.Guarantee.AttachCard(currentUserID(c), id, req.CustomerID, req.PaymentMethodID)
	if err != nil {
		return guaranteeError(c, err)
	}
	return c.JSON(session)
}

// HandleTransition marks a session honored, no-show or canceled.
func (gc *GuaranteeController) HandleTransition(c *fiber.Ctx) error {
	if gc.Guarantee == nil {
		return unavailable(c)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	var req transitionRequest
	if err := bindJSON(c, &req); err != nil {
		return apierror.Respond(c, err)
	}
	session, err := gc.Guarantee.Transition(currentUserID(c), id, req.Status)
	if err != nil {
		return guaranteeError(c, err)
	}
	return c.JSON(session)
}

// HandleCharge charges a no-show. A declined card is answered with 402 and
// the recorded charge.
func (gc *GuaranteeController) HandleCharge(c *fiber.Ctx) error {
	if gc.Guarantee == nil {
		return unavailable(c)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return apierror.Respond(c, err)
	}
	charge, err := gc.Guarantee.ChargeNoShow(c.UserContext(), currentUserID(c), id)
	if charge != nil && charge.Status == models.CHARGE_FAILED {
		if err != nil {
			zap.L().Warn("no-show charge failed", zap.Uint("session_id", id), zap.Error(err))
		}
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":   "charge_failed",
			"message": "Le paiement a été refusé",
			"charge":  charge,
		})
	}
	if err != nil {
		return guaranteeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(charge)
}

func (gc *GuaranteeController) HandleStats(c *fiber.Ctx) error {
	stats, err := gc.Repos.Guarantee.GetStats(currentUserID(c))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(stats)
}

func guaranteeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidGuaranteeTransition):
		return apierror.Write(c, fiber.StatusConflict, "invalid_transition", "Changement de statut impossible")
	case errors.Is(err, guarantee.ErrSessionLocked):
		return apierror.Write(c, fiber.StatusConflict, "session_locked", "Cette réservation ne peut plus être modifiée")
	case errors.Is(err, guarantee.ErrSessionNotNoShow):
		return apierror.Write(c, fiber.StatusConflict, "not_no_show", "Seules les non-présentations peuvent être débitées")
	case errors.Is(err, guarantee.ErrNoCard):
		return apierror.Write(c, fiber.StatusBadRequest, "no_card", "Aucune carte enregistrée")
	case errors.Is(err, guarantee.ErrNothingToCharge):
		return apierror.Write(c, fiber.StatusBadRequest, "nothing_to_charge", "Montant à débiter nul")
	case errors.Is(err, billing.ErrStripeNotConfigured):
		return apierror.Write(c, fiber.StatusServiceUnavailable, "payments_unavailable", "Paiements non configurés")
	}
	return apierror.Respond(c, err)
}

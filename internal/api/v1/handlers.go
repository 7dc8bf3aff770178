// Package apiv1 is the API key authenticated surface used by the voice
// workflow to push calls and read statistics.
package apiv1

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/controllers"
	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/analytics"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/usercontext"
)

var validate = validator.New()

func validateStruct(v interface{}) error {
	return validate.Struct(v)
}

// Pong is the body of GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the v1 handlers on top of the controller dependencies.
type APIServer struct {
	deps *controllers.Deps
}

// NewAPIServer creates a new API server instance
func NewAPIServer(deps *controllers.Deps) *APIServer {
	return &APIServer{deps: deps}
}

// RegisterHandlers mounts the v1 routes on router. Authentication is attached
// by the caller.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)
	router.Get("/me", s.GetUserProfile)
	router.Post("/calls", s.PostCall)
	router.Get("/calls/stats", s.GetCallStats)
	router.Get("/calls/:id", s.GetCall)
	router.Patch("/calls/:id", s.PatchCall)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// GetUserProfile returns account information for the API key owner.
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	user := usercontext.User(c)
	if user == nil {
		return apierror.Unauthorized(c)
	}
	return c.JSON(fiber.Map{
		"id":            user.ID,
		"email":         user.Email,
		"companyName":   user.CompanyName,
		"accountStatus": user.EffectiveAccountStatus(s.now()),
	})
}

// PostCall creates a call, or updates the one with the same externalId.
// Creation answers 201, an update of a known call 200.
func (s *APIServer) PostCall(c *fiber.Ctx) error {
	var in models.CallInput
	if err := c.BodyParser(&in); err != nil {
		return apierror.Respond(c, apierror.BadRequest("invalid_body", "Corps de requête invalide"))
	}
	if err := validateStruct(in); err != nil {
		return apierror.Respond(c, err)
	}
	userID := usercontext.GetUserID(c)
	call := in.ToCall(userID, s.now())

	status := fiber.StatusCreated
	if call.ExternalID == nil {
		if err := s.deps.Repos.Call.Create(call); err != nil {
			return apierror.Respond(c, err)
		}
	} else {
		created, err := s.deps.Repos.Call.UpsertByExternalID(call)
		if errors.Is(err, models.ErrCallFinalized) {
			return apierror.Write(c, fiber.StatusConflict, "call_finalized", "Appel terminé : seules les informations d'enrichissement sont modifiables")
		}
		if err != nil {
			return apierror.Respond(c, err)
		}
		if !created {
			status = fiber.StatusOK
		}
	}
	s.invalidate(userID)
	zap.L().Debug("call ingested", zap.Uint("user_id", userID), zap.Uint("call_id", call.ID), zap.Int("status", status))
	return c.Status(status).JSON(call)
}

// GetCall accepts the numeric id or the external id of the workflow.
func (s *APIServer) GetCall(c *fiber.Ctx) error {
	call, err := s.lookup(c)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(call)
}

// PatchCall back-fills enrichment fields written by the workflow.
func (s *APIServer) PatchCall(c *fiber.Ctx) error {
	var upd models.CallUpdate
	if err := c.BodyParser(&upd); err != nil {
		return apierror.Respond(c, apierror.BadRequest("invalid_body", "Corps de requête invalide"))
	}
	if err := validateStruct(upd); err != nil {
		return apierror.Respond(c, err)
	}
	existing, err := s.lookup(c)
	if err != nil {
		return apierror.Respond(c, err)
	}
	userID := usercontext.GetUserID(c)
	call, err := controllers.UpdateCall(s.deps.Repos.Call, userID, existing.ID, upd)
	if err != nil {
		return apierror.Respond(c, err)
	}
	s.invalidate(userID)
	return c.JSON(call)
}

// GetCallStats answers GET /api/v1/calls/stats?timeFilter=
func (s *APIServer) GetCallStats(c *fiber.Ctx) error {
	if s.deps.Stats == nil {
		return apierror.Write(c, fiber.StatusServiceUnavailable, "service_unavailable", "Service indisponible")
	}
	f, err := analytics.ParseTimeFilter(c.Query("timeFilter"))
	if err != nil {
		return apierror.Write(c, fiber.StatusBadRequest, "invalid_time_filter", "Filtre de période invalide")
	}
	stats, err := s.deps.Stats.DashboardStats(c.UserContext(), usercontext.GetUserID(c), f)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(stats)
}

func (s *APIServer) lookup(c *fiber.Ctx) (*models.Call, error) {
	userID := usercontext.GetUserID(c)
	raw := c.Params("id")
	if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
		call, err := s.deps.Repos.Call.GetByID(userID, uint(id))
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return call, err
		}
	}
	return s.deps.Repos.Call.GetByExternalID(userID, raw)
}

func (s *APIServer) now() time.Time {
	if s.deps.Now != nil {
		return s.deps.Now()
	}
	return time.Now()
}

func (s *APIServer) invalidate(userID uint) {
	if s.deps.Stats != nil {
		s.deps.Stats.Invalidate(userID)
	}
}

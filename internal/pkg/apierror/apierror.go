// Package apierror writes the JSON error bodies of the HTTP API:
// {"error": "<machine_code>", "message": "<message>"}.
package apierror

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/speedai/speedai/internal/pkg/entitlements"
)

const (
	CodeBadRequest   = "bad_request"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeInternal     = "internal_error"

	MsgInternal     = "Une erreur est survenue"
	MsgNotFound     = "Ressource introuvable"
	MsgUnauthorized = "Authentification requise"
	MsgForbidden    = "Accès refusé"
	MsgInvalidInput = "Données invalides"
)

// BadRequestError marks caller mistakes that map to 400.
type BadRequestError struct {
	Code    string
	Message string
}

func (e *BadRequestError) Error() string { return e.Message }

// BadRequest wraps a message as a 400 error.
func BadRequest(code, message string) error {
	return &BadRequestError{Code: code, Message: message}
}

// Write sends one error body.
func Write(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func Unauthorized(c *fiber.Ctx) error {
	return Write(c, fiber.StatusUnauthorized, CodeUnauthorized, MsgUnauthorized)
}

func Forbidden(c *fiber.Ctx) error {
	return Write(c, fiber.StatusForbidden, CodeForbidden, MsgForbidden)
}

func NotFound(c *fiber.Ctx) error {
	return Write(c, fiber.StatusNotFound, CodeNotFound, MsgNotFound)
}

// Respond maps err to a status code and body. Sentinels that callers must
// see as 400 are passed in badRequest.
func Respond(c *fiber.Ctx, err error, badRequest ...error) error {
	var bre *BadRequestError
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound(c)
	case errors.As(err, &bre):
		return Write(c, fiber.StatusBadRequest, bre.Code, bre.Message)
	case errors.As(err, &verrs):
		return Write(c, fiber.StatusBadRequest, "validation_error", MsgInvalidInput+" : "+fieldList(verrs))
	case entitlements.Code(err) != "":
		return Write(c, fiber.StatusForbidden, entitlements.Code(err), entitlements.Message(err))
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return Write(c, fiber.StatusBadRequest, CodeBadRequest, err.Error())
		}
	}

	zap.L().Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))
	return Write(c, fiber.StatusInternalServerError, CodeInternal, MsgInternal)
}

func fieldList(verrs validator.ValidationErrors) string {
	out := ""
	for i, fe := range verrs {
		if i > 0 {
			out += ", "
		}
		out += fe.Field()
	}
	return out
}

// ErrorHandler is the fiber error handler of the app.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusNotFound:
			return NotFound(c)
		case fiber.StatusInternalServerError:
		default:
			return Write(c, fe.Code, CodeBadRequest, fe.Message)
		}
	}
	return Respond(c, err)
}

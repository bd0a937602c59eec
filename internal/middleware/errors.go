package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/database"
	"github.com/example/sitesnap/internal/logger"
)

// ErrorHandler renders every error as the standard envelope.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *fiber.Ctx, err error) error {
		appErr, status := classify(err)
		meta := apperr.MetadataFor(appErr.Code())

		message := appErr.Message()
		if appErr.Code() == apperr.CodeInternal || message == "" {
			message = meta.PublicMessage
		}

		if status >= fiber.StatusInternalServerError {
			log.Error(c.UserContext(), "request.failed", err)
		}

		body := fiber.Map{
			"success": false,
			"error":   string(appErr.Code()),
			"message": message,
		}
		if meta.DetailsAllowed && appErr.Details() != nil {
			body["details"] = appErr.Details()
		}
		return c.Status(status).JSON(body)
	}
}

func classify(err error) (*apperr.Error, int) {
	if typed := apperr.As(err); typed != nil {
		return typed, typed.HTTPStatus()
	}
	if fe, ok := err.(*fiber.Error); ok {
		return apperr.New(codeForStatus(fe.Code), fe.Message), fe.Code
	}
	if database.IsNotFound(err) {
		return apperr.ErrNotFound, fiber.StatusNotFound
	}
	if database.IsUniqueViolation(err) {
		e := apperr.Wrap(apperr.CodeConflict, err, "resource already exists")
		return e, e.HTTPStatus()
	}
	e := apperr.Wrap(apperr.CodeInternal, err, "")
	return e, e.HTTPStatus()
}

func codeForStatus(status int) apperr.Code {
	switch status {
	case fiber.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case fiber.StatusForbidden:
		return apperr.CodeForbidden
	case fiber.StatusNotFound:
		return apperr.CodeNotFound
	case fiber.StatusConflict:
		return apperr.CodeConflict
	case fiber.StatusTooManyRequests:
		return apperr.CodeRateLimit
	case fiber.StatusServiceUnavailable:
		return apperr.CodeDependency
	}
	if status >= fiber.StatusInternalServerError {
		return apperr.CodeInternal
	}
	return apperr.CodeValidation
}

// settle renders a chain error in place so wrapping middleware sees the final
// status.
func settle(c *fiber.Ctx, err error) {
	if err == nil {
		return
	}
	if herr := c.App().ErrorHandler(c, err); herr != nil {
		_ = c.SendStatus(fiber.StatusInternalServerError)
	}
}

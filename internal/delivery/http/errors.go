package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/roadwatch/backend/internal/domain"
)

// ErrorHandler renders every error as {"error": true, "message": ...}.
// Domain errors map onto status codes; anything unrecognised is a 500 whose
// details are logged, not returned.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			code, message = fe.Code, fe.Message
		case errors.Is(err, domain.ErrNotFound):
			code, message = fiber.StatusNotFound, "Resource not found"
		case errors.Is(err, context.DeadlineExceeded):
			code, message = fiber.StatusGatewayTimeout, "Query timed out"
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("Request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error":   true,
			"message": message,
		})
	}
}

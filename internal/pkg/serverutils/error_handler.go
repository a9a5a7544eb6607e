package serverutils

import (
	"errors"

	"graphrag-gateway/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware renders any error returned further down the chain
// as the standard error envelope.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		status, body := renderError(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("HTTP", "Request failed", map[string]interface{}{
				"method": ctx.Method(),
				"path":   ctx.Path(),
				"status": status,
				"error":  err,
			})
		}
		return ctx.Status(status).JSON(body)
	}
}

func renderError(err error) (int, ErrorResponse) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, NewErrorResponse(appErr.Code, appErr.Message)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		switch fiberErr.Code {
		case fiber.StatusNotFound:
			return fiberErr.Code, NewErrorResponse(CodeNotFound, fiberErr.Message)
		case fiber.StatusUnauthorized:
			return fiberErr.Code, NewErrorResponse(CodeUnauthorized, "Authentication required")
		case fiber.StatusForbidden:
			return fiberErr.Code, NewErrorResponse(CodeForbidden, "Insufficient permissions")
		case fiber.StatusTooManyRequests:
			return fiberErr.Code, NewErrorResponse(CodeRateLimited, fiberErr.Message)
		}
		if fiberErr.Code < fiber.StatusInternalServerError {
			return fiberErr.Code, NewErrorResponse(CodeValidation, fiberErr.Message)
		}
	}

	return fiber.StatusInternalServerError, NewErrorResponse(CodeInternal, "Internal server error")
}

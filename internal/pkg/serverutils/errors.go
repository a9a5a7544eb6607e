package serverutils

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeRateLimited  = "TOO_MANY_REQUESTS"
	CodeInternal     = "INTERNAL_ERROR"
)

// AppError is an error that already knows how it should be rendered to the
// client. Cause is logged but never sent.
type AppError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func Validation(message string) *AppError {
	return &AppError{Status: fiber.StatusBadRequest, Code: CodeValidation, Message: message}
}

func Unauthorized() *AppError {
	return &AppError{Status: fiber.StatusUnauthorized, Code: CodeUnauthorized, Message: "Authentication required"}
}

func Forbidden() *AppError {
	return &AppError{Status: fiber.StatusForbidden, Code: CodeForbidden, Message: "Insufficient permissions"}
}

func NotFound(message string) *AppError {
	return &AppError{Status: fiber.StatusNotFound, Code: CodeNotFound, Message: message}
}

func TooManyRequests(message string) *AppError {
	return &AppError{Status: fiber.StatusTooManyRequests, Code: CodeRateLimited, Message: message}
}

// Internal hides the cause behind a generic message.
func Internal(cause error) *AppError {
	return &AppError{Status: fiber.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error", Cause: cause}
}

// UpstreamUnavailable is an internal error whose message names the failing
// downstream service.
func UpstreamUnavailable(message string, cause error) *AppError {
	return &AppError{Status: fiber.StatusInternalServerError, Code: CodeInternal, Message: message, Cause: cause}
}

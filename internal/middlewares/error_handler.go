// Package middlewares holds fiber middleware shared across route groups.
package middlewares

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/peerloop/peerloop/params"
)

type errorBody struct {
	APIVersion string    `json:"apiVersion"`
	Error      errorInfo `json:"error"`
}

type errorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorHandler renders every error that escapes a handler as the standard
// JSON envelope. Unexpected errors are logged and reported as a plain 500.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	} else {
		slog.Error("Unhandled error", "path", ctx.Path(), "error", err)
	}
	return ctx.Status(code).JSON(errorBody{
		APIVersion: params.APIVersion,
		Error:      errorInfo{Code: code, Message: message},
	})
}

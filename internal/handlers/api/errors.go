package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/peerloop/peerloop/internal/auth"
	"github.com/peerloop/peerloop/internal/settings"
	"github.com/peerloop/peerloop/internal/token"
	"github.com/peerloop/peerloop/internal/twofactor"
	"github.com/peerloop/peerloop/internal/users"
)

// settingsConflictResponse carries the authoritative state alongside the
// conflict so clients can rebase without a second read.
type settingsConflictResponse struct {
	Version int               `json:"version"`
	Current settings.Settings `json:"current"`
}

// writeError translates a domain error into an HTTP response. Anything not
// recognized is a 500 and gets logged; domain errors speak for themselves.
func writeError(ctx *fiber.Ctx, err error) error {
	var validationErr *auth.ValidationError
	if errors.As(err, &validationErr) {
		return ctx.Status(fiber.StatusBadRequest).JSON(NewErrorResponse(
			fiber.StatusBadRequest, "Invalid request",
			APIErrorDetail{Domain: "auth", Reason: validationErr.Field, Message: validationErr.Message},
		))
	}

	var rateLimitedErr *auth.RateLimitedError
	if errors.As(err, &rateLimitedErr) {
		ctx.Set(fiber.HeaderRetryAfter, rateLimitedErr.RetryAfterSeconds())
		return ctx.Status(fiber.StatusTooManyRequests).JSON(NewErrorResponse(
			fiber.StatusTooManyRequests, "Too many requests"))
	}

	var conflictErr *settings.ConflictError
	if errors.As(err, &conflictErr) {
		resp := NewErrorResponse(fiber.StatusConflict, "Version conflict")
		resp.Data = settingsConflictResponse{
			Version: int(conflictErr.Version),
			Current: conflictErr.Current,
		}
		return ctx.Status(fiber.StatusConflict).JSON(resp)
	}

	switch {
	case errors.Is(err, twofactor.ErrRequestRateLimited):
		return ctx.Status(fiber.StatusTooManyRequests).JSON(NewErrorResponse(
			fiber.StatusTooManyRequests, "Too many requests"))
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrCodeInvalid),
		errors.Is(err, twofactor.ErrCodeInvalid),
		errors.Is(err, twofactor.ErrCodeExpired),
		errors.Is(err, token.ErrTokenInvalid),
		errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrTokenConsumed),
		errors.Is(err, token.ErrWrongKind):
		return ctx.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse(
			fiber.StatusUnauthorized, "Unauthorized"))
	case errors.Is(err, users.ErrUsernameTaken):
		return ctx.Status(fiber.StatusConflict).JSON(NewErrorResponse(
			fiber.StatusConflict, "Username is already taken"))
	case errors.Is(err, users.ErrEmailRegistered):
		return ctx.Status(fiber.StatusConflict).JSON(NewErrorResponse(
			fiber.StatusConflict, "Email is already registered"))
	case errors.Is(err, twofactor.ErrNoPendingSecret),
		errors.Is(err, twofactor.ErrAlreadyEnabled),
		errors.Is(err, twofactor.ErrNotEnrolled),
		errors.Is(err, twofactor.ErrNoBackupCodes),
		errors.Is(err, settings.ErrInvalidPatch):
		return ctx.Status(fiber.StatusBadRequest).JSON(NewErrorResponse(
			fiber.StatusBadRequest, err.Error()))
	case errors.Is(err, auth.ErrSendFailed), errors.Is(err, twofactor.ErrSendFailed):
		return ctx.Status(fiber.StatusBadGateway).JSON(NewErrorResponse(
			fiber.StatusBadGateway, "Could not deliver email"))
	}

	slog.Error("Unhandled API error", "path", ctx.Path(), "error", err)
	return ctx.Status(fiber.StatusInternalServerError).JSON(NewErrorResponse(
		fiber.StatusInternalServerError, "Internal server error"))
}

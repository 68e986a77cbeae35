package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/peerloop/peerloop/internal/token"
)

const localUserID = "userID"

// RequireAuth rejects requests without a valid full identity token. A
// pending-2fa token is not an identity and does not pass.
func RequireAuth(tokens *token.Service) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		header := ctx.Get(fiber.HeaderAuthorization)
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse(
				fiber.StatusUnauthorized, "Unauthorized"))
		}
		userID, err := tokens.VerifyFull(tokenStr)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse(
				fiber.StatusUnauthorized, "Unauthorized"))
		}
		ctx.Locals(localUserID, userID)
		return ctx.Next()
	}
}

// CurrentUserID returns the identity established by RequireAuth. Zero means
// the middleware did not run on this route.
func CurrentUserID(ctx *fiber.Ctx) uint {
	userID, _ := ctx.Locals(localUserID).(uint)
	return userID
}

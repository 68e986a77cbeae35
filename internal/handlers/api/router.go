package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/peerloop/peerloop/internal/token"
)

// Handlers bundles everything SetupAPIRoutes mounts.
type Handlers struct {
	Auth      *AuthHandler
	TwoFactor *TwoFactorHandler
	Password  *PasswordHandler
	Settings  *SettingsHandler
}

func SetupAPIRoutes(router fiber.Router, tokens *token.Service, h Handlers) {
	requireAuth := RequireAuth(tokens)

	router.Post("/register", h.Auth.PostRegister)
	router.Post("/login", h.Auth.PostLogin)

	// challenge endpoints authenticate with a pending token in the body
	router.Post("/2fa/totp/verify", h.TwoFactor.PostTOTPVerify)
	router.Post("/2fa/email/request", h.TwoFactor.PostEmailRequest)
	router.Post("/2fa/email/verify", h.TwoFactor.PostEmailVerify)
	router.Post("/2fa/backup/verify", h.TwoFactor.PostBackupVerify)

	router.Post("/password/forgot", h.Password.PostForgotPassword)
	router.Post("/password/reset", h.Password.PostResetPassword)

	router.Get("/profile", requireAuth, h.Auth.GetProfile)
	router.Post("/2fa/totp/setup", requireAuth, h.TwoFactor.PostTOTPSetup)
	router.Post("/2fa/totp/confirm", requireAuth, h.TwoFactor.PostTOTPConfirm)
	router.Post("/2fa/disable", requireAuth, h.TwoFactor.PostTwoFADisable)
	router.Post("/password/change", requireAuth, h.Password.PostChangePassword)
	router.Get("/settings", requireAuth, h.Settings.GetSettings)
	router.Put("/settings", requireAuth, h.Settings.PutSettings)
}

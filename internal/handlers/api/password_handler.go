package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/peerloop/peerloop/internal/auth"
)

type PasswordHandler struct {
	authService *auth.Service
	debug       bool
}

func NewPasswordHandler(authService *auth.Service, debug bool) *PasswordHandler {
	return &PasswordHandler{
		authService: authService,
		debug:       debug,
	}
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type forgotPasswordResponse struct {
	Sent bool   `json:"sent"`
	Code string `json:"code,omitempty"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *PasswordHandler) PostForgotPassword(ctx *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	code, err := h.authService.RequestPasswordReset(ctx.Context(), req.Email, ctx.IP())
	if err != nil {
		return writeError(ctx, err)
	}
	resp := forgotPasswordResponse{Sent: true}
	if h.debug {
		resp.Code = code
	}
	return ctx.JSON(NewDataResponse(resp))
}

func (h *PasswordHandler) PostResetPassword(ctx *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := h.authService.ResetPassword(ctx.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"reset": true}))
}

func (h *PasswordHandler) PostChangePassword(ctx *fiber.Ctx) error {
	var req changePasswordRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := h.authService.ChangePassword(ctx.Context(), CurrentUserID(ctx), req.OldPassword, req.NewPassword); err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"changed": true}))
}

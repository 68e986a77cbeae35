package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/peerloop/peerloop/internal/token"
	"github.com/peerloop/peerloop/internal/twofactor"
)

type TwoFactorHandler struct {
	twoFactorService *twofactor.Service
	tokens           *token.Service
	debug            bool
}

func NewTwoFactorHandler(twoFactorService *twofactor.Service, tokens *token.Service, debug bool) *TwoFactorHandler {
	return &TwoFactorHandler{
		twoFactorService: twoFactorService,
		tokens:           tokens,
		debug:            debug,
	}
}

type totpSetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioningUri"`
}

type totpConfirmRequest struct {
	Code string `json:"code"`
}

type totpConfirmResponse struct {
	BackupCodes []string `json:"backupCodes"`
}

type challengeVerifyRequest struct {
	PendingToken string `json:"pendingToken"`
	Code         string `json:"code"`
}

type challengeVerifyResponse struct {
	Token string `json:"token"`
}

type emailRequestRequest struct {
	PendingToken string `json:"pendingToken"`
}

type emailRequestResponse struct {
	Sent bool   `json:"sent"`
	Code string `json:"code,omitempty"`
}

func (h *TwoFactorHandler) PostTOTPSetup(ctx *fiber.Ctx) error {
	enrollment, err := h.twoFactorService.InitSetup(ctx.Context(), CurrentUserID(ctx))
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(totpSetupResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
	}))
}

func (h *TwoFactorHandler) PostTOTPConfirm(ctx *fiber.Ctx) error {
	var req totpConfirmRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	backupCodes, err := h.twoFactorService.ConfirmSetup(ctx.Context(), CurrentUserID(ctx), req.Code)
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(totpConfirmResponse{BackupCodes: backupCodes}))
}

func (h *TwoFactorHandler) PostTwoFADisable(ctx *fiber.Ctx) error {
	if err := h.twoFactorService.Disable(ctx.Context(), CurrentUserID(ctx)); err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"disabled": true}))
}

// pendingUserID resolves the challenge subject without consuming the pending
// token; consumption happens inside the verification that succeeds.
func (h *TwoFactorHandler) pendingUserID(ctx *fiber.Ctx, pendingToken string) (uint, error) {
	claims, err := h.tokens.PeekPending(ctx.Context(), pendingToken)
	if err != nil {
		return 0, err
	}
	return claims.UserID()
}

func (h *TwoFactorHandler) PostTOTPVerify(ctx *fiber.Ctx) error {
	var req challengeVerifyRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	userID, err := h.pendingUserID(ctx, req.PendingToken)
	if err != nil {
		return writeError(ctx, err)
	}
	fullToken, err := h.twoFactorService.VerifyLogin(ctx.Context(), userID, req.PendingToken, req.Code)
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(challengeVerifyResponse{Token: fullToken}))
}

func (h *TwoFactorHandler) PostEmailRequest(ctx *fiber.Ctx) error {
	var req emailRequestRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	userID, err := h.pendingUserID(ctx, req.PendingToken)
	if err != nil {
		return writeError(ctx, err)
	}
	code, err := h.twoFactorService.RequestEmailCode(ctx.Context(), userID, req.PendingToken)
	if err != nil {
		return writeError(ctx, err)
	}
	resp := emailRequestResponse{Sent: true}
	if h.debug {
		resp.Code = code
	}
	return ctx.JSON(NewDataResponse(resp))
}

func (h *TwoFactorHandler) PostEmailVerify(ctx *fiber.Ctx) error {
	var req challengeVerifyRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	userID, err := h.pendingUserID(ctx, req.PendingToken)
	if err != nil {
		return writeError(ctx, err)
	}
	fullToken, err := h.twoFactorService.VerifyEmailCode(ctx.Context(), userID, req.PendingToken, req.Code)
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(challengeVerifyResponse{Token: fullToken}))
}

func (h *TwoFactorHandler) PostBackupVerify(ctx *fiber.Ctx) error {
	var req challengeVerifyRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	userID, err := h.pendingUserID(ctx, req.PendingToken)
	if err != nil {
		return writeError(ctx, err)
	}
	fullToken, err := h.twoFactorService.VerifyBackupCode(ctx.Context(), userID, req.PendingToken, req.Code)
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(challengeVerifyResponse{Token: fullToken}))
}

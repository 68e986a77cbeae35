package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/peerloop/peerloop/internal/auth"
	"github.com/peerloop/peerloop/internal/users"
	"github.com/peerloop/peerloop/model"
)

type AuthHandler struct {
	authService *auth.Service
	userService *users.UserService
}

func NewAuthHandler(authService *auth.Service, userService *users.UserService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
	}
}

func newUserInfo(user *model.User) UserInfoResponse {
	info := UserInfoResponse{
		UserID:       user.ID,
		Username:     user.Username,
		FullName:     user.FullName,
		Email:        user.Email,
		TwoFAEnabled: user.TwoFAEnabled,
	}
	if user.LastLoginAt != nil {
		info.LastLoginAt = user.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return info
}

type registerRequest struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	User         *UserInfoResponse `json:"user,omitempty"`
	Token        string            `json:"token,omitempty"`
	MFARequired  bool              `json:"mfaRequired,omitempty"`
	PendingToken string            `json:"pendingToken,omitempty"`
	EmailHint    string            `json:"emailHint,omitempty"`
}

func (h *AuthHandler) PostRegister(ctx *fiber.Ctx) error {
	var req registerRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	result, err := h.authService.Register(ctx.Context(), users.CreateUserOptions{
		Username: req.Username,
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	}, ctx.IP())
	if err != nil {
		return writeError(ctx, err)
	}
	userInfo := newUserInfo(result.User)
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(loginResponse{
		User:  &userInfo,
		Token: result.Token,
	}))
}

func (h *AuthHandler) PostLogin(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	result, err := h.authService.Login(ctx.Context(), req.Identifier, req.Password, ctx.IP())
	if err != nil {
		return writeError(ctx, err)
	}
	if result.MFARequired {
		return ctx.JSON(NewDataResponse(loginResponse{
			MFARequired:  true,
			PendingToken: result.PendingToken,
			EmailHint:    result.EmailHint,
		}))
	}
	userInfo := newUserInfo(result.User)
	return ctx.JSON(NewDataResponse(loginResponse{
		User:  &userInfo,
		Token: result.Token,
	}))
}

func (h *AuthHandler) GetProfile(ctx *fiber.Ctx) error {
	user, err := h.userService.GetUserByID(ctx.Context(), CurrentUserID(ctx))
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(newUserInfo(user)))
}

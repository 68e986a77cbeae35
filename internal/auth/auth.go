// Package auth implements the request-level login, registration and
// password-recovery state machines on top of the credential store, the rate
// limiter, the token service and the two-factor engine.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/peerloop/peerloop/internal/audit"
	"github.com/peerloop/peerloop/internal/mail"
	"github.com/peerloop/peerloop/internal/onetime"
	"github.com/peerloop/peerloop/internal/ratelimit"
	"github.com/peerloop/peerloop/internal/token"
	"github.com/peerloop/peerloop/internal/users"
	"github.com/peerloop/peerloop/model"
	"github.com/peerloop/peerloop/params"
)

type Service struct {
	debug      bool
	userSvc    *users.UserService
	tokens     *token.Service
	limiter    *ratelimit.Limiter
	codes      *onetime.Issuer
	mailSender mail.Sender
	recorder   *audit.Recorder
}

func NewService(
	debug bool,
	userSvc *users.UserService,
	tokens *token.Service,
	limiter *ratelimit.Limiter,
	codes *onetime.Issuer,
	mailSender mail.Sender,
	recorder *audit.Recorder,
) *Service {
	return &Service{
		debug:      debug,
		userSvc:    userSvc,
		tokens:     tokens,
		limiter:    limiter,
		codes:      codes,
		mailSender: mailSender,
		recorder:   recorder,
	}
}

// LoginResult is the outcome of a successful first factor. Either Token is
// set (login complete) or MFARequired is true and PendingToken must be
// redeemed through a second-factor verification.
type LoginResult struct {
	User         *model.User
	Token        string
	MFARequired  bool
	PendingToken string
	EmailHint    string
}

// maskEmail keeps just enough of the address for the user to recognize it.
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return email
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}

// Login verifies the first factor. clientKey identifies the caller for rate
// limiting (typically the remote address); it must never be empty.
func (s *Service) Login(ctx context.Context, identifier, password, clientKey string) (*LoginResult, error) {
	limitKey := users.Fold(identifier) + "|" + clientKey
	if !s.limiter.Allow(ctx, limitKey, "login", params.LoginMaxAttempts, params.LoginRateWindow) {
		return nil, &RateLimitedError{RetryAfter: params.LoginRateWindow}
	}

	user, err := s.userSvc.GetUserByIdentifier(ctx, identifier)
	if errors.Is(err, users.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.Disabled {
		return nil, ErrInvalidCredentials
	}
	if !s.userSvc.VerifyPassword(user, password) {
		s.recorder.Login(ctx, user.ID, clientKey, "password", false, "wrong password")
		return nil, ErrInvalidCredentials
	}

	if user.TwoFAEnabled {
		pendingToken, err := s.tokens.IssuePendingToken(user.ID)
		if err != nil {
			return nil, err
		}
		return &LoginResult{
			User:         user,
			MFARequired:  true,
			PendingToken: pendingToken,
			EmailHint:    maskEmail(user.Email),
		}, nil
	}

	fullToken, err := s.tokens.IssueFullToken(user.ID)
	if err != nil {
		return nil, err
	}
	s.recorder.Login(ctx, user.ID, clientKey, "password", true, "")
	if err := s.userSvc.TouchLastLogin(ctx, user.ID); err != nil {
		slog.Warn("Failed to update last login", "user", user.ID, "error", err)
	}
	return &LoginResult{User: user, Token: fullToken}, nil
}

type RegisterResult struct {
	User  *model.User
	Token string
}

// Register validates all field constraints before touching storage, then
// creates the account and issues a full token immediately; MFA can only be
// enrolled afterwards.
func (s *Service) Register(ctx context.Context, opts users.CreateUserOptions, clientKey string) (*RegisterResult, error) {
	if err := validateUsername(opts.Username); err != nil {
		return nil, err
	}
	if err := validateEmail(opts.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(opts.Password); err != nil {
		return nil, err
	}
	if err := validateFullName(opts.FullName); err != nil {
		return nil, err
	}
	if !s.limiter.Allow(ctx, clientKey, "register", params.RegisterMaxPerKey, params.RegisterWindow) {
		return nil, &RateLimitedError{RetryAfter: params.RegisterWindow}
	}

	user, err := s.userSvc.CreateUser(ctx, opts)
	if err != nil {
		return nil, err
	}
	fullToken, err := s.tokens.IssueFullToken(user.ID)
	if err != nil {
		return nil, err
	}
	s.recorder.Registered(ctx, user.ID, clientKey)
	return &RegisterResult{User: user, Token: fullToken}, nil
}

// RequestPasswordReset issues a reset code through the shared one-time-code
// primitive. An unknown email returns success without sending anything, so
// the endpoint cannot confirm which addresses exist. In debug mode the code
// is returned instead of sent.
func (s *Service) RequestPasswordReset(ctx context.Context, email string, clientKey string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", err
	}
	limitKey := users.Fold(email) + "|" + clientKey
	if !s.limiter.Allow(ctx, limitKey, "pw_reset_request", params.ResetCodeMaxSends, params.ResetCodeWindow) {
		return "", &RateLimitedError{RetryAfter: params.ResetCodeWindow}
	}

	user, err := s.userSvc.GetUserByEmail(ctx, email)
	if errors.Is(err, users.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	code, err := s.codes.Issue(ctx, onetime.ScopePasswordReset, onetime.SubjectKey(user.ID))
	if err != nil {
		return "", err
	}
	if s.debug {
		slog.Debug("Debug mode: returning reset code instead of sending", "user", user.ID)
		return code, nil
	}
	if err := mail.SendPasswordResetCode(s.mailSender, user.Email, code); err != nil {
		s.codes.Invalidate(ctx, onetime.ScopePasswordReset, onetime.SubjectKey(user.ID))
		slog.Error("Failed to send reset code", "user", user.ID, "error", err)
		return "", ErrSendFailed
	}
	return "", nil
}

// ResetPassword redeems a reset code and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.userSvc.GetUserByEmail(ctx, email)
	if errors.Is(err, users.ErrUserNotFound) {
		return ErrCodeInvalid
	}
	if err != nil {
		return err
	}
	if err := s.codes.Redeem(ctx, onetime.ScopePasswordReset, onetime.SubjectKey(user.ID), code); err != nil {
		return ErrCodeInvalid
	}
	if err := s.userSvc.UpdatePassword(ctx, user.ID, newPassword); err != nil {
		return err
	}
	s.recorder.PasswordReset(ctx, user.ID)
	return nil
}

// ChangePassword swaps the password for an authenticated user after
// re-verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.userSvc.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.userSvc.VerifyPassword(user, oldPassword) {
		return ErrInvalidCredentials
	}
	if err := s.userSvc.UpdatePassword(ctx, userID, newPassword); err != nil {
		return err
	}
	s.recorder.PasswordChanged(ctx, userID)
	return nil
}

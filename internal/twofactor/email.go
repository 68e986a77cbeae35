package twofactor

import (
	"context"
	"log/slog"

	"github.com/peerloop/peerloop/internal/audit"
	"github.com/peerloop/peerloop/internal/mail"
	"github.com/peerloop/peerloop/internal/onetime"
	"github.com/peerloop/peerloop/params"
)

// RequestEmailCode issues a one-time numeric code to the identity's email
// address as a fallback second factor. It requires a live pending token but
// does not consume it: the email code and a TOTP code stay available in
// parallel and whichever verifies first completes the login.
//
// In debug mode the code is returned instead of sent; the returned string is
// always empty in production.
func (s *Service) RequestEmailCode(ctx context.Context, userID uint, pendingToken string) (string, error) {
	claims, err := s.tokens.PeekPending(ctx, pendingToken)
	if err != nil {
		return "", err
	}
	tokenUserID, err := claims.UserID()
	if err != nil || tokenUserID != userID {
		return "", ErrCodeInvalid
	}

	subject := onetime.SubjectKey(userID)
	if !s.limiter.Allow(ctx, subject, "2fa_email_request", params.EmailCodeMaxSends, params.EmailCodeWindow) {
		return "", ErrRequestRateLimited
	}

	user, err := s.userSvc.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}

	code, err := s.codes.Issue(ctx, onetime.ScopeEmailLogin, subject)
	if err != nil {
		return "", err
	}

	if s.debug {
		slog.Debug("Debug mode: returning email code instead of sending", "user", userID)
		return code, nil
	}

	if err := mail.SendLoginCode(s.mailSender, user.Email, code); err != nil {
		// the code is not considered sent; drop it so a later resend attempt
		// cannot collide with a code the user never received
		s.codes.Invalidate(ctx, onetime.ScopeEmailLogin, subject)
		slog.Error("Failed to send login code", "user", userID, "error", err)
		return "", ErrSendFailed
	}
	return "", nil
}

// VerifyEmailCode redeems an email fallback code, consumes the pending token
// and issues a full token. Codes are single use.
func (s *Service) VerifyEmailCode(ctx context.Context, userID uint, pendingToken string, code string) (string, error) {
	claims, err := s.tokens.PeekPending(ctx, pendingToken)
	if err != nil {
		return "", err
	}
	if tokenUserID, err := claims.UserID(); err != nil || tokenUserID != userID {
		return "", ErrCodeInvalid
	}

	subject := onetime.SubjectKey(userID)
	if err := s.codes.Redeem(ctx, onetime.ScopeEmailLogin, subject, code); err != nil {
		s.recorder.TwoFA(ctx, userID, audit.ActionTwoFAFailed, "email_code", err.Error())
		return "", ErrCodeInvalid
	}
	if _, err := s.tokens.ConsumePending(ctx, pendingToken); err != nil {
		return "", err
	}
	return s.finishLogin(ctx, userID, "email_code")
}

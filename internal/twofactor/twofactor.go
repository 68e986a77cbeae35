// Package twofactor manages the second-factor challenge machinery: TOTP
// enrollment and login verification, the email one-time-code fallback and
// single-use backup codes. Per identity the factor state moves
// Disabled → PendingSetup → Enabled; per login the caller holds a pending
// token that exactly one successful verification consumes.
package twofactor

import (
	"context"

	"github.com/peerloop/peerloop/internal/audit"
	"github.com/peerloop/peerloop/internal/mail"
	"github.com/peerloop/peerloop/internal/onetime"
	"github.com/peerloop/peerloop/internal/ratelimit"
	"github.com/peerloop/peerloop/internal/store"
	"github.com/peerloop/peerloop/internal/token"
	"github.com/peerloop/peerloop/internal/users"
	"github.com/peerloop/peerloop/params"
)

type totpState struct {
	VerifiedWindow int64 `redis:"verified_window"`
}

type Service struct {
	masterKey  string
	issuer     string // TOTP provisioning issuer, the site name
	debug      bool   // debug mode returns codes instead of sending them
	userSvc    *users.UserService
	tokens     *token.Service
	codes      *onetime.Issuer
	limiter    *ratelimit.Limiter
	mailSender mail.Sender
	recorder   *audit.Recorder
	totpStates store.Store[totpState]
}

type Config struct {
	MasterKey string
	Issuer    string
	Debug     bool
}

func NewService(
	cfg Config,
	storage store.Storage,
	userSvc *users.UserService,
	tokens *token.Service,
	codes *onetime.Issuer,
	limiter *ratelimit.Limiter,
	mailSender mail.Sender,
	recorder *audit.Recorder,
) *Service {
	return &Service{
		masterKey:  cfg.MasterKey,
		issuer:     cfg.Issuer,
		debug:      cfg.Debug,
		userSvc:    userSvc,
		tokens:     tokens,
		codes:      codes,
		limiter:    limiter,
		mailSender: mailSender,
		recorder:   recorder,
		totpStates: store.New[totpState](storage, params.TOTPStateKeyPrefix),
	}
}

// IsEnabled reports whether the identity has an authoritative second factor.
func (s *Service) IsEnabled(ctx context.Context, userID uint) (bool, error) {
	user, err := s.userSvc.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.TwoFAEnabled, nil
}

// finishLogin converts a consumed pending challenge into a full token.
func (s *Service) finishLogin(ctx context.Context, userID uint, method string) (string, error) {
	fullToken, err := s.tokens.IssueFullToken(userID)
	if err != nil {
		return "", err
	}
	s.recorder.TwoFA(ctx, userID, audit.ActionTwoFAVerified, method, "")
	s.userSvc.TouchLastLogin(ctx, userID)
	return fullToken, nil
}

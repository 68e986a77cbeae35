package twofactor

import (
	"context"
	"strconv"
	"time"

	"github.com/peerloop/peerloop/internal/audit"
	"github.com/peerloop/peerloop/internal/common"
	"github.com/peerloop/peerloop/params"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Enrollment carries the material a user needs to add the account to an
// authenticator app.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
}

// InitSetup generates a fresh shared secret and stores it encrypted as
// pending. The secret only becomes authoritative after ConfirmSetup proves
// the authenticator was provisioned. Repeated calls replace the pending
// secret.
func (s *Service) InitSetup(ctx context.Context, userID uint) (*Enrollment, error) {
	user, err := s.userSvc.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: user.Email,
		Period:      params.TOTPPeriod,
	})
	if err != nil {
		return nil, err
	}

	encrypted, err := common.EncryptString(s.masterKey, key.Secret())
	if err != nil {
		return nil, err
	}
	if err := s.userSvc.SetPendingTOTPSecret(ctx, userID, encrypted); err != nil {
		return nil, err
	}
	return &Enrollment{Secret: key.Secret(), ProvisioningURI: key.URL()}, nil
}

// ConfirmSetup validates a code against the pending secret. On success the
// pending secret is promoted to authoritative, MFA is enabled and a fresh set
// of backup codes is generated. The plaintext backup codes are returned
// exactly once; only their hashes are stored.
func (s *Service) ConfirmSetup(ctx context.Context, userID uint, code string) ([]string, error) {
	user, err := s.userSvc.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFAPendingSecret == "" {
		return nil, ErrNoPendingSecret
	}
	secret, err := common.DecryptString(s.masterKey, user.TwoFAPendingSecret)
	if err != nil {
		return nil, err
	}
	if !s.validateTOTP(ctx, userID, secret, code) {
		return nil, ErrCodeInvalid
	}

	backupCodes, hashes, err := s.generateBackupCodes(userID)
	if err != nil {
		return nil, err
	}
	if err := s.userSvc.PromoteTOTPSecret(ctx, userID, user.TwoFAPendingSecret, hashes); err != nil {
		return nil, err
	}
	s.markWindowVerified(ctx, userID)
	s.recorder.TwoFA(ctx, userID, audit.ActionTwoFAEnabled, "totp", "")
	return backupCodes, nil
}

// Disable clears the secret, any pending secret and all backup code hashes.
// Disabling an already-disabled identity is a no-op.
func (s *Service) Disable(ctx context.Context, userID uint) error {
	if err := s.userSvc.ClearTwoFA(ctx, userID); err != nil {
		return err
	}
	s.totpStates.Delete(ctx, strconv.FormatUint(uint64(userID), 10))
	s.recorder.TwoFA(ctx, userID, audit.ActionTwoFADisabled, "totp", "")
	return nil
}

// VerifyLogin validates a TOTP code against the authoritative secret and,
// on success, consumes the pending token and issues a full token.
func (s *Service) VerifyLogin(ctx context.Context, userID uint, pendingToken string, code string) (string, error) {
	claims, err := s.tokens.PeekPending(ctx, pendingToken)
	if err != nil {
		return "", err
	}
	if tokenUserID, err := claims.UserID(); err != nil || tokenUserID != userID {
		return "", ErrCodeInvalid
	}

	user, err := s.userSvc.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if !user.TwoFAEnabled || user.TwoFASecret == "" {
		return "", ErrNotEnrolled
	}
	secret, err := common.DecryptString(s.masterKey, user.TwoFASecret)
	if err != nil {
		return "", err
	}
	if !s.validateTOTP(ctx, userID, secret, code) {
		s.recorder.TwoFA(ctx, userID, audit.ActionTwoFAFailed, "totp", "invalid code")
		return "", ErrCodeInvalid
	}
	if _, err := s.tokens.ConsumePending(ctx, pendingToken); err != nil {
		return "", err
	}
	s.markWindowVerified(ctx, userID)
	return s.finishLogin(ctx, userID, "totp")
}

// validateTOTP checks the code with one time-step of skew tolerance and
// refuses codes from a time window that already produced a successful
// verification, so an intercepted code cannot be replayed. It does not
// record the window itself; callers mark it with markWindowVerified once
// the whole verification has gone through.
func (s *Service) validateTOTP(ctx context.Context, userID uint, secret string, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    params.TOTPPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return false
	}
	stateKey := strconv.FormatUint(uint64(userID), 10)
	var state totpState
	if st, err := s.totpStates.Get(ctx, stateKey); err == nil {
		state = st
	}
	return time.Now().Unix()/params.TOTPPeriod > state.VerifiedWindow
}

// markWindowVerified burns the current time step. Deferred until token
// consumption and any credential mutation succeed, so a verification that
// fails further down does not lock the user out of their still-valid code.
func (s *Service) markWindowVerified(ctx context.Context, userID uint) {
	stateKey := strconv.FormatUint(uint64(userID), 10)
	s.totpStates.SetAttr(ctx, stateKey, "verified_window", time.Now().Unix()/params.TOTPPeriod)
}

package twofactor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/peerloop/peerloop/internal/audit"
	"github.com/peerloop/peerloop/internal/common"
	"github.com/peerloop/peerloop/params"
)

// generateBackupCodes returns N plaintext recovery codes and the JSON hash
// set that gets persisted in their place.
func (s *Service) generateBackupCodes(userID uint) ([]string, string, error) {
	codes := make([]string, 0, params.BackupCodeCount)
	hashes := make([]string, 0, params.BackupCodeCount)
	for i := 0; i < params.BackupCodeCount; i++ {
		raw, err := common.GenerateSecret(params.BackupCodeLength)
		if err != nil {
			return nil, "", err
		}
		// grouped for readability, stored hash covers the grouped form
		code := strings.ToLower(raw[:5] + "-" + raw[5:])
		codes = append(codes, code)
		hashes = append(hashes, common.CalculateHash(s.masterKey, userID, code))
	}
	blob, err := json.Marshal(hashes)
	if err != nil {
		return nil, "", err
	}
	return codes, string(blob), nil
}

// VerifyBackupCode redeems a recovery code in place of a TOTP code. Each
// code is checked against the stored hash set and removed on use, so the
// available set only ever shrinks until a new enrollment regenerates it.
func (s *Service) VerifyBackupCode(ctx context.Context, userID uint, pendingToken string, code string) (string, error) {
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
	if !user.TwoFAEnabled || user.BackupCodes == "" {
		return "", ErrNoBackupCodes
	}

	var hashes []string
	if err := json.Unmarshal([]byte(user.BackupCodes), &hashes); err != nil {
		return "", err
	}
	if len(hashes) == 0 {
		return "", ErrNoBackupCodes
	}

	candidate := common.CalculateHash(s.masterKey, userID, strings.ToLower(strings.TrimSpace(code)))
	matched := -1
	for i, h := range hashes {
		if common.ConstantTimeEquals(h, candidate) {
			matched = i
		}
	}
	if matched < 0 {
		s.recorder.TwoFA(ctx, userID, audit.ActionTwoFAFailed, "backup_code", "invalid code")
		return "", ErrCodeInvalid
	}

	remaining := append(hashes[:matched], hashes[matched+1:]...)
	blob, err := json.Marshal(remaining)
	if err != nil {
		return "", err
	}
	if err := s.userSvc.SetBackupCodes(ctx, userID, string(blob)); err != nil {
		return "", err
	}

	if _, err := s.tokens.ConsumePending(ctx, pendingToken); err != nil {
		return "", err
	}
	return s.finishLogin(ctx, userID, "backup_code")
}

package twofactor

import "errors"

var (
	ErrCodeInvalid        = errors.New("verification code invalid")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrNotEnrolled        = errors.New("TOTP not enrolled")
	ErrNoPendingSecret    = errors.New("no TOTP enrollment in progress")
	ErrAlreadyEnabled     = errors.New("two-factor already enabled")
	ErrRequestRateLimited = errors.New("code request rate limited")
	ErrSendFailed         = errors.New("failed to send verification code")
	ErrNoBackupCodes      = errors.New("no backup codes remaining")
)

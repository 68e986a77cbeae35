package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrInvalidCredentials is deliberately the same for an unknown
	// identifier and a wrong password, so the login surface cannot be used
	// to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSendFailed         = errors.New("failed to send notification")
	ErrCodeInvalid        = errors.New("code invalid or expired")
)

// ValidationError carries a message that is safe to surface verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RateLimitedError tells the caller when it is worth retrying.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter)
}

// RetryAfterSeconds renders the wait as a whole number of seconds for the
// Retry-After response header.
func (e *RateLimitedError) RetryAfterSeconds() string {
	secs := int(e.RetryAfter / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// Package onetime implements the generate-code → store-hash → verify-by-hash
// primitive shared by the email second factor and the password reset flow.
package onetime

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"strings"

	"github.com/peerloop/peerloop/internal/common"
	"github.com/peerloop/peerloop/internal/store"
	"github.com/peerloop/peerloop/params"
)

var (
	ErrCodeInvalid  = errors.New("code invalid or expired")
	ErrCodeAttempts = errors.New("too many code attempts")
)

// Scope separates independent code namespaces for the same subject.
type Scope string

const (
	ScopeEmailLogin    Scope = "2fa_email"
	ScopePasswordReset Scope = "pw_reset"
)

type record struct {
	Hash     string `redis:"hash"`
	Attempts int    `redis:"attempts"`
}

// Issuer stores only the HMAC of each issued code plus an expiry; the
// plaintext exists once, in the notification that delivers it.
type Issuer struct {
	masterKey string
	codes     store.Store[record]
}

func NewIssuer(masterKey string, storage store.Storage) *Issuer {
	return &Issuer{
		masterKey: masterKey,
		codes:     store.New[record](storage, params.OneTimeCodeKeyPrefix),
	}
}

func generateDigits(length int) string {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, _ := rand.Int(rand.Reader, ten)
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String()
}

func (i *Issuer) key(scope Scope, subject string) string {
	return string(scope) + ":" + subject
}

// Issue generates a fresh numeric code for (scope, subject), replacing any
// earlier one. Only the hash is persisted.
func (i *Issuer) Issue(ctx context.Context, scope Scope, subject string) (string, error) {
	code := generateDigits(params.OneTimeCodeLength)
	rec := record{Hash: common.CalculateHash(i.masterKey, string(scope), subject, code)}
	if err := i.codes.Set(ctx, i.key(scope, subject), rec, params.OneTimeCodeExpiration); err != nil {
		return "", err
	}
	return code, nil
}

// Redeem verifies the code against the stored hash and deletes it on
// success: each code is single use. A missing or expired record reports the
// same error as a wrong code.
func (i *Issuer) Redeem(ctx context.Context, scope Scope, subject string, code string) error {
	key := i.key(scope, subject)
	rec, err := i.codes.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return ErrCodeInvalid
	}
	if err != nil {
		return err
	}

	attempts, err := i.codes.IncrAttr(ctx, key, "attempts", 1)
	if err != nil {
		return err
	}
	if attempts > params.OneTimeCodeMaxAttempts {
		i.codes.Delete(ctx, key)
		return ErrCodeAttempts
	}

	expected := common.CalculateHash(i.masterKey, string(scope), subject, code)
	if !common.ConstantTimeEquals(rec.Hash, expected) {
		return ErrCodeInvalid
	}
	if err := i.codes.Delete(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// Invalidate drops any outstanding code for (scope, subject).
func (i *Issuer) Invalidate(ctx context.Context, scope Scope, subject string) {
	i.codes.Delete(ctx, i.key(scope, subject))
}

// SubjectKey builds the per-identity subject for a code namespace.
func SubjectKey(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

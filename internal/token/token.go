package token

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/peerloop/peerloop/internal/store"
	"github.com/peerloop/peerloop/params"
)

const (
	KindFull    = "full"
	KindPending = "pending-2fa"
)

var (
	ErrTokenInvalid  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token is expired")
	ErrTokenConsumed = errors.New("token already used")
	ErrWrongKind     = errors.New("wrong token kind")
)

// Claims is the payload carried by both token kinds. Full tokens are
// stateless: expiry is enforced purely from the embedded timestamp. Pending
// tokens additionally carry an ID so a successful second-factor redemption
// can mark them consumed.
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrTokenInvalid
	}
	return uint(id), nil
}

type consumedMark struct {
	RedeemedAt int64 `redis:"redeemed_at"`
}

// Service mints and verifies HMAC-signed identity tokens.
type Service struct {
	masterKey string
	consumed  store.Store[consumedMark]
	now       func() time.Time
}

func NewService(masterKey string, storage store.Storage) *Service {
	return &Service{
		masterKey: masterKey,
		consumed:  store.New[consumedMark](storage, params.ConsumedTokenKeyPrefix),
		now:       time.Now,
	}
}

func (s *Service) sign(userID uint, kind string, validity time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.masterKey))
}

// IssueFullToken signs a 7-day identity token.
func (s *Service) IssueFullToken(userID uint) (string, error) {
	return s.sign(userID, KindFull, params.FullTokenValidity)
}

// IssuePendingToken signs a short-lived token asserting that the first
// factor succeeded and a second factor is outstanding.
func (s *Service) IssuePendingToken(userID uint) (string, error) {
	return s.sign(userID, KindPending, params.PendingTokenValidity)
}

// Verify parses and validates a token of the expected kind. Invalid
// signatures, expiry and malformed payloads come back as errors; callers
// branch on the result rather than catching panics.
func (s *Service) Verify(tokenStr string, kind string) (*Claims, error) {
	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(s.masterKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	return &claims, nil
}

// VerifyFull validates a full identity token and returns the identity it
// asserts.
func (s *Service) VerifyFull(tokenStr string) (uint, error) {
	claims, err := s.Verify(tokenStr, KindFull)
	if err != nil {
		return 0, err
	}
	return claims.UserID()
}

// ConsumePending validates a pending token and atomically marks it used.
// The first redeemer wins; every later attempt gets ErrTokenConsumed. The
// consumption mark lives in the ephemeral store only until the token would
// have expired anyway.
func (s *Service) ConsumePending(ctx context.Context, tokenStr string) (*Claims, error) {
	claims, err := s.Verify(tokenStr, KindPending)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	n, err := s.consumed.IncrAttr(ctx, claims.ID, "n", 1)
	if err != nil {
		return nil, err
	}
	if n > 1 {
		return nil, ErrTokenConsumed
	}
	if claims.ExpiresAt != nil {
		s.consumed.Expire(ctx, claims.ID, claims.ExpiresAt.Time)
	}
	s.consumed.SetAttr(ctx, claims.ID, "redeemed_at", s.now().Unix())
	return claims, nil
}

// PeekPending validates a pending token without consuming it, for operations
// that only gate on "second factor outstanding" such as requesting an email
// fallback code.
func (s *Service) PeekPending(ctx context.Context, tokenStr string) (*Claims, error) {
	claims, err := s.Verify(tokenStr, KindPending)
	if err != nil {
		return nil, err
	}
	var n int64
	if err := s.consumed.GetAttr(ctx, claims.ID, "n", &n); err == nil && n > 0 {
		// a mark exists only once the token has been redeemed
		return nil, ErrTokenConsumed
	}
	return claims, nil
}

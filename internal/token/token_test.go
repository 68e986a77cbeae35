package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peerloop/peerloop/internal/store"
)

func newTestService() *Service {
	return NewService("test-master-key", store.NewMemoryStorage())
}

func TestFullTokenRoundTrip(t *testing.T) {
	svc := newTestService()

	tokenStr, err := svc.IssueFullToken(42)
	if err != nil {
		t.Fatalf("IssueFullToken failed: %v", err)
	}
	userID, err := svc.VerifyFull(tokenStr)
	if err != nil {
		t.Fatalf("VerifyFull failed: %v", err)
	}
	if userID != 42 {
		t.Fatalf("userID = %d, want 42", userID)
	}
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	svc := newTestService()

	pending, err := svc.IssuePendingToken(42)
	if err != nil {
		t.Fatalf("IssuePendingToken failed: %v", err)
	}
	if _, err := svc.VerifyFull(pending); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}

	full, err := svc.IssueFullToken(42)
	if err != nil {
		t.Fatalf("IssueFullToken failed: %v", err)
	}
	if _, err := svc.Verify(full, KindPending); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := newTestService()
	svc.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }

	tokenStr, err := svc.IssueFullToken(42)
	if err != nil {
		t.Fatalf("IssueFullToken failed: %v", err)
	}
	if _, err := svc.VerifyFull(tokenStr); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsForgedToken(t *testing.T) {
	svc := newTestService()
	other := NewService("another-key", store.NewMemoryStorage())

	tokenStr, err := other.IssueFullToken(42)
	if err != nil {
		t.Fatalf("IssueFullToken failed: %v", err)
	}
	if _, err := svc.VerifyFull(tokenStr); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestConsumePendingIsSingleUse(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	tokenStr, err := svc.IssuePendingToken(42)
	if err != nil {
		t.Fatalf("IssuePendingToken failed: %v", err)
	}

	claims, err := svc.ConsumePending(ctx, tokenStr)
	if err != nil {
		t.Fatalf("first ConsumePending failed: %v", err)
	}
	if userID, _ := claims.UserID(); userID != 42 {
		t.Fatalf("userID = %d, want 42", userID)
	}

	if _, err := svc.ConsumePending(ctx, tokenStr); !errors.Is(err, ErrTokenConsumed) {
		t.Fatalf("expected ErrTokenConsumed on replay, got %v", err)
	}
}

func TestPeekPendingDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	tokenStr, err := svc.IssuePendingToken(42)
	if err != nil {
		t.Fatalf("IssuePendingToken failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.PeekPending(ctx, tokenStr); err != nil {
			t.Fatalf("PeekPending failed: %v", err)
		}
	}
	if _, err := svc.ConsumePending(ctx, tokenStr); err != nil {
		t.Fatalf("ConsumePending after peeks failed: %v", err)
	}
	if _, err := svc.PeekPending(ctx, tokenStr); !errors.Is(err, ErrTokenConsumed) {
		t.Fatalf("expected ErrTokenConsumed after redemption, got %v", err)
	}
}

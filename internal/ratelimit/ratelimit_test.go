package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peerloop/peerloop/internal/store"
)

func TestAllowUpToMax(t *testing.T) {
	ctx := context.Background()
	limiter := New(store.NewMemoryStorage())

	for i := 0; i < 5; i++ {
		if !limiter.Allow(ctx, "1.2.3.4", "login", 5, time.Minute) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow(ctx, "1.2.3.4", "login", 5, time.Minute) {
		t.Fatal("request 6 should be denied")
	}
}

func TestIdentifiersAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := New(store.NewMemoryStorage())

	for i := 0; i < 3; i++ {
		limiter.Allow(ctx, "1.2.3.4", "login", 3, time.Minute)
	}
	if limiter.Allow(ctx, "1.2.3.4", "login", 3, time.Minute) {
		t.Fatal("exhausted identifier should be denied")
	}
	if !limiter.Allow(ctx, "5.6.7.8", "login", 3, time.Minute) {
		t.Fatal("fresh identifier should be allowed")
	}
}

func TestActionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := New(store.NewMemoryStorage())

	for i := 0; i < 3; i++ {
		limiter.Allow(ctx, "1.2.3.4", "login", 3, time.Minute)
	}
	if limiter.Allow(ctx, "1.2.3.4", "login", 3, time.Minute) {
		t.Fatal("exhausted action should be denied")
	}
	if !limiter.Allow(ctx, "1.2.3.4", "pw_reset_request", 3, time.Minute) {
		t.Fatal("other action should have its own window")
	}
}

func TestEmptyIdentifierDenied(t *testing.T) {
	limiter := New(store.NewMemoryStorage())
	if limiter.Allow(context.Background(), "", "login", 5, time.Minute) {
		t.Fatal("empty identifier should always be denied")
	}
}

func TestWindowReset(t *testing.T) {
	ctx := context.Background()
	limiter := New(store.NewMemoryStorage())

	window := 20 * time.Millisecond
	for i := 0; i < 2; i++ {
		limiter.Allow(ctx, "1.2.3.4", "login", 2, window)
	}
	if limiter.Allow(ctx, "1.2.3.4", "login", 2, window) {
		t.Fatal("should be denied inside the window")
	}

	time.Sleep(2 * window)
	if !limiter.Allow(ctx, "1.2.3.4", "login", 2, window) {
		t.Fatal("should be allowed again after the window expires")
	}
}

// brokenStorage fails every operation, standing in for an unreachable store.
type brokenStorage struct{}

var errStoreDown = errors.New("store down")

func (brokenStorage) Get(ctx context.Context, key string, val any) error { return errStoreDown }
func (brokenStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	return errStoreDown
}
func (brokenStorage) Delete(ctx context.Context, key string) error { return errStoreDown }
func (brokenStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	return errStoreDown
}
func (brokenStorage) SetAttr(ctx context.Context, key string, field string, val any) error {
	return errStoreDown
}
func (brokenStorage) GetAttr(ctx context.Context, key, field string, val any) error {
	return errStoreDown
}
func (brokenStorage) IncrAttr(ctx context.Context, key, field string, delta int64) (int64, error) {
	return 0, errStoreDown
}

func TestFailsOpenOnStoreError(t *testing.T) {
	limiter := New(brokenStorage{})
	for i := 0; i < 20; i++ {
		if !limiter.Allow(context.Background(), "1.2.3.4", "login", 5, time.Minute) {
			t.Fatal("limiter must fail open when the store is unreachable")
		}
	}
}

// expireFailsStorage counts but cannot anchor windows.
type expireFailsStorage struct {
	store.Storage
}

func (s expireFailsStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	return errStoreDown
}

func TestFailsOpenWhenWindowAnchoringFails(t *testing.T) {
	ctx := context.Background()
	limiter := New(expireFailsStorage{store.NewMemoryStorage()})

	// a counter that can never expire must not accumulate into a permanent
	// denial; every attempt is treated as the window's first
	for i := 0; i < 20; i++ {
		if !limiter.Allow(ctx, "1.2.3.4", "login", 5, time.Minute) {
			t.Fatalf("request %d denied by a window that cannot expire", i+1)
		}
	}
}

package settings

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/peerloop/peerloop/internal/audit"
	"github.com/peerloop/peerloop/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) (*Store, audit.Repository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	repo := audit.NewRepository(db)
	return NewStore(repo), repo
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestReadCurrentDefaults(t *testing.T) {
	store, _ := newTestStore(t)

	current, version, err := store.ReadCurrent(context.Background(), 42)
	if err != nil {
		t.Fatalf("ReadCurrent failed: %v", err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1 for a user who never wrote", version)
	}
	if current != Defaults() {
		t.Fatalf("got %+v, want defaults", current)
	}
}

func TestWriteMergesPatch(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	merged, version, err := store.Write(ctx, 42, Patch{
		Theme:              strPtr("dark"),
		EmailNotifications: boolPtr(false),
	}, 1)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if version != 2 {
		t.Fatalf("version = %d, want 2", version)
	}
	if merged.Theme != "dark" || merged.EmailNotifications {
		t.Fatalf("patch not applied: %+v", merged)
	}
	// untouched fields keep their defaults
	if merged.ReviewVisibility != "group" || merged.Locale != "en" {
		t.Fatalf("unpatched fields changed: %+v", merged)
	}

	current, readVersion, err := store.ReadCurrent(ctx, 42)
	if err != nil {
		t.Fatalf("ReadCurrent failed: %v", err)
	}
	if readVersion != 2 || current != merged {
		t.Fatalf("read back %+v at %d, want %+v at 2", current, readVersion, merged)
	}
}

func TestWriteRejectsInvalidValues(t *testing.T) {
	ctx := context.Background()
	store, repo := newTestStore(t)

	_, _, err := store.Write(ctx, 42, Patch{Theme: strPtr("neon")}, 1)
	if !errors.Is(err, ErrInvalidPatch) {
		t.Fatalf("expected ErrInvalidPatch, got %v", err)
	}
	_, _, err = store.Write(ctx, 42, Patch{ReviewVisibility: strPtr("secret")}, 1)
	if !errors.Is(err, ErrInvalidPatch) {
		t.Fatalf("expected ErrInvalidPatch, got %v", err)
	}

	// a rejected write must not appear in the event log
	if _, err := repo.LatestByAction(ctx, 42, audit.ActionSettingsUpdated); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("rejected write reached the log: %v", err)
	}
}

func TestWriteStaleBaseVersionConflicts(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if _, _, err := store.Write(ctx, 42, Patch{Theme: strPtr("dark")}, 1); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	// a second writer that read version 1 loses
	_, _, err := store.Write(ctx, 42, Patch{Theme: strPtr("light")}, 1)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Version != 2 {
		t.Fatalf("conflict reports version %d, want 2", conflict.Version)
	}
	if conflict.Current.Theme != "dark" {
		t.Fatalf("conflict must carry the winner's state, got %+v", conflict.Current)
	}

	// the losing patch must not have landed
	current, version, _ := store.ReadCurrent(ctx, 42)
	if version != 2 || current.Theme != "dark" {
		t.Fatalf("log corrupted by losing writer: %+v at %d", current, version)
	}
}

func TestWriteRaceArbitratedByVersionIndex(t *testing.T) {
	ctx := context.Background()
	store, repo := newTestStore(t)

	// simulate a writer that won the race between this writer's read and
	// append by planting version 2 directly
	details, _ := json.Marshal(snapshot{Version: 2, Settings: Defaults()})
	err := repo.AppendVersioned(ctx, &model.AuditEvent{
		UserID:  42,
		Action:  string(audit.ActionSettingsUpdated),
		Details: details,
	}, 2)
	if err != nil {
		t.Fatalf("AppendVersioned failed: %v", err)
	}

	_, _, err = store.Write(ctx, 42, Patch{Theme: strPtr("dark")}, 1)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Version != 2 {
		t.Fatalf("conflict reports version %d, want 2", conflict.Version)
	}
}

func TestWritesArePerUser(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if _, _, err := store.Write(ctx, 1, Patch{Theme: strPtr("dark")}, 1); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	current, version, err := store.ReadCurrent(ctx, 2)
	if err != nil {
		t.Fatalf("ReadCurrent failed: %v", err)
	}
	if version != 1 || current != Defaults() {
		t.Fatalf("user 2 sees user 1's settings: %+v at %d", current, version)
	}
}

func TestSettingsHistoryRetained(t *testing.T) {
	ctx := context.Background()
	store, repo := newTestStore(t)

	store.Write(ctx, 42, Patch{Theme: strPtr("dark")}, 1)
	store.Write(ctx, 42, Patch{Theme: strPtr("light")}, 2)

	events, err := repo.FindByUser(ctx, 42, 10)
	if err != nil {
		t.Fatalf("FindByUser failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want full history of 2", len(events))
	}
}

package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/peerloop/peerloop/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	// a second connection would get its own empty in-memory database
	sqlDB.SetMaxOpenConns(1)
	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	return db
}

func TestAppendAndLatestByAction(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))

	for _, detail := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		err := repo.Append(ctx, &model.AuditEvent{
			UserID:  42,
			Action:  string(ActionLoginSuccess),
			Details: []byte(detail),
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	event, err := repo.LatestByAction(ctx, 42, ActionLoginSuccess)
	if err != nil {
		t.Fatalf("LatestByAction failed: %v", err)
	}
	if string(event.Details) != `{"n":3}` {
		t.Fatalf("latest event details = %s, want the newest append", event.Details)
	}
}

func TestLatestByActionScopedToUserAndAction(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))

	repo.Append(ctx, &model.AuditEvent{UserID: 1, Action: string(ActionLoginSuccess)})
	repo.Append(ctx, &model.AuditEvent{UserID: 1, Action: string(ActionLoginFailure)})

	if _, err := repo.LatestByAction(ctx, 2, ActionLoginSuccess); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for other user, got %v", err)
	}
	event, err := repo.LatestByAction(ctx, 1, ActionLoginFailure)
	if err != nil {
		t.Fatalf("LatestByAction failed: %v", err)
	}
	if event.Action != string(ActionLoginFailure) {
		t.Fatalf("action = %s, want %s", event.Action, ActionLoginFailure)
	}
}

func TestAppendVersionedConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))

	first := &model.AuditEvent{UserID: 42, Action: string(ActionSettingsUpdated)}
	if err := repo.AppendVersioned(ctx, first, 2); err != nil {
		t.Fatalf("AppendVersioned failed: %v", err)
	}

	second := &model.AuditEvent{UserID: 42, Action: string(ActionSettingsUpdated)}
	if err := repo.AppendVersioned(ctx, second, 2); !errors.Is(err, ErrVersionTaken) {
		t.Fatalf("expected ErrVersionTaken, got %v", err)
	}

	// a different version and a different user both still append
	if err := repo.AppendVersioned(ctx, &model.AuditEvent{UserID: 42, Action: string(ActionSettingsUpdated)}, 3); err != nil {
		t.Fatalf("AppendVersioned with next version failed: %v", err)
	}
	if err := repo.AppendVersioned(ctx, &model.AuditEvent{UserID: 7, Action: string(ActionSettingsUpdated)}, 2); err != nil {
		t.Fatalf("AppendVersioned for other user failed: %v", err)
	}
}

func TestUnversionedAppendsNeverConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))

	// NULL versions are distinct, so the unique index must not collide
	for i := 0; i < 3; i++ {
		err := repo.Append(ctx, &model.AuditEvent{UserID: 42, Action: string(ActionLoginSuccess)})
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}
}

func TestFindByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))

	for i := 0; i < 5; i++ {
		repo.Append(ctx, &model.AuditEvent{UserID: 42, Action: string(ActionLoginSuccess)})
	}
	repo.Append(ctx, &model.AuditEvent{UserID: 7, Action: string(ActionLoginSuccess)})

	events, err := repo.FindByUser(ctx, 42, 3)
	if err != nil {
		t.Fatalf("FindByUser failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for _, event := range events {
		if event.UserID != 42 {
			t.Fatalf("event for user %d leaked into the result", event.UserID)
		}
	}
}

func TestRecorderSwallowsStoreFailure(t *testing.T) {
	// a recorder over a closed database must not propagate the error
	db := newTestDB(t)
	sqlDB, _ := db.DB()
	sqlDB.Close()

	recorder := NewRecorder(NewRepository(db))
	recorder.Login(context.Background(), 42, "1.2.3.4", "password", true, "")
}

// Package settings derives per-user settings from the append-only audit
// event log: the newest settings_updated event is the current state, and
// writes are guarded by an optimistic version check. The log doubles as
// audit history and versioned state store, which trades storage overhead for
// a simple write path and free history retention.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/peerloop/peerloop/internal/audit"
	"github.com/peerloop/peerloop/model"
	"gorm.io/gorm"
)

// Settings is the full settings document for one user.
type Settings struct {
	EmailNotifications bool   `json:"emailNotifications"`
	ReviewVisibility   string `json:"reviewVisibility"` // "group", "author", "everyone"
	Theme              string `json:"theme"`            // "system", "light", "dark"
	Locale             string `json:"locale"`
}

// Patch carries partial updates; nil fields keep their prior value.
type Patch struct {
	EmailNotifications *bool   `json:"emailNotifications"`
	ReviewVisibility   *string `json:"reviewVisibility"`
	Theme              *string `json:"theme"`
	Locale             *string `json:"locale"`
}

// Defaults is the settings document before any write, reported as version 1.
func Defaults() Settings {
	return Settings{
		EmailNotifications: true,
		ReviewVisibility:   "group",
		Theme:              "system",
		Locale:             "en",
	}
}

// ConflictError reports a stale base version and carries the authoritative
// state so the caller can merge and retry.
type ConflictError struct {
	Version uint
	Current Settings
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("settings version conflict, current version is %d", e.Version)
}

var validVisibility = map[string]bool{"group": true, "author": true, "everyone": true}
var validTheme = map[string]bool{"system": true, "light": true, "dark": true}

var ErrInvalidPatch = errors.New("invalid settings value")

// snapshot is the Details payload of a settings_updated event.
type snapshot struct {
	Version  uint     `json:"version"`
	Settings Settings `json:"settings"`
}

type Store struct {
	events audit.Repository
}

func NewStore(events audit.Repository) *Store {
	return &Store{events: events}
}

func (s *Store) current(ctx context.Context, userID uint) (Settings, uint, error) {
	event, err := s.events.LatestByAction(ctx, userID, audit.ActionSettingsUpdated)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Defaults(), 1, nil
	}
	if err != nil {
		return Settings{}, 0, err
	}
	var snap snapshot
	if err := json.Unmarshal(event.Details, &snap); err != nil {
		return Settings{}, 0, err
	}
	return snap.Settings, snap.Version, nil
}

// ReadCurrent resolves the most recent settings event, or the documented
// defaults at version 1 when the user has never written.
func (s *Store) ReadCurrent(ctx context.Context, userID uint) (Settings, uint, error) {
	return s.current(ctx, userID)
}

func applyPatch(base Settings, patch Patch) (Settings, error) {
	if patch.EmailNotifications != nil {
		base.EmailNotifications = *patch.EmailNotifications
	}
	if patch.ReviewVisibility != nil {
		if !validVisibility[*patch.ReviewVisibility] {
			return base, ErrInvalidPatch
		}
		base.ReviewVisibility = *patch.ReviewVisibility
	}
	if patch.Theme != nil {
		if !validTheme[*patch.Theme] {
			return base, ErrInvalidPatch
		}
		base.Theme = *patch.Theme
	}
	if patch.Locale != nil {
		base.Locale = *patch.Locale
	}
	return base, nil
}

// Write merges patch onto the current settings and appends the result as a
// new versioned event. A stale baseVersion returns ConflictError with the
// authoritative state and appends nothing. Two writers racing on the same
// base version are arbitrated by the event log's unique version constraint:
// exactly one append lands, the other observes a conflict.
func (s *Store) Write(ctx context.Context, userID uint, patch Patch, baseVersion uint) (Settings, uint, error) {
	current, version, err := s.current(ctx, userID)
	if err != nil {
		return Settings{}, 0, err
	}
	if baseVersion < version {
		return Settings{}, 0, &ConflictError{Version: version, Current: current}
	}

	merged, err := applyPatch(current, patch)
	if err != nil {
		return Settings{}, 0, err
	}

	newVersion := version + 1
	details, err := json.Marshal(snapshot{Version: newVersion, Settings: merged})
	if err != nil {
		return Settings{}, 0, err
	}
	event := &model.AuditEvent{
		UserID:  userID,
		Action:  string(audit.ActionSettingsUpdated),
		Details: details,
	}
	err = s.events.AppendVersioned(ctx, event, newVersion)
	if errors.Is(err, audit.ErrVersionTaken) {
		// lost the race; report whoever won as the authoritative state
		winner, winnerVersion, rerr := s.current(ctx, userID)
		if rerr != nil {
			return Settings{}, 0, rerr
		}
		return Settings{}, 0, &ConflictError{Version: winnerVersion, Current: winner}
	}
	if err != nil {
		return Settings{}, 0, err
	}
	return merged, newVersion, nil
}

package model

import "time"

// AuditEvent is append-only: rows are never updated or deleted. Besides the
// security trail it doubles as the event-sourced backing store for user
// settings, where the newest row of an action is the current state. Version
// is set only for versioned actions; the composite unique index turns a
// concurrent append of the same version into a constraint violation.
type AuditEvent struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	UserID       uint      `gorm:"not null;index:idx_audit_user_action,priority:1;uniqueIndex:idx_audit_version,priority:1"`
	Action       string    `gorm:"size:64;not null;index:idx_audit_user_action,priority:2;uniqueIndex:idx_audit_version,priority:2"`
	Version      *uint     `gorm:"uniqueIndex:idx_audit_version,priority:3"`
	ResourceType string    `gorm:"size:64"`
	ResourceID   string    `gorm:"size:64"`
	Details      []byte    `gorm:"type:json"`
	IP           string    `gorm:"size:45"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index"`
}

func (AuditEvent) TableName() string {
	return "audit"
}

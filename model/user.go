package model

import (
	"time"

	"gorm.io/gorm"
)

// User stores account credentials and second-factor material. Email and
// username are persisted case-folded; secrets are AES-GCM encrypted under the
// master key before they reach this struct.
type User struct {
	ID                 uint   `gorm:"primarykey"`
	Username           string `gorm:"uniqueIndex;size:32;not null"`
	FullName           string `gorm:"size:64;not null"`
	Email              string `gorm:"uniqueIndex;size:256;not null"`
	Password           string `gorm:"size:64;not null"`
	TwoFAEnabled       bool   `gorm:"default:false;not null"`
	TwoFASecret        string `gorm:"size:256"`  // encrypted authoritative TOTP secret
	TwoFAPendingSecret string `gorm:"size:256"`  // encrypted secret awaiting enrollment confirmation
	BackupCodes        string `gorm:"size:2048"` // JSON array of backup code hashes
	Disabled           bool   `gorm:"default:false;not null"`
	LastLoginAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          gorm.DeletedAt `gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == 0 {
		u.ID = GenerateID()
	}
	return nil
}

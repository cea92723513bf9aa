// Package domain defines the core persistence models for the application.
// ProcessedUpdate is the only GORM-mapped type: the bot keeps all complaint
// state in memory and uses the database solely to de-duplicate re-delivered
// transport updates.
package domain

import "time"

// ProcessedUpdate records that a transport update id has been handled. A
// re-delivered update with the same id is dropped until ExpiresAt.
type ProcessedUpdate struct {
	UpdateID  int64     `gorm:"primaryKey;autoIncrement:false"`
	Kind      string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (ProcessedUpdate) TableName() string { return "processed_updates" }

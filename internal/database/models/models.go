// Package models contains the database model definitions.
package models

import (
	"time"
)

// Setting is one persisted playback preference, stored as text.
// Table: settings
type Setting struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Key       string    `gorm:"column:key;uniqueIndex"`
	Value     string    `gorm:"column:value"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string { return "settings" }

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{&Setting{}}
}

package models

import "time"

// TrackedPackage is a user preference: whether detection runs for an app.
// Rows are hard-deleted so a removed package can be tracked again.
type TrackedPackage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PackageName string    `gorm:"not null;uniqueIndex" json:"package_name"`
	Label       string    `gorm:"not null;default:''" json:"label"`
	Enabled     bool      `gorm:"not null" json:"enabled"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

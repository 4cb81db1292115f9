package models

import "time"

// ActionLog records one corrective action. Only the package and outcome
// are stored, never anything observed on screen.
type ActionLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   string    `gorm:"not null;index" json:"session_id"`
	Timestamp   time.Time `gorm:"not null;index" json:"timestamp"`
	PackageName string    `gorm:"not null;index" json:"package_name"`
	Action      string    `gorm:"not null" json:"action"` // "back"
	Success     bool      `gorm:"not null" json:"success"`
	Platform    string    `gorm:"not null;default:''" json:"platform"` // "x11" or "replay"
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type PackageSummary struct {
	PackageName   string    `json:"package_name"`
	Label         string    `json:"label,omitempty"`
	TriggerCount  int       `json:"trigger_count"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	LastTriggered time.Time `json:"last_triggered"`
	Percentage    float64   `json:"percentage,omitempty"`
}

type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"` // "day", "week", "month"
}

type Report struct {
	Period        ReportPeriod     `json:"period"`
	Packages      []PackageSummary `json:"packages"`
	TotalTriggers int              `json:"total_triggers"`
	TotalFailed   int              `json:"total_failed"`
	Sessions      int              `json:"sessions"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// User represents an authenticated account.
type User struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	Password  string    `json:"-"`
	Timezone  string    `gorm:"type:varchar(64)" json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CalendarToken stores a user's external calendar OAuth credential.
type CalendarToken struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string    `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	AccessToken  string    `gorm:"type:text" json:"-"`
	RefreshToken string    `gorm:"type:text" json:"-"`
	TokenType    string    `gorm:"type:varchar(32)" json:"-"`
	Expiry       time.Time `json:"expiry"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Goal is a user objective to be decomposed into tasks and scheduled.
type Goal struct {
	ID           string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string `gorm:"type:uuid;index" json:"user_id"`
	Title        string `gorm:"type:text" json:"title"`
	CurrentLevel string `gorm:"type:varchar(64)" json:"current_level"`
	TargetLevel  string `gorm:"type:varchar(64)" json:"target_level"`
	Deadline     string `gorm:"type:varchar(32)" json:"deadline"`
	Complexity   int    `json:"complexity"`

	Tasks []GoalTask `gorm:"foreignKey:GoalID" json:"tasks,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GoalTask is one decomposed unit of work. Seq preserves the order the
// decomposition produced; the scheduler consumes tasks strictly in that
// order and never reorders or deduplicates them.
type GoalTask struct {
	ID            string  `gorm:"type:uuid;primaryKey" json:"id"`
	GoalID        string  `gorm:"type:uuid;index" json:"goal_id"`
	Seq           int64   `gorm:"index" json:"seq"`
	Description   string  `gorm:"type:text" json:"description"`
	DurationHours float64 `json:"duration_hours"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditLog records who did what, generated from bus events.
type AuditLog struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string         `gorm:"type:uuid;index" json:"user_id"`
	Action    string         `gorm:"type:varchar(64);index" json:"action"`
	Details   map[string]any `gorm:"type:jsonb;serializer:json" json:"details,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}

// All lists every model for migration.
func All() []any {
	return []any{
		&User{},
		&CalendarToken{},
		&Goal{},
		&GoalTask{},
		&AuditLog{},
	}
}

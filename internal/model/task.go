package model

import (
	"time"

	"gorm.io/gorm"
)

// TaskStatus is the lifecycle state of a todo.
type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusCompleted  TaskStatus = "COMPLETED"
)

// TaskPriority orders todos by urgency.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityUrgent TaskPriority = "URGENT"
)

// Task represents a single todo in the planner.
//
// ParentID is shared by subtasks and by instances spawned from a recurring
// origin; Generated tells the two apart.
type Task struct {
	ID                uint   `gorm:"primaryKey"`
	UserID            uint   `gorm:"index;not null"`
	CategoryID        *uint  `gorm:"index"`
	ParentID          *uint  `gorm:"index"`
	Title             string `gorm:"not null"`
	Description       string
	Status            TaskStatus   `gorm:"type:varchar(20);not null;default:PENDING;index"`
	Priority          TaskPriority `gorm:"type:varchar(20);not null;default:MEDIUM"`
	DueDate           *time.Time   `gorm:"index"`
	ReminderTime      *time.Time
	IsRecurring       bool `gorm:"default:false;index"`
	RecurrencePattern string
	RecurrenceEndDate *time.Time
	Generated         bool `gorm:"column:is_generated;default:false"`
	// LastGeneratedAt holds the due date of the newest instance spawned from
	// this origin. Only maintained when last-instance tracking is enabled.
	LastGeneratedAt *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidStatus reports whether s is one of the known statuses.
func ValidStatus(s TaskStatus) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ValidPriority reports whether p is one of the known priorities.
func ValidPriority(p TaskPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// BeforeSave keeps stored timestamps in UTC so SQLite's text comparison of
// dates stays chronological.
func (t *Task) BeforeSave(tx *gorm.DB) error {
	for _, ts := range []*time.Time{t.DueDate, t.ReminderTime, t.RecurrenceEndDate, t.LastGeneratedAt, t.CompletedAt} {
		if ts != nil {
			*ts = ts.UTC()
		}
	}
	return nil
}

package model

import "time"

// Reminder is a one-shot notification attached to a task.
type Reminder struct {
	ID        uint      `gorm:"primaryKey"`
	TaskID    uint      `gorm:"index;not null"`
	Task      Task      `gorm:"constraint:OnDelete:CASCADE"`
	RemindAt  time.Time `gorm:"index"`
	IsSent    bool      `gorm:"default:false;index"`
	CreatedAt time.Time
}

package model

import "time"

// User is a planner account keyed by Telegram identity. TelegramID is also the
// private chat that reminders and reports go to.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex;not null"`
	FirstName  string
	LastName   string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Tasks      []Task     `gorm:"foreignKey:UserID"`
	Categories []Category `gorm:"foreignKey:UserID"`
}

package recurrence

import (
	"time"

	"todo-planner/internal/model"
)

// NewInstance builds the task spawned from origin for the given due date.
// The result has no ID or timestamps; the store assigns those on insert.
// Priority is copied as is, so an empty one falls back to the column default.
func NewInstance(origin model.Task, due time.Time) model.Task {
	parentID := origin.ID
	dueDate := due

	instance := model.Task{
		UserID:            origin.UserID,
		CategoryID:        copyUint(origin.CategoryID),
		ParentID:          &parentID,
		Title:             origin.Title,
		Description:       origin.Description,
		Status:            model.StatusPending,
		Priority:          origin.Priority,
		DueDate:           &dueDate,
		IsRecurring:       origin.IsRecurring,
		RecurrencePattern: origin.RecurrencePattern,
		RecurrenceEndDate: copyTime(origin.RecurrenceEndDate),
		Generated:         true,
	}
	return instance
}

func copyUint(v *uint) *uint {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

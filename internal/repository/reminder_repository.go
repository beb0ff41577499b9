package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"todo-planner/internal/model"
)

// ReminderRepository stores one-shot reminders attached to tasks.
type ReminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

func (r *ReminderRepository) Create(ctx context.Context, reminder *model.Reminder) error {
	reminder.RemindAt = reminder.RemindAt.UTC()
	if err := r.db.WithContext(ctx).Omit("Task").Create(reminder).Error; err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

// ListDue returns unsent reminders at or before now, oldest first, with their
// task loaded.
func (r *ReminderRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]model.Reminder, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var reminders []model.Reminder
	if err := r.db.WithContext(ctx).Preload("Task").
		Where("is_sent = ? AND remind_at <= ?", false, now.UTC()).
		Order("remind_at ASC, id ASC").
		Limit(limit).
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return reminders, nil
}

func (r *ReminderRepository) ListByTask(ctx context.Context, taskID uint) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("remind_at ASC").Find(&reminders).Error; err != nil {
		return nil, err
	}
	return reminders, nil
}

func (r *ReminderRepository) MarkSent(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&model.Reminder{}).Where("id = ? AND is_sent = ?", id, false).Update("is_sent", true)
	if res.Error != nil {
		return fmt.Errorf("mark reminder sent: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

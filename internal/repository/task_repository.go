package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"todo-planner/internal/model"
)

// ErrOptimisticLock is returned when a guarded update finds the row changed
// underneath it.
var ErrOptimisticLock = errors.New("optimistic locking conflict")

const defaultListLimit = 50

// TaskFilter narrows ListFiltered. Zero values mean "no constraint".
type TaskFilter struct {
	Status       model.TaskStatus
	Priority     model.TaskPriority
	CategoryID   *uint
	Search       string
	DueFrom      *time.Time
	DueTo        *time.Time
	TopLevelOnly bool
	Limit        int
	Offset       int
}

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ListActiveOrRecurring returns open tasks plus every recurring task, soonest
// due first.
func (r *TaskRepository) ListActiveOrRecurring(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND (status <> ? OR is_recurring = ?)", userID, model.StatusCompleted, true).
		Order("due_date NULLS LAST, created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListFiltered returns one page of a user's tasks and the total match count.
func (r *TaskRepository) ListFiltered(ctx context.Context, userID uint, f TaskFilter) ([]model.Task, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Task{}).Where("user_id = ?", userID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	if f.DueFrom != nil {
		q = q.Where("due_date >= ?", f.DueFrom.UTC())
	}
	if f.DueTo != nil {
		q = q.Where("due_date <= ?", f.DueTo.UTC())
	}
	if f.TopLevelOnly {
		q = q.Where("parent_id IS NULL")
	}
	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		like := "%" + search + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var tasks []model.Task
	if err := q.Order("due_date NULLS LAST, id ASC").Limit(limit).Offset(offset).Find(&tasks).Error; err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, total, nil
}

func (r *TaskRepository) ListChildren(ctx context.Context, userID, parentID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND parent_id = ?", userID, parentID).
		Order("due_date NULLS LAST, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListOverdue returns pending tasks whose due date is before now.
func (r *TaskRepository) ListOverdue(ctx context.Context, userID uint, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND due_date IS NOT NULL AND due_date < ?", userID, model.StatusPending, now.UTC()).
		Order("due_date ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListCandidateRecurring returns recurring tasks whose recurrence has not
// ended at now. originsOnly drops instances spawned by earlier sweeps.
func (r *TaskRepository) ListCandidateRecurring(ctx context.Context, now time.Time, originsOnly bool) ([]model.Task, error) {
	q := r.db.WithContext(ctx).
		Where("is_recurring = ?", true).
		Where("(recurrence_end_date IS NULL OR recurrence_end_date > ?)", now.UTC())
	if originsOnly {
		q = q.Where("is_generated = ?", false)
	}

	var tasks []model.Task
	if err := q.Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list recurring candidates: %w", err)
	}
	return tasks, nil
}

// CreateGenerated inserts instance and records its due date as the origin's
// LastGeneratedAt in one transaction. The origin row must still carry the
// LastGeneratedAt value the caller read, otherwise ErrOptimisticLock is
// returned and nothing is written.
func (r *TaskRepository) CreateGenerated(ctx context.Context, instance *model.Task, origin model.Task) error {
	if instance.DueDate == nil {
		return fmt.Errorf("create generated task: instance has no due date")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&model.Task{}).Where("id = ?", origin.ID)
		if origin.LastGeneratedAt == nil {
			q = q.Where("last_generated_at IS NULL")
		} else {
			q = q.Where("last_generated_at = ?", origin.LastGeneratedAt.UTC())
		}

		res := q.Update("last_generated_at", instance.DueDate.UTC())
		if res.Error != nil {
			return fmt.Errorf("advance origin %d: %w", origin.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrOptimisticLock
		}

		if err := tx.Create(instance).Error; err != nil {
			return fmt.Errorf("create generated task: %w", err)
		}
		return nil
	})
}

// Update writes the editable fields of task. Owner and creation time are
// never touched.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	res := r.db.WithContext(ctx).Model(task).
		Select("title", "description", "status", "priority", "due_date", "reminder_time",
			"category_id", "is_recurring", "recurrence_pattern", "recurrence_end_date", "completed_at", "updated_at").
		Where("user_id = ?", task.UserID).
		Updates(task)
	if res.Error != nil {
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a task for the given user along with its reminders. Children
// (subtasks and generated instances) are detached, not removed.
func (r *TaskRepository) Delete(ctx context.Context, userID, taskID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND id = ?", userID, taskID).Delete(&model.Task{})
		if res.Error != nil {
			return fmt.Errorf("delete task: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("task_id = ?", taskID).Delete(&model.Reminder{}).Error; err != nil {
			return fmt.Errorf("delete reminders: %w", err)
		}
		if err := tx.Model(&model.Task{}).Where("parent_id = ?", taskID).Update("parent_id", nil).Error; err != nil {
			return fmt.Errorf("detach children: %w", err)
		}
		return nil
	})
}

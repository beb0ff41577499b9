package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"todo-planner/internal/model"
	"todo-planner/internal/recurrence"
	"todo-planner/internal/repository"
)

var (
	ErrTitleRequired   = errors.New("title is required")
	ErrInvalidStatus   = errors.New("invalid task status")
	ErrInvalidPriority = errors.New("invalid task priority")
	ErrInvalidRange    = errors.New("due range start is after its end")
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title             string
	Description       string
	Category          string
	Priority          model.TaskPriority
	DueDate           *time.Time
	ReminderTime      *time.Time
	IsRecurring       bool
	RecurrencePattern string
	RecurrenceEndDate *time.Time
}

// TaskUpdate carries a partial update. Nil fields are left alone.
type TaskUpdate struct {
	Title             *string
	Description       *string
	Category          *string
	Priority          *model.TaskPriority
	DueDate           *time.Time
	ClearDueDate      bool
	IsRecurring       *bool
	RecurrencePattern *string
	RecurrenceEndDate *time.Time
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo     *repository.TaskRepository
	categoryRepo *repository.CategoryRepository
	reminderRepo *repository.ReminderRepository
}

func NewTaskService(taskRepo *repository.TaskRepository, categoryRepo *repository.CategoryRepository, reminderRepo *repository.ReminderRepository) *TaskService {
	return &TaskService{taskRepo: taskRepo, categoryRepo: categoryRepo, reminderRepo: reminderRepo}
}

func (s *TaskService) CreateTask(ctx context.Context, user *model.User, input TaskInput) (*model.Task, error) {
	return s.create(ctx, user, nil, input)
}

// CreateSubtask adds a task under parentID. The subtask inherits the parent's
// category unless the input names one.
func (s *TaskService) CreateSubtask(ctx context.Context, user *model.User, parentID uint, input TaskInput) (*model.Task, error) {
	parent, err := s.taskRepo.FindByID(ctx, user.ID, parentID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, user, parent, input)
}

func (s *TaskService) create(ctx context.Context, user *model.User, parent *model.Task, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	priority := input.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !model.ValidPriority(priority) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, priority)
	}

	categoryID, err := s.resolveCategory(ctx, user, input.Category)
	if err != nil {
		return nil, err
	}

	task := model.Task{
		UserID:       user.ID,
		CategoryID:   categoryID,
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		Status:       model.StatusPending,
		Priority:     priority,
		DueDate:      input.DueDate,
		ReminderTime: input.ReminderTime,
		IsRecurring:  input.IsRecurring,
	}
	if parent != nil {
		task.ParentID = &parent.ID
		if task.CategoryID == nil {
			task.CategoryID = parent.CategoryID
		}
	}
	if input.IsRecurring {
		task.RecurrencePattern = normalizePattern(input.RecurrencePattern)
		task.RecurrenceEndDate = input.RecurrenceEndDate
	}

	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}

	if task.ReminderTime != nil {
		reminder := model.Reminder{TaskID: task.ID, RemindAt: *task.ReminderTime}
		if err := s.reminderRepo.Create(ctx, &reminder); err != nil {
			return nil, err
		}
	}

	return &task, nil
}

func (s *TaskService) GetTask(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	return s.taskRepo.FindByID(ctx, user.ID, taskID)
}

// ListActive returns open tasks plus recurring ones.
func (s *TaskService) ListActive(ctx context.Context, user *model.User) ([]model.Task, error) {
	return s.taskRepo.ListActiveOrRecurring(ctx, user.ID)
}

// ListTasks returns one page of the user's tasks and the total match count.
func (s *TaskService) ListTasks(ctx context.Context, user *model.User, filter repository.TaskFilter) ([]model.Task, int64, error) {
	if filter.Status != "" && !model.ValidStatus(filter.Status) {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}
	if filter.Priority != "" && !model.ValidPriority(filter.Priority) {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidPriority, filter.Priority)
	}
	return s.taskRepo.ListFiltered(ctx, user.ID, filter)
}

// ListByDueRange returns the user's tasks due within [from, to].
func (s *TaskService) ListByDueRange(ctx context.Context, user *model.User, from, to time.Time) ([]model.Task, error) {
	if from.After(to) {
		return nil, ErrInvalidRange
	}
	tasks, _, err := s.taskRepo.ListFiltered(ctx, user.ID, repository.TaskFilter{DueFrom: &from, DueTo: &to})
	return tasks, err
}

// ListOverdue returns pending tasks whose due date has passed.
func (s *TaskService) ListOverdue(ctx context.Context, user *model.User, now time.Time) ([]model.Task, error) {
	return s.taskRepo.ListOverdue(ctx, user.ID, now)
}

func (s *TaskService) ListSubtasks(ctx context.Context, user *model.User, parentID uint) ([]model.Task, error) {
	if _, err := s.taskRepo.FindByID(ctx, user.ID, parentID); err != nil {
		return nil, err
	}
	return s.taskRepo.ListChildren(ctx, user.ID, parentID)
}

// UpdateTask applies a partial update. The owner never changes.
func (s *TaskService) UpdateTask(ctx context.Context, user *model.User, taskID uint, upd TaskUpdate) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}
		task.Title = title
	}
	if upd.Description != nil {
		task.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Priority != nil {
		if !model.ValidPriority(*upd.Priority) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, *upd.Priority)
		}
		task.Priority = *upd.Priority
	}
	if upd.Category != nil {
		if task.CategoryID, err = s.resolveCategory(ctx, user, *upd.Category); err != nil {
			return nil, err
		}
	}
	switch {
	case upd.ClearDueDate:
		task.DueDate = nil
	case upd.DueDate != nil:
		task.DueDate = upd.DueDate
	}
	if upd.IsRecurring != nil {
		task.IsRecurring = *upd.IsRecurring
	}
	if upd.RecurrencePattern != nil {
		task.RecurrencePattern = normalizePattern(*upd.RecurrencePattern)
	}
	if upd.RecurrenceEndDate != nil {
		task.RecurrenceEndDate = upd.RecurrenceEndDate
	}

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// SetStatus moves a task to status. CompletedAt follows the COMPLETED state.
func (s *TaskService) SetStatus(ctx context.Context, user *model.User, taskID uint, status model.TaskStatus, at time.Time) (*model.Task, error) {
	if !model.ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}

	task.Status = status
	if status == model.StatusCompleted {
		completedAt := at
		task.CompletedAt = &completedAt
	} else {
		task.CompletedAt = nil
	}

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// CompleteTask marks a task as done. Recurring origins keep spawning
// instances; completion only closes this particular todo.
func (s *TaskService) CompleteTask(ctx context.Context, user *model.User, taskID uint, completedAt time.Time) (*model.Task, error) {
	return s.SetStatus(ctx, user, taskID, model.StatusCompleted, completedAt)
}

// DeleteTask removes a task and its reminders. Subtasks and generated
// instances stay, detached from it.
func (s *TaskService) DeleteTask(ctx context.Context, user *model.User, taskID uint) error {
	return s.taskRepo.Delete(ctx, user.ID, taskID)
}

func (s *TaskService) resolveCategory(ctx context.Context, user *model.User, name string) (*uint, error) {
	category, err := s.categoryRepo.GetOrCreate(ctx, user.ID, name)
	if err != nil || category == nil {
		return nil, err
	}
	return &category.ID, nil
}

// normalizePattern stores known patterns in canonical form. Anything else is
// kept verbatim and leaves the task inert.
func normalizePattern(raw string) string {
	if p := recurrence.ParsePattern(raw); p.Valid() {
		return p.String()
	}
	return strings.TrimSpace(raw)
}

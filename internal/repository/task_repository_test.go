package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"todo-planner/internal/model"
	"todo-planner/internal/repository"
	"todo-planner/internal/testutil"
)

func createTask(t *testing.T, repo *repository.TaskRepository, task model.Task) model.Task {
	t.Helper()
	if task.UserID == 0 {
		task.UserID = 1
	}
	if task.Title == "" {
		task.Title = "task"
	}
	require.NoError(t, repo.Create(context.Background(), &task))
	return task
}

func TestTaskRepository_CreateAssignsIdentityAndDefaults(t *testing.T) {
	repo := repository.NewTaskRepository(testutil.NewDB(t))

	task := createTask(t, repo, model.Task{Title: "Pay rent"})
	assert.NotZero(t, task.ID)
	assert.False(t, task.CreatedAt.IsZero())

	got, err := repo.FindByID(context.Background(), 1, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, model.PriorityMedium, got.Priority)

	_, err = repo.FindByID(context.Background(), 2, task.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestTaskRepository_ListCandidateRecurring(t *testing.T) {
	repo := repository.NewTaskRepository(testutil.NewDB(t))
	ctx := context.Background()
	now := testutil.Time("2024-01-01T00:00")

	unbounded := createTask(t, repo, model.Task{IsRecurring: true, RecurrencePattern: "DAILY"})
	future := createTask(t, repo, model.Task{IsRecurring: true, RecurrencePattern: "WEEKLY", RecurrenceEndDate: testutil.Ptr(testutil.Time("2024-06-01T00:00"))})
	createTask(t, repo, model.Task{IsRecurring: true, RecurrencePattern: "DAILY", RecurrenceEndDate: testutil.Ptr(testutil.Time("2023-12-31T00:00"))})
	createTask(t, repo, model.Task{IsRecurring: true, RecurrencePattern: "DAILY", RecurrenceEndDate: testutil.Ptr(now)})
	createTask(t, repo, model.Task{IsRecurring: false, RecurrencePattern: "DAILY"})
	inert := createTask(t, repo, model.Task{IsRecurring: true, RecurrencePattern: "BIWEEKLY"})
	generated := createTask(t, repo, model.Task{IsRecurring: true, RecurrencePattern: "DAILY", Generated: true})

	tasks, err := repo.ListCandidateRecurring(ctx, now, false)
	require.NoError(t, err)
	assert.Equal(t, []uint{unbounded.ID, future.ID, inert.ID, generated.ID}, ids(tasks))

	tasks, err = repo.ListCandidateRecurring(ctx, now, true)
	require.NoError(t, err)
	assert.Equal(t, []uint{unbounded.ID, future.ID, inert.ID}, ids(tasks))
}

func TestTaskRepository_CreateGeneratedAdvancesOrigin(t *testing.T) {
	repo := repository.NewTaskRepository(testutil.NewDB(t))
	ctx := context.Background()

	origin := createTask(t, repo, model.Task{IsRecurring: true, RecurrencePattern: "DAILY", DueDate: testutil.Ptr(testutil.Time("2024-01-01T09:00"))})

	first := model.Task{UserID: 1, Title: "task", ParentID: &origin.ID, Generated: true, DueDate: testutil.Ptr(testutil.Time("2024-01-02T09:00"))}
	require.NoError(t, repo.CreateGenerated(ctx, &first, origin))
	assert.NotZero(t, first.ID)

	stored, err := repo.FindByID(ctx, 1, origin.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastGeneratedAt)
	assert.True(t, stored.LastGeneratedAt.Equal(testutil.Time("2024-01-02T09:00")))

	// A second writer still holding the stale origin must lose.
	stale := model.Task{UserID: 1, Title: "task", ParentID: &origin.ID, Generated: true, DueDate: testutil.Ptr(testutil.Time("2024-01-02T09:00"))}
	err = repo.CreateGenerated(ctx, &stale, origin)
	assert.ErrorIs(t, err, repository.ErrOptimisticLock)
	assert.Zero(t, stale.ID)

	children, err := repo.ListChildren(ctx, 1, origin.ID)
	require.NoError(t, err)
	assert.Len(t, children, 1)

	// With the fresh row the next instance goes through.
	next := model.Task{UserID: 1, Title: "task", ParentID: &origin.ID, Generated: true, DueDate: testutil.Ptr(testutil.Time("2024-01-03T09:00"))}
	require.NoError(t, repo.CreateGenerated(ctx, &next, *stored))
}

func TestTaskRepository_ListFiltered(t *testing.T) {
	repo := repository.NewTaskRepository(testutil.NewDB(t))
	ctx := context.Background()
	categoryID := uint(5)

	a := createTask(t, repo, model.Task{Title: "Buy milk", Priority: model.PriorityHigh, DueDate: testutil.Ptr(testutil.Time("2024-01-03T10:00"))})
	b := createTask(t, repo, model.Task{Title: "Call mom", Description: "about the MILK", CategoryID: &categoryID, DueDate: testutil.Ptr(testutil.Time("2024-01-01T10:00"))})
	c := createTask(t, repo, model.Task{Title: "Write report", Status: model.StatusCompleted})
	createTask(t, repo, model.Task{UserID: 2, Title: "milk for someone else"})
	createTask(t, repo, model.Task{Title: "Subtask", ParentID: &a.ID})

	tasks, total, err := repo.ListFiltered(ctx, 1, repository.TaskFilter{Search: "milk"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, []uint{b.ID, a.ID}, ids(tasks))

	tasks, _, err = repo.ListFiltered(ctx, 1, repository.TaskFilter{Status: model.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, []uint{c.ID}, ids(tasks))

	tasks, _, err = repo.ListFiltered(ctx, 1, repository.TaskFilter{Priority: model.PriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID}, ids(tasks))

	tasks, _, err = repo.ListFiltered(ctx, 1, repository.TaskFilter{CategoryID: &categoryID})
	require.NoError(t, err)
	assert.Equal(t, []uint{b.ID}, ids(tasks))

	tasks, _, err = repo.ListFiltered(ctx, 1, repository.TaskFilter{
		DueFrom: testutil.Ptr(testutil.Time("2024-01-02T00:00")),
		DueTo:   testutil.Ptr(testutil.Time("2024-01-31T00:00")),
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID}, ids(tasks))

	tasks, total, err = repo.ListFiltered(ctx, 1, repository.TaskFilter{TopLevelOnly: true, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, []uint{a.ID, c.ID}, ids(tasks))
}

func TestTaskRepository_UpdateKeepsOwner(t *testing.T) {
	repo := repository.NewTaskRepository(testutil.NewDB(t))
	ctx := context.Background()

	task := createTask(t, repo, model.Task{Title: "Old"})
	task.Title = "New"
	task.Status = model.StatusInProgress

	require.NoError(t, repo.Update(ctx, &task))
	got, err := repo.FindByID(ctx, 1, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, model.StatusInProgress, got.Status)

	foreign := *got
	foreign.UserID = 2
	foreign.Title = "Hijacked"
	assert.ErrorIs(t, repo.Update(ctx, &foreign), gorm.ErrRecordNotFound)
}

func TestTaskRepository_DeleteDetachesChildren(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewTaskRepository(db)
	reminders := repository.NewReminderRepository(db)
	ctx := context.Background()

	parent := createTask(t, repo, model.Task{Title: "Parent"})
	child := createTask(t, repo, model.Task{Title: "Child", ParentID: &parent.ID})
	require.NoError(t, reminders.Create(ctx, &model.Reminder{TaskID: parent.ID, RemindAt: time.Now()}))

	require.NoError(t, repo.Delete(ctx, 1, parent.ID))
	assert.ErrorIs(t, repo.Delete(ctx, 1, parent.ID), gorm.ErrRecordNotFound)

	got, err := repo.FindByID(ctx, 1, child.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)

	left, err := reminders.ListByTask(ctx, parent.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestTaskRepository_ListOverdue(t *testing.T) {
	repo := repository.NewTaskRepository(testutil.NewDB(t))
	now := testutil.Time("2024-02-01T12:00")

	late := createTask(t, repo, model.Task{DueDate: testutil.Ptr(testutil.Time("2024-01-31T12:00"))})
	createTask(t, repo, model.Task{DueDate: testutil.Ptr(testutil.Time("2024-02-02T12:00"))})
	createTask(t, repo, model.Task{Status: model.StatusCompleted, DueDate: testutil.Ptr(testutil.Time("2024-01-01T12:00"))})
	createTask(t, repo, model.Task{})

	tasks, err := repo.ListOverdue(context.Background(), 1, now)
	require.NoError(t, err)
	assert.Equal(t, []uint{late.ID}, ids(tasks))
}

func ids(tasks []model.Task) []uint {
	out := make([]uint, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.ID)
	}
	return out
}

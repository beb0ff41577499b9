package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-planner/internal/model"
	"todo-planner/internal/repository"
	"todo-planner/internal/service"
	"todo-planner/internal/testutil"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		sweepAt, sweepTrackLast, sweepWorkers = "", false, 1
		for _, name := range []string{"at", "track-last", "workers"} {
			if f := sweepCmd.Flags().Lookup(name); f != nil {
				f.Changed = false
			}
		}
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planner.db")
	t.Setenv("DATABASE_URL", path)
	t.Setenv("LOG_LEVEL", "error")

	db, err := repository.NewDB(path, zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	origin := model.Task{
		UserID:            1,
		Title:             "Stand-up",
		DueDate:           testutil.Ptr(testutil.Time("2024-01-01T09:00")),
		IsRecurring:       true,
		RecurrencePattern: "DAILY",
	}
	require.NoError(t, repository.NewTaskRepository(db).Create(context.Background(), &origin))
	return path
}

func TestSweepCommand(t *testing.T) {
	seedDB(t)

	out, err := runCLI(t, "sweep", "--at", "2024-01-02T09:01:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "candidates=1 generated=1 skipped=0 failed=0")
	assert.Contains(t, out, `"Stand-up" from #1 due 2024-01-02T09:00:00Z`)
}

func TestSweepCommandTrackLast(t *testing.T) {
	seedDB(t)

	_, err := runCLI(t, "sweep", "--at", "2024-01-02T09:01:00Z", "--track-last")
	require.NoError(t, err)

	out, err := runCLI(t, "sweep", "--at", "2024-01-02T09:01:00Z", "--track-last")
	require.NoError(t, err)
	assert.Contains(t, out, "candidates=1 generated=0 skipped=1 failed=0")
}

func TestSweepJobRunsWholeCandidateSet(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewTaskRepository(testutil.NewDB(t))
	for i := 0; i < 3; i++ {
		origin := model.Task{
			UserID:            1,
			Title:             "Stand-up",
			DueDate:           testutil.Ptr(testutil.Time("2024-01-01T09:00")),
			IsRecurring:       true,
			RecurrencePattern: "DAILY",
		}
		require.NoError(t, repo.Create(ctx, &origin))
	}

	var notified int
	svc := service.NewRecurrenceService(repo, service.RecurrenceOptions{
		OnGenerated: func(context.Context, model.Task, model.Task) {
			time.Sleep(60 * time.Millisecond)
			notified++
		},
	}, zerolog.Nop())

	sweepJob(ctx, svc, func() time.Time { return testutil.Time("2024-01-02T09:01") })()

	assert.Equal(t, 3, notified)
	generated, err := repo.ListCandidateRecurring(ctx, testutil.Time("2024-01-02T09:01"), false)
	require.NoError(t, err)
	assert.Len(t, generated, 6)
}

func TestSweepCommandRejectsBadTime(t *testing.T) {
	seedDB(t)

	_, err := runCLI(t, "sweep", "--at", "yesterday")
	assert.ErrorContains(t, err, "invalid --at value")
}

func TestMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "planner.db")
	t.Setenv("DATABASE_URL", path)
	t.Setenv("LOG_LEVEL", "error")

	out, err := runCLI(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)
}

func TestServeRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")

	_, err := runCLI(t, "serve")
	assert.ErrorContains(t, err, "TELEGRAM_TOKEN")
}

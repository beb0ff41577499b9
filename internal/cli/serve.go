package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"todo-planner/internal/bot"
	"todo-planner/internal/repository"
	"todo-planner/internal/service"
)

// jobTimeout bounds the reminder and report jobs. The recurrence sweep has
// no deadline.
const jobTimeout = 5 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the background jobs",
	Long: `Starts the Telegram bot together with the recurrence sweep, reminder
dispatch and periodic report jobs. Runs until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireTelegram(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, closeDB, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB()

		userRepo := repository.NewUserRepository(db)
		categoryRepo := repository.NewCategoryRepository(db)
		taskRepo := repository.NewTaskRepository(db)
		reminderRepo := repository.NewReminderRepository(db)

		categorySvc := service.NewCategoryService(categoryRepo)
		taskSvc := service.NewTaskService(taskRepo, categoryRepo, reminderRepo)
		reminderSvc := service.NewReminderService(taskRepo, categoryRepo, reminderRepo, userRepo, logger)

		telegramBot, err := bot.New(cfg.TelegramToken, userRepo, categorySvc, taskSvc, reminderSvc, logger)
		if err != nil {
			return err
		}

		recurrenceSvc := service.NewRecurrenceService(taskRepo, service.RecurrenceOptions{
			Workers:            cfg.RecurrenceWorkers,
			TrackLastGenerated: cfg.RecurrenceTrackLast,
			OnGenerated:        reminderSvc.GeneratedHook(telegramBot),
		}, logger)

		scheduler := service.NewSchedulerService(time.Local, logger)
		if _, err := scheduler.ScheduleInterval(cfg.RecurrenceInterval, sweepJob(ctx, recurrenceSvc, time.Now)); err != nil {
			return err
		}

		if _, err := scheduler.ScheduleInterval(cfg.ReminderInterval, func() {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			if _, err := reminderSvc.DispatchDue(jobCtx, time.Now(), telegramBot); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("dispatch reminders")
			}
		}); err != nil {
			return err
		}

		reportJob := func() {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("send reports")
			}
		}
		if cfg.ReportAt != "" {
			_, err = scheduler.ScheduleDaily(cfg.ReportAt, reportJob)
		} else {
			_, err = scheduler.ScheduleInterval(cfg.ReportInterval, reportJob)
		}
		if err != nil {
			return err
		}

		scheduler.Start()
		defer scheduler.Stop()

		logger.Info().
			Dur("recurrence_interval", cfg.RecurrenceInterval).
			Bool("track_last", cfg.RecurrenceTrackLast).
			Int("workers", cfg.RecurrenceWorkers).
			Msg("planner started")
		if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

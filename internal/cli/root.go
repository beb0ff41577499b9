// Package cli wires the planner's commands together.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"todo-planner/internal/config"
	"todo-planner/internal/logging"
	"todo-planner/internal/repository"
)

var (
	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "planner",
	Short: "Todo planner with recurring tasks",
	Long: `planner keeps todos for Telegram users and spawns new instances of
recurring todos on a schedule.

Configuration comes from environment variables, optionally loaded from a
.env file in the working directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envErr := godotenv.Load()

		var err error
		if cfg, err = config.Load(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		logger = logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		if envErr != nil {
			logger.Debug().Msg(".env file not found, using environment variables")
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openDB() (*gorm.DB, func(), error) {
	db, err := repository.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, closeFn, nil
}

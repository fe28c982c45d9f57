package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tct123/open-source-habit-tracker-app/internal/calendar"
	"github.com/tct123/open-source-habit-tracker-app/internal/config"
	"github.com/tct123/open-source-habit-tracker-app/internal/database"
	"github.com/tct123/open-source-habit-tracker-app/internal/logging"
	"github.com/tct123/open-source-habit-tracker-app/internal/tracker"
)

var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "habits",
		Short:         "Habit tracker with a completion ledger and weekly heatmap cache",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(rebuildCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(backupCmd())
	rootCmd.AddCommand(restoreCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every subcommand starts from.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sql.DB
	tracker *tracker.Service
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	svc := tracker.New(db, calendar.New(nil, loc), logger)
	return &env{cfg: cfg, logger: logger, db: db, tracker: svc}, nil
}

func (e *env) Close() error {
	return e.db.Close()
}

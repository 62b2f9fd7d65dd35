package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
)

var sourceURL string

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply settlement database migrations",
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		return withMigrator(func(m *migrate.Migrate) error {
			if err := m.Up(); err != nil {
				if errors.Is(err, migrate.ErrNoChange) {
					logger.Info("No change: database is already up to date")
					return nil
				}
				return err
			}
			logger.Info("Migrations applied")
			return nil
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration",
	RunE: func(_ *cobra.Command, _ []string) error {
		return withMigrator(func(m *migrate.Migrate) error {
			if err := m.Steps(-1); err != nil {
				return err
			}
			logger.Info("Rolled back last migration")
			return nil
		})
	},
}

var gotoCmd = &cobra.Command{
	Use:   "goto N",
	Short: "Migrate up or down to version N",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withMigrator(func(m *migrate.Migrate) error {
			if err := m.Migrate(uint(version)); err != nil {
				if errors.Is(err, migrate.ErrNoChange) {
					logger.Info("No change: database is already at version", logger.Fields{"version": version})
					return nil
				}
				return err
			}
			logger.Info("Migrated to version", logger.Fields{"version": version})
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current migration version",
	RunE: func(_ *cobra.Command, _ []string) error {
		return withMigrator(func(m *migrate.Migrate) error {
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				logger.Info("No migrations have been applied")
				return nil
			}
			if err != nil {
				return err
			}
			logger.Info("Current migration version", logger.Fields{"version": version, "dirty": dirty})
			return nil
		})
	},
}

func withMigrator(fn func(m *migrate.Migrate) error) error {
	m, err := migrate.New(sourceURL, config.DatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to initialise migrations: %w", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			logger.Warn("Failed to close migration resources", logger.Fields{"source_error": fmt.Sprint(sourceErr), "db_error": fmt.Sprint(dbErr)})
		}
	}()
	return fn(m)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sourceURL, "source", "file://migrations", "migration source URL")
	rootCmd.AddCommand(upCmd, downCmd, gotoCmd, statusCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Migration command failed", logger.WithError(err))
		os.Exit(1)
	}
}

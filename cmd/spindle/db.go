package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spindlehq/spindle/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBDropCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Spindle database",
		Long:  "Creates the database if needed, migrates all tables, and seeds the starter circle and board.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "spindle.yaml", "path to Spindle config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}

	if cfg.Database.Driver == "mysql" {
		adminDB, err := db.ConnectAdmin(cfg.Database)
		if err != nil {
			return err
		}
		if err := db.CreateDatabase(adminDB, cfg.Database.Database); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", cfg.Database.Database)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.Seed(gormDB); err != nil {
		return err
	}
	fmt.Fprintln(out, "Seeded starter circle and board")

	fmt.Fprintln(out, "\nSpindle database initialized successfully.")
	return nil
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigOrDefault(configPath)
			if err != nil {
				return err
			}
			gormDB, err := db.Connect(cfg.Database)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(db.AllModels()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "spindle.yaml", "path to Spindle config file")
	return cmd
}

func newDBDropCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop the Spindle database",
		Long:  "Drops the MySQL database, or deletes the sqlite file. Requires --yes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBDrop(cmd, configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "spindle.yaml", "path to Spindle config file")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the drop")
	return cmd
}

func runDBDrop(cmd *cobra.Command, configPath string, yes bool) error {
	if !yes {
		return fmt.Errorf("refusing to drop without --yes")
	}

	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch cfg.Database.Driver {
	case "sqlite":
		if err := os.Remove(cfg.Database.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", cfg.Database.Path, err)
		}
		fmt.Fprintf(out, "Removed %s\n", cfg.Database.Path)
	case "mysql":
		adminDB, err := db.ConnectAdmin(cfg.Database)
		if err != nil {
			return err
		}
		if err := db.DropDatabase(adminDB, cfg.Database.Database); err != nil {
			return err
		}
		fmt.Fprintf(out, "Dropped database %s\n", cfg.Database.Database)
	}
	return nil
}

package main

import (
	"database/sql"
	"fmt"
	"os"

	"LendLedger/internal/config"
	"LendLedger/internal/persistence"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

const (
	dsnKey = "dsn"
	dirKey = "dir"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	defaults := config.Default()
	if cfg, err := config.Load(os.Getenv("LEND_CONFIG")); err == nil {
		defaults = cfg
	}

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Applies or rolls back the LendLedger SQL schema",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.String(dsnKey, defaults.PostgresDSN, "Postgres connection string (LEND_POSTGRES_DSN)")
	flags.String(dirKey, defaults.MigrationsDir, "Directory holding *.up.sql / *.down.sql files (LEND_MIGRATIONS_DIR)")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(c *cobra.Command, m *persistence.Migrator) error {
				if err := m.Up(c.Context()); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				fmt.Fprintln(c.OutOrStdout(), "all migrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last applied migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(c *cobra.Command, m *persistence.Migrator) error {
				if err := m.Down(c.Context()); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				fmt.Fprintln(c.OutOrStdout(), "last migration rolled back")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "pending",
			Short: "List migrations not yet applied",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(c *cobra.Command, m *persistence.Migrator) error {
				pending, err := m.Pending(c.Context())
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(c.OutOrStdout(), "schema is up to date")
					return nil
				}
				for _, name := range pending {
					fmt.Fprintln(c.OutOrStdout(), name)
				}
				return nil
			}),
		},
	)
	return root
}

func withMigrator(fn func(*cobra.Command, *persistence.Migrator) error) func(*cobra.Command, []string) error {
	return func(c *cobra.Command, _ []string) error {
		dsn, err := c.Flags().GetString(dsnKey)
		if err != nil {
			return err
		}
		dir, err := c.Flags().GetString(dirKey)
		if err != nil {
			return err
		}

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(c.Context()); err != nil {
			return fmt.Errorf("ping db: %w", err)
		}

		return fn(c, persistence.NewMigrator(db, dir))
	}
}

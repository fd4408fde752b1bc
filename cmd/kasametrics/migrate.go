package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nerrad567/kasametrics/internal/infrastructure/config"
)

// Actions accepted by the migrate subcommand.
const (
	migrateUp     = "up"
	migrateDown   = "down"
	migrateStatus = "status"
)

// migrate applies or reverts history schema migrations, then prints the
// resulting status. Nothing but the history database is touched.
func migrate(ctx context.Context, out io.Writer, cfgPath, action string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.History.Enabled {
		return errors.New("history is disabled in configuration")
	}

	db, err := openHistoryDB(ctx, cfg.History)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	switch action {
	case migrateUp:
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running history migrations: %w", err)
		}
	case migrateDown:
		if err := db.MigrateDown(ctx); err != nil {
			return fmt.Errorf("reverting history migration: %w", err)
		}
	case migrateStatus:
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	fmt.Fprintf(out, "database: %s\n\n", cfg.History.Path)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT")
	for _, r := range applied {
		fmt.Fprintf(tw, "%s\tapplied\t%s\n", r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range pending {
		fmt.Fprintf(tw, "%s\tpending (%s)\t-\n", m.Version, m.Name)
	}
	return tw.Flush()
}

// Package database provides the SQLite handle behind the cycle history.
//
// The handle is opened with a single connection (SQLite allows one writer),
// optional WAL mode and a busy timeout. Schema changes live as embedded
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql files applied by Migrate.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.History.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database

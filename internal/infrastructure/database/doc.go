// Package database provides the SQLite store behind keymux's device
// session history.
//
// The store is optional: with database.enabled false nothing is opened and
// sessions are not recorded.
//
// Migrations are pairs of files named YYYYMMDD_HHMMSS_description.up.sql
// and .down.sql. The migrations package embeds them and registers the
// embedded FS as Migrations; applied versions are tracked in the
// schema_migrations table.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database

// Package database provides the SQLite persistence layer for fanlink.
//
// It wraps database/sql with the mattn/go-sqlite3 driver, configures
// WAL mode and busy timeouts, and applies embedded SQL migrations at
// startup. fanlink stores two things: the last accepted fan state
// (restored on restart) and a log of transmission outcomes.
//
// Lifecycle:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/fanlink.db"})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database

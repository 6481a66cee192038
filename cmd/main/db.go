package main

import (
	"database/sql"
	"fmt"
)

// initDB opens the sqlite database and creates the auth, stats and
// exclusion tables. The driver depends on the cgo_sqlite build tag.
func initDB(dataSource string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriver, dataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database exists only on the connection that created it.
	db.SetMaxOpenConns(1)

	setup := []struct {
		name string
		fn   func(*sql.DB) error
	}{
		{"pragmas", setupPragmas},
		{"auth", setupAuthSchema},
		{"stats", setupStatsSchema},
		{"exclusions", setupExclusionSchema},
	}
	for _, s := range setup {
		if err = s.fn(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to setup %s schema: %w", s.name, err)
		}
	}
	return db, nil
}

func setupPragmas(db *sql.DB) error {
	_, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`)
	return err
}

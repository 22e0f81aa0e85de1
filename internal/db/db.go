// Package db records the step history of the clustering session in an
// in-memory SQLite database. Nothing is written to disk, so the history is
// lost when the process exits.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/kmeans.visualiser/internal/monitoring"
	"github.com/banshee-data/kmeans.visualiser/internal/timeutil"
)

type DB struct {
	*sql.DB
	name  string
	clock timeutil.Clock
}

// NewMemoryDB opens a private in-memory database and applies the schema
// migrations. Each call gets its own database.
func NewMemoryDB() (*DB, error) {
	name := "kmeans-" + uuid.New().String()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// The in-memory database lives only as long as a connection holds it
	// open, so pin the pool to a single connection that never expires.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := &DB{DB: sqlDB, name: name, clock: timeutil.RealClock{}}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// SetClock replaces the clock used to stamp records that arrive without a
// timestamp.
func (db *DB) SetClock(c timeutil.Clock) {
	db.clock = c
}

// Name returns the in-memory database name.
func (db *DB) Name() string {
	return db.name
}

// AttachAdminRoutes mounts the step history debug pages and the tailsql
// console for the history database under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("history-stats", "Row counts of the step history tables", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.Stats()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to read stats: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "lineages: %d\nsteps: %d\n", stats.Lineages, stats.Steps)
	}))

	debug.Handle("history-export", "Download every lineage and its steps as JSON", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		export, err := db.Export()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to export history: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=kmeans-history-%d.json", db.clock.Now().Unix()))
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(export); err != nil {
			monitoring.Logf("failed to write history export: %v", err)
		}
	}))

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://"+db.name, db.DB, &tailsql.DBOptions{
		Label: "k-means step history",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
}

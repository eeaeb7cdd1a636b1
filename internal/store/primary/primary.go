package primary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// StoreImpl implements the store.RunStore interface on PostgreSQL or SQLite.
type StoreImpl struct {
	db     *sql.DB
	driver string
}

// DriverFor picks the database/sql driver from the DSN: postgres URLs go through pgx,
// anything else is a SQLite path.
func DriverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx"
	}
	return "sqlite3"
}

// NewPrimaryStore opens the run-history database and creates its schema.
func NewPrimaryStore(ctx context.Context, dsn string) (*StoreImpl, error) {
	if dsn == "" {
		return nil, errors.New("database DSN cannot be empty")
	}
	driver := DriverFor(dsn)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	if driver == "sqlite3" {
		// One writer; also keeps ":memory:" databases on a single connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	s := &StoreImpl{db: db, driver: driver}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to create schema: %w", err)
	}
	return s, nil
}

// Ping checks the database connection.
func (s *StoreImpl) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *StoreImpl) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *StoreImpl) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bulk_runs (
		  run_id TEXT PRIMARY KEY,
		  job_id TEXT NOT NULL DEFAULT '',
		  object TEXT NOT NULL,
		  operation TEXT NOT NULL,
		  data_source_path TEXT NOT NULL,
		  data_source_size BIGINT NOT NULL DEFAULT 0,
		  upload_status TEXT NOT NULL,
		  job_state TEXT NOT NULL DEFAULT '',
		  records_processed BIGINT NOT NULL DEFAULT 0,
		  records_failed BIGINT NOT NULL DEFAULT 0,
		  successful_results INTEGER NOT NULL DEFAULT 0,
		  failed_results INTEGER NOT NULL DEFAULT 0,
		  successful_results_path TEXT NOT NULL DEFAULT '',
		  failed_results_path TEXT NOT NULL DEFAULT '',
		  warnings TEXT NOT NULL DEFAULT '',
		  error TEXT NOT NULL DEFAULT '',
		  created_at TIMESTAMP NOT NULL,
		  updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bulk_runs_job_id ON bulk_runs (job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bulk_runs_created_at ON bulk_runs (created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

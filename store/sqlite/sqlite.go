/*
Package sqlite provides a SQLite-backed implementation of the scheduling
store interfaces.

PURPOSE:
  Durable storage for the maintenance engine. Implements scheduling.Store:
  the resource directory, the interval index, maintenance requests and the
  append-only audit trail, all in one database file.

INTERFACES IMPLEMENTED:
  scheduling.Directory / DirectoryWriter: directory.go
  scheduling.IntervalIndex:               bookings.go
  scheduling.RequestStore:                requests.go
  scheduling.AuditLog:                    requests.go

APPEND-ONLY ENFORCEMENT:
  work_logs and reassignment_events are only ever INSERTed. Reset is the one
  path that deletes them.

KEY TABLES:
  bookings:             Interval index rows (resource, [start_at, end_at))
  maintenance_requests: Request rows with their booking ids
  work_logs:            Technician timeline per request
  reassignment_events:  Applied and rejected reassignment attempts

CONCURRENCY:
  A sync.RWMutex serializes writers in-process, and Reserve additionally runs
  its overlap query and insert inside one IMMEDIATE transaction so a second
  process sharing the file cannot interleave with it.

TIME FORMAT:
  Instants are stored as fixed-width UTC text (timeLayout) so that string
  comparison in SQL matches chronological order.

MIGRATION:
  Schema is versioned with goose; migrations/*.sql are embedded and applied
  on New().

USAGE:
  store, err := sqlite.New("./data/gearguard.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  manager := scheduling.NewManager(store)

SEE ALSO:
  - scheduling/store.go: Interface definitions
  - scheduling/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/gearguard/maintenance-engine/scheduling"
)

//go:embed migrations/*.sql
var migrations embed.FS

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements scheduling.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ scheduling.Store = (*Store)(nil)

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, sub)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"reassignment_events", "work_logs", "bookings", "maintenance_requests", "request_sequence",
		"team_members", "teams", "users", "work_centers", "equipment", "equipment_categories",
		"departments", "companies", "sqlite_sequence",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullID[T ~int64](p *T) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func idPtr[T ~int64](n sql.NullInt64) *T {
	if !n.Valid {
		return nil
	}
	v := T(n.Int64)
	return &v
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

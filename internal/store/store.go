package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// maxVariables bounds the placeholders in one IN (...) query, below
// SQLite's default limit of 999.
const maxVariables = 500

// setting is a connection pragma applied on every open. want is the value
// SQLite reports back once the pragma took effect.
type setting struct {
	name  string
	value string
	want  string
}

var settings = []setting{
	{name: "journal_mode", value: "WAL", want: "wal"},
	{name: "synchronous", value: "NORMAL", want: "1"},
	{name: "busy_timeout", value: "5000", want: "5000"},
}

// migration moves the schema up one user_version.
type migration struct {
	name string
	stmt string
}

// migrations[i] takes a database from user_version i to i+1. The schema
// version is the length of this list; append, never reorder.
var migrations = []migration{
	{
		name: "index sessions by solution",
		stmt: `CREATE INDEX IF NOT EXISTS idx_sync_sessions_solution_seq
		       ON sync_sessions(solution, seq)`,
	},
}

func schemaVersion() int { return len(migrations) }

// Store provides durable storage for synchronized assets.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path, configures the
// connection and brings the schema up to date. Opening an existing
// database is a no-op beyond the pragmas.
func Open(path string) (*Store, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext is Open with a context bounding setup.
func OpenContext(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	for _, step := range []struct {
		what string
		run  func(context.Context) error
	}{
		{"connect", func(ctx context.Context) error { return db.PingContext(ctx) }},
		{"configure", s.configure},
		{"create schema", s.createSchema},
		{"migrate", s.migrate},
	} {
		if err := step.run(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s %s: %w", step.what, path, err)
		}
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) configure(ctx context.Context) error {
	for _, p := range settings {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// migrate runs every migration above the stored user_version, each in its
// own transaction together with the version bump.
func (s *Store) migrate(ctx context.Context) error {
	v, err := s.pragma(ctx, "user_version")
	if err != nil {
		return err
	}
	var from int
	if _, err := fmt.Sscan(v, &from); err != nil {
		return fmt.Errorf("user_version %q: %w", v, err)
	}
	if from > schemaVersion() {
		return fmt.Errorf("schema version %d is newer than supported version %d", from, schemaVersion())
	}
	for i := from; i < schemaVersion(); i++ {
		if err := s.step(ctx, i); err != nil {
			return fmt.Errorf("v%d (%s): %w", i+1, migrations[i].name, err)
		}
	}
	return nil
}

func (s *Store) step(ctx context.Context, i int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migrations[i].stmt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
		return err
	}
	return tx.Commit()
}

// pragma reads the current value of a pragma as SQLite reports it.
func (s *Store) pragma(ctx context.Context, name string) (string, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return strings.ToLower(value), nil
}

// Package sqlite implements the document store on an embedded SQLite database
// through the pure-Go modernc driver. It suits single-node deployments and
// integration tests that need real SQL semantics without a server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/alem-hub/community-rankings/internal/domain/store"
	"github.com/alem-hub/community-rankings/internal/infrastructure/persistence/sqldoc"
	"github.com/alem-hub/community-rankings/pkg/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	data       TEXT    NOT NULL CHECK (json_valid(data)),
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents (collection);
`

// Store is a store.DocumentStore backed by SQLite.
type Store struct {
	db      *sql.DB
	retrier *retry.Retrier
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" opens a private in-memory database on a single connection.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	inMemory := path == ":memory:"
	if !inMemory {
		path = filepath.Clean(path)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{
		db:      db,
		retrier: retry.TransactionRetrier(IsBusy),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping implements store.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Now implements store.DocumentStore.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

func (s *Store) ops(r sqldoc.Runner) sqldoc.Ops {
	return sqldoc.Ops{Runner: r, Dialect: sqldoc.SQLite{}, Now: s.now}
}

// Query implements store.DocumentStore.
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	return s.ops(runner{s.db}).Query(ctx, q)
}

// Count implements store.DocumentStore.
func (s *Store) Count(ctx context.Context, q store.Query) (int, error) {
	return s.ops(runner{s.db}).Count(ctx, q)
}

// Get implements store.DocumentStore.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	return s.ops(runner{s.db}).Get(ctx, collection, id)
}

// Set implements store.DocumentStore.
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	return s.ops(runner{s.db}).Set(ctx, collection, id, data)
}

// Update implements store.DocumentStore.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Update(ctx, collection, id, fields)
	})
}

// Delete implements store.DocumentStore.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.ops(runner{s.db}).Delete(ctx, collection, id)
}

// RunTransaction implements store.DocumentStore. Transactions start
// IMMEDIATE, so writers serialize and SQLITE_BUSY is retried.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.runOnce(ctx, fn)
	})
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, s.ops(runner{tx})); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IsBusy reports whether err is a lock contention error worth retrying.
func IsBusy(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	// extended codes keep the primary code in the low byte
	code := sqliteErr.Code() & 0xff
	return code == sqlite3lib.SQLITE_BUSY || code == sqlite3lib.SQLITE_LOCKED
}

var (
	_ store.DocumentStore = (*Store)(nil)
	_ store.Pinger        = (*Store)(nil)
)

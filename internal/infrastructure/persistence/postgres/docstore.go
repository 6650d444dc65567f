package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/community-rankings/internal/domain/store"
	"github.com/alem-hub/community-rankings/internal/infrastructure/persistence/sqldoc"
	"github.com/alem-hub/community-rankings/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT STORE
// ══════════════════════════════════════════════════════════════════════════════

// DocStore is a store.DocumentStore over the documents table.
type DocStore struct {
	conn    *Connection
	retrier *retry.Retrier
	now     func() time.Time
}

// NewDocStore creates a store on an open connection. Run the Migrator first.
func NewDocStore(conn *Connection) *DocStore {
	return &DocStore{
		conn:    conn,
		retrier: retry.TransactionRetrier(IsSerializationConflict),
		now:     time.Now,
	}
}

func (s *DocStore) ops(q Querier) sqldoc.Ops {
	return sqldoc.Ops{Runner: runner{q}, Dialect: sqldoc.Postgres{}, Now: s.now}
}

// Now implements store.DocumentStore.
func (s *DocStore) Now() time.Time {
	return s.now().UTC()
}

// Ping implements store.Pinger.
func (s *DocStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Query implements store.DocumentStore.
func (s *DocStore) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	return s.ops(s.conn.Pool()).Query(ctx, q)
}

// Count implements store.DocumentStore.
func (s *DocStore) Count(ctx context.Context, q store.Query) (int, error) {
	return s.ops(s.conn.Pool()).Count(ctx, q)
}

// Get implements store.DocumentStore.
func (s *DocStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	return s.ops(s.conn.Pool()).Get(ctx, collection, id)
}

// Set implements store.DocumentStore.
func (s *DocStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	return s.ops(s.conn.Pool()).Set(ctx, collection, id, data)
}

// Update implements store.DocumentStore.
func (s *DocStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Update(ctx, collection, id, fields)
	})
}

// Delete implements store.DocumentStore.
func (s *DocStore) Delete(ctx context.Context, collection, id string) error {
	return s.ops(s.conn.Pool()).Delete(ctx, collection, id)
}

// RunTransaction implements store.DocumentStore with SERIALIZABLE isolation.
// fn is re-run on serialization failures and deadlocks.
func (s *DocStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.conn.WithTx(ctx, SerializableTxOptions(), func(tx pgx.Tx) error {
			return fn(ctx, s.ops(tx))
		})
	})
}

// runner adapts a pgx Querier to sqldoc.Runner.
type runner struct {
	q Querier
}

func (r runner) QueryDocs(ctx context.Context, sql string, args ...any) ([]sqldoc.RawDoc, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []sqldoc.RawDoc
	for rows.Next() {
		var doc sqldoc.RawDoc
		if err := rows.Scan(&doc.ID, &doc.Data); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r runner) QueryInt(ctx context.Context, sql string, args ...any) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r runner) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := r.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var (
	_ store.DocumentStore = (*DocStore)(nil)
	_ store.Pinger        = (*DocStore)(nil)
)

package sqlite

import (
	"context"
	"database/sql"

	"github.com/alem-hub/community-rankings/internal/infrastructure/persistence/sqldoc"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// runner adapts database/sql to sqldoc.Runner.
type runner struct {
	db execer
}

func (r runner) QueryDocs(ctx context.Context, query string, args ...any) ([]sqldoc.RawDoc, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []sqldoc.RawDoc
	for rows.Next() {
		var (
			id   string
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		docs = append(docs, sqldoc.RawDoc{ID: id, Data: []byte(data)})
	}
	return docs, rows.Err()
}

func (r runner) QueryInt(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r runner) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

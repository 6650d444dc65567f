package sqldoc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alem-hub/community-rankings/internal/domain/store"
)

// Runner executes statements on a pool or inside a transaction.
type Runner interface {
	// QueryDocs returns (id, data) rows.
	QueryDocs(ctx context.Context, sql string, args ...any) ([]RawDoc, error)

	// QueryInt scans a single integer.
	QueryInt(ctx context.Context, sql string, args ...any) (int64, error)

	// Exec runs a statement and reports affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

// RawDoc is an undecoded row.
type RawDoc struct {
	ID   string
	Data []byte
}

// Decode parses the JSON body.
func (r RawDoc) Decode() (store.Document, error) {
	data := map[string]any{}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return store.Document{}, fmt.Errorf("decode document %q: %w", r.ID, err)
		}
	}
	return store.Document{ID: r.ID, Data: data}, nil
}

// Ops implements store.Tx over a Runner.
type Ops struct {
	Runner  Runner
	Dialect Dialect
	Now     func() time.Time
}

// Get implements store.Tx.
func (o Ops) Get(ctx context.Context, collection, id string) (store.Document, error) {
	sql := fmt.Sprintf("SELECT id, data FROM %s WHERE collection = %s AND id = %s",
		Table, o.Dialect.Placeholder(1), o.Dialect.Placeholder(2))
	rows, err := o.Runner.QueryDocs(ctx, sql, collection, id)
	if err != nil {
		return store.Document{}, fmt.Errorf("%s: get %s/%s: %w", o.Dialect.Name(), collection, id, err)
	}
	if len(rows) == 0 {
		return store.Document{}, store.ErrDocumentNotFound
	}
	return rows[0].Decode()
}

// Query implements store.Tx.
func (o Ops) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	stmt, err := SelectDocs(o.Dialect, q)
	if err != nil {
		return nil, err
	}
	rows, err := o.Runner.QueryDocs(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query %s: %w", o.Dialect.Name(), q.Collection, err)
	}
	docs := make([]store.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.Decode()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count implements store.Tx.
func (o Ops) Count(ctx context.Context, q store.Query) (int, error) {
	stmt, err := CountDocs(o.Dialect, q)
	if err != nil {
		return 0, err
	}
	n, err := o.Runner.QueryInt(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, fmt.Errorf("%s: count %s: %w", o.Dialect.Name(), q.Collection, err)
	}
	return int(n), nil
}

// Set implements store.Tx.
func (o Ops) Set(ctx context.Context, collection, id string, data map[string]any) error {
	body, err := encode(data)
	if err != nil {
		return err
	}
	if _, err := o.Runner.Exec(ctx, o.Dialect.Upsert(), collection, id, body, o.now()); err != nil {
		return fmt.Errorf("%s: set %s/%s: %w", o.Dialect.Name(), collection, id, err)
	}
	return nil
}

// Update implements store.Tx as read-merge-write of top-level fields.
// Callers outside a transaction must wrap it in one.
func (o Ops) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	doc, err := o.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	for k, v := range fields {
		doc.Data[k] = v
	}
	return o.Set(ctx, collection, id, doc.Data)
}

// Delete implements store.Tx.
func (o Ops) Delete(ctx context.Context, collection, id string) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE collection = %s AND id = %s",
		Table, o.Dialect.Placeholder(1), o.Dialect.Placeholder(2))
	if _, err := o.Runner.Exec(ctx, sql, collection, id); err != nil {
		return fmt.Errorf("%s: delete %s/%s: %w", o.Dialect.Name(), collection, id, err)
	}
	return nil
}

func (o Ops) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

func encode(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

var _ store.Tx = Ops{}

package sqldoc

import (
	"fmt"
	"strconv"
)

// Postgres is the jsonb dialect.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) Number(field string) string {
	return fmt.Sprintf("(CASE WHEN jsonb_typeof(data->'%[1]s') = 'number' THEN (data->>'%[1]s')::double precision END)", field)
}

// Text only yields JSON strings; numbers sort through Number.
func (Postgres) Text(field string) string {
	return fmt.Sprintf("(CASE WHEN jsonb_typeof(data->'%[1]s') = 'string' THEN data->>'%[1]s' END)", field)
}

func (Postgres) Present(field string) string {
	return fmt.Sprintf("coalesce(jsonb_typeof(data->'%s'), 'null') <> 'null'", field)
}

func (Postgres) Upsert() string {
	return `INSERT INTO ` + Table + ` (collection, id, data, updated_at)
VALUES ($1, $2, $3::jsonb, $4)
ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
}

// SQLite is the JSON1 dialect.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) Number(field string) string {
	return fmt.Sprintf("(CASE WHEN json_type(data, '$.%[1]s') IN ('integer', 'real') THEN CAST(json_extract(data, '$.%[1]s') AS REAL) END)", field)
}

// Text only yields JSON strings; numbers sort through Number.
func (SQLite) Text(field string) string {
	return fmt.Sprintf("(CASE WHEN json_type(data, '$.%[1]s') = 'text' THEN json_extract(data, '$.%[1]s') END)", field)
}

func (SQLite) Present(field string) string {
	return fmt.Sprintf("coalesce(json_type(data, '$.%s'), 'null') <> 'null'", field)
}

func (SQLite) Upsert() string {
	return `INSERT INTO ` + Table + ` (collection, id, data, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
}

var (
	_ Dialect = Postgres{}
	_ Dialect = SQLite{}
)

// Package sqldoc maps the document store abstraction onto a single SQL table
// of JSON documents. The PostgreSQL and SQLite drivers share the query
// builder and the transactional operations defined here; each supplies a
// Dialect and a Runner.
package sqldoc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/alem-hub/community-rankings/internal/domain/store"
)

// Table is the documents table both drivers create.
const Table = "documents"

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Dialect renders the backend-specific parts of a statement.
type Dialect interface {
	// Name identifies the dialect in logs and errors.
	Name() string

	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder(n int) string

	// Number yields the field as a double, NULL unless it is a JSON number.
	Number(field string) string

	// Text yields the field when it is a JSON string, NULL otherwise.
	Text(field string) string

	// Present is true when the field exists with a non-null value.
	Present(field string) string

	// Upsert inserts or replaces (collection, id, data, updated_at).
	Upsert() string
}

// Statement is a rendered query.
type Statement struct {
	SQL  string
	Args []any
}

type builder struct {
	d    Dialect
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

// SelectDocs renders q as "SELECT id, data".
func SelectDocs(d Dialect, q store.Query) (Statement, error) {
	return render(d, q, false)
}

// CountDocs renders q as "SELECT COUNT(*)", ignoring Limit.
func CountDocs(d Dialect, q store.Query) (Statement, error) {
	return render(d, q, true)
}

func render(d Dialect, q store.Query, count bool) (Statement, error) {
	if err := q.Validate(); err != nil {
		return Statement{}, err
	}

	b := &builder{d: d}
	where := []string{"collection = " + b.bind(q.Collection)}

	for _, f := range q.Filters {
		clause, err := b.filter(f)
		if err != nil {
			return Statement{}, err
		}
		where = append(where, clause)
	}

	var order string
	if q.OrderBy != nil {
		if !fieldPattern.MatchString(q.OrderBy.Field) {
			return Statement{}, fmt.Errorf("%w: bad order field %q", store.ErrInvalidQuery, q.OrderBy.Field)
		}
		where = append(where, d.Present(q.OrderBy.Field))
		dir := "ASC"
		if q.OrderBy.Descending {
			dir = "DESC"
		}
		// numeric values sort by number, strings by text; seq keeps ties in insertion order
		order = fmt.Sprintf(" ORDER BY %s %s NULLS LAST, %s %s NULLS LAST, seq ASC",
			d.Number(q.OrderBy.Field), dir, d.Text(q.OrderBy.Field), dir)
	}

	var sb strings.Builder
	if count {
		sb.WriteString("SELECT COUNT(*) FROM ")
	} else {
		sb.WriteString("SELECT id, data FROM ")
	}
	sb.WriteString(Table)
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(where, " AND "))

	if !count {
		if order != "" {
			sb.WriteString(order)
		} else {
			sb.WriteString(" ORDER BY seq ASC")
		}
		if q.Limit > 0 {
			sb.WriteString(" LIMIT ")
			sb.WriteString(strconv.Itoa(q.Limit))
		}
	}

	return Statement{SQL: sb.String(), Args: b.args}, nil
}

func (b *builder) filter(f store.Filter) (string, error) {
	if !fieldPattern.MatchString(f.Field) {
		return "", fmt.Errorf("%w: bad filter field %q", store.ErrInvalidQuery, f.Field)
	}

	var op string
	switch f.Op {
	case store.OpEqual:
		op = "="
	case store.OpGreater:
		op = ">"
	case store.OpGreaterOrEqual:
		op = ">="
	case store.OpIn:
		values, _ := f.Value.([]any)
		if len(values) == 0 {
			return "1 = 0", nil
		}
		marks := make([]string, 0, len(values))
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				return "", fmt.Errorf("%w: in filter on %q supports strings only", store.ErrInvalidQuery, f.Field)
			}
			marks = append(marks, b.bind(s))
		}
		return fmt.Sprintf("%s IN (%s)", b.d.Text(f.Field), strings.Join(marks, ", ")), nil
	}

	if n, ok := store.ToFloat(f.Value); ok {
		return fmt.Sprintf("%s %s %s", b.d.Number(f.Field), op, b.bind(n)), nil
	}
	if s, ok := f.Value.(string); ok {
		return fmt.Sprintf("%s %s %s", b.d.Text(f.Field), op, b.bind(s)), nil
	}
	return "", fmt.Errorf("%w: unsupported value %T for %q", store.ErrInvalidQuery, f.Value, f.Field)
}

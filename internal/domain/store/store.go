// Package store defines the document store abstraction the rankings core runs
// on: schemaless documents grouped in collections, filtered queries with a
// bounded "in" list, and read-modify-write transactions.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxInValues is the largest list an OpIn filter may carry.
const MaxInValues = 10

var (
	// ErrDocumentNotFound is returned by Get and Update for absent documents.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInLimitExceeded is returned for OpIn filters longer than MaxInValues.
	ErrInLimitExceeded = fmt.Errorf("in filter exceeds %d values", MaxInValues)

	// ErrInvalidQuery is returned for malformed queries.
	ErrInvalidQuery = errors.New("invalid query")
)

// Op is a filter operator.
type Op string

const (
	OpEqual          Op = "=="
	OpGreater        Op = ">"
	OpGreaterOrEqual Op = ">="
	OpIn             Op = "in"
)

// Filter restricts a query to documents whose Field satisfies Op against Value.
// Documents lacking Field never match.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// Gt builds a strictly-greater filter.
func Gt(field string, value any) Filter {
	return Filter{Field: field, Op: OpGreater, Value: value}
}

// Gte builds a greater-or-equal filter.
func Gte(field string, value any) Filter {
	return Filter{Field: field, Op: OpGreaterOrEqual, Value: value}
}

// In builds a membership filter over string values.
func In(field string, values []string) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Filter{Field: field, Op: OpIn, Value: vs}
}

// OrderBy sorts results by a field. Documents lacking the field are excluded.
type OrderBy struct {
	Field      string
	Descending bool
}

// Query describes a collection read.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    *OrderBy
	// Limit caps the number of returned documents; zero means unlimited.
	Limit int
}

// Validate checks operators and the "in" list bound.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: empty collection", ErrInvalidQuery)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("%w: empty filter field", ErrInvalidQuery)
		}
		switch f.Op {
		case OpEqual, OpGreater, OpGreaterOrEqual:
		case OpIn:
			values, ok := f.Value.([]any)
			if !ok {
				return fmt.Errorf("%w: in filter on %q needs a list", ErrInvalidQuery, f.Field)
			}
			if len(values) > MaxInValues {
				return ErrInLimitExceeded
			}
		default:
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}
	return nil
}

// Document is a stored record.
type Document struct {
	ID   string
	Data map[string]any
}

// Tx is the transactional view of the store handed to RunTransaction callbacks.
// Reads observe the transaction's own writes.
type Tx interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Count(ctx context.Context, q Query) (int, error)
	Set(ctx context.Context, collection, id string, data map[string]any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// DocumentStore is the capability the rankings core consumes.
type DocumentStore interface {
	// Query returns matching documents in OrderBy order, at most Limit of them.
	Query(ctx context.Context, q Query) ([]Document, error)

	// Count returns how many documents Query would return without a Limit.
	Count(ctx context.Context, q Query) (int, error)

	// Get returns ErrDocumentNotFound for absent documents.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Set creates or replaces a document.
	Set(ctx context.Context, collection, id string, data map[string]any) error

	// Update merges top-level fields into an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// RunTransaction executes fn atomically. The driver retries fn on
	// write conflicts, so fn must not have side effects outside tx.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Now returns the store's notion of the current time.
	Now() time.Time
}

// Pinger is implemented by drivers that can check backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Collection names.
const (
	CollectionUsers         = "users"
	CollectionUserStats     = "user_stats"
	CollectionXPPeriods     = "xp_periods"
	CollectionFollows       = "follows"
	CollectionSocialStats   = "social_stats"
	CollectionTrades        = "trades"
	CollectionNotifications = "notifications"
)

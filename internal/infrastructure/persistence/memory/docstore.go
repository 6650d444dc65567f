// Package memory implements the document store and page cache in process
// memory. It backs tests and single-node development setups; data is lost on
// restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/community-rankings/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT STORE
// ══════════════════════════════════════════════════════════════════════════════

// DocStore is an in-memory store.DocumentStore.
// Transactions are serialized by a single writer lock, so they never conflict.
type DocStore struct {
	mu sync.RWMutex

	// collections maps collection -> id -> normalized document body.
	collections map[string]map[string]map[string]any

	// seq records insertion order so ties come back in arrival order.
	seq     map[string]map[string]uint64
	nextSeq uint64

	now func() time.Time

	// queries counts Query calls, used by tests to observe chunking.
	queries int
}

// Option configures a DocStore.
type Option func(*DocStore)

// WithClock overrides the store clock.
func WithClock(now func() time.Time) Option {
	return func(s *DocStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDocStore creates an empty store.
func NewDocStore(opts ...Option) *DocStore {
	s := &DocStore{
		collections: make(map[string]map[string]map[string]any),
		seq:         make(map[string]map[string]uint64),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now implements store.DocumentStore.
func (s *DocStore) Now() time.Time {
	return s.now().UTC()
}

// Ping implements store.Pinger.
func (s *DocStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// QueryCount returns how many Query calls the store has served.
func (s *DocStore) QueryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries
}

// Query implements store.DocumentStore.
func (s *DocStore) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.queries++
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(q, nil), nil
}

// Count implements store.DocumentStore.
func (s *DocStore) Count(ctx context.Context, q store.Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}
	q.Limit = 0

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.query(q, nil)), nil
}

// Get implements store.DocumentStore.
func (s *DocStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(collection, id, nil)
}

// Set implements store.DocumentStore.
func (s *DocStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Set(ctx, collection, id, data)
	})
}

// Update implements store.DocumentStore.
func (s *DocStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Update(ctx, collection, id, fields)
	})
}

// Delete implements store.DocumentStore.
func (s *DocStore) Delete(ctx context.Context, collection, id string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Delete(ctx, collection, id)
	})
}

// RunTransaction implements store.DocumentStore. Writes are staged and
// applied only when fn returns nil.
func (s *DocStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, staged: make(map[docKey]*stagedWrite)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.apply(tx)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// internals (callers hold s.mu)
// ──────────────────────────────────────────────────────────────────────────────

type docKey struct {
	collection string
	id         string
}

type stagedWrite struct {
	data    map[string]any // nil means delete
	order   uint64
	created bool
}

func (s *DocStore) get(collection, id string, staged map[docKey]*stagedWrite) (store.Document, error) {
	if w, ok := staged[docKey{collection, id}]; ok {
		if w.data == nil {
			return store.Document{}, store.ErrDocumentNotFound
		}
		return store.Document{ID: id, Data: cloneMap(w.data)}, nil
	}
	data, ok := s.collections[collection][id]
	if !ok {
		return store.Document{}, store.ErrDocumentNotFound
	}
	return store.Document{ID: id, Data: cloneMap(data)}, nil
}

type candidate struct {
	doc   store.Document
	order uint64
}

func (s *DocStore) query(q store.Query, staged map[docKey]*stagedWrite) []store.Document {
	var matched []candidate

	for id, data := range s.collections[q.Collection] {
		if _, overridden := staged[docKey{q.Collection, id}]; overridden {
			continue
		}
		if q.MatchesAll(data) {
			matched = append(matched, candidate{
				doc:   store.Document{ID: id, Data: cloneMap(data)},
				order: s.seq[q.Collection][id],
			})
		}
	}
	for key, w := range staged {
		if key.collection != q.Collection || w.data == nil {
			continue
		}
		if q.MatchesAll(w.data) {
			matched = append(matched, candidate{
				doc:   store.Document{ID: key.id, Data: cloneMap(w.data)},
				order: w.order,
			})
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].order < matched[j].order })
	if q.OrderBy != nil {
		field, desc := q.OrderBy.Field, q.OrderBy.Descending
		sort.SliceStable(matched, func(i, j int) bool {
			c, _ := store.Compare(matched[i].doc.Data[field], matched[j].doc.Data[field])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]store.Document, len(matched))
	for i, c := range matched {
		out[i] = c.doc
	}
	return out
}

func (s *DocStore) apply(tx *memTx) {
	for key, w := range tx.staged {
		if w.data == nil {
			delete(s.collections[key.collection], key.id)
			delete(s.seq[key.collection], key.id)
			continue
		}
		if s.collections[key.collection] == nil {
			s.collections[key.collection] = make(map[string]map[string]any)
			s.seq[key.collection] = make(map[string]uint64)
		}
		s.collections[key.collection][key.id] = w.data
		if w.created {
			s.seq[key.collection][key.id] = w.order
		}
	}
}

func (s *DocStore) exists(collection, id string) bool {
	_, ok := s.collections[collection][id]
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

type memTx struct {
	store  *DocStore
	staged map[docKey]*stagedWrite
}

func (t *memTx) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	return t.store.get(collection, id, t.staged)
}

func (t *memTx) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return t.store.query(q, t.staged), nil
}

func (t *memTx) Count(ctx context.Context, q store.Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}
	q.Limit = 0
	return len(t.store.query(q, t.staged)), nil
}

func (t *memTx) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if collection == "" || id == "" {
		return fmt.Errorf("memory: set: empty collection or id")
	}
	normalized, err := store.Normalize(data)
	if err != nil {
		return err
	}
	t.stage(collection, id, normalized)
	return nil
}

func (t *memTx) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := t.store.get(collection, id, t.staged)
	if err != nil {
		return err
	}
	patch, err := store.Normalize(fields)
	if err != nil {
		return err
	}
	for k, v := range patch {
		current.Data[k] = v
	}
	t.stage(collection, id, current.Data)
	return nil
}

func (t *memTx) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.staged[docKey{collection, id}] = &stagedWrite{data: nil}
	return nil
}

func (t *memTx) stage(collection, id string, data map[string]any) {
	key := docKey{collection, id}
	order := t.store.seq[collection][id]
	created := false

	prev, wasStaged := t.staged[key]
	switch {
	case wasStaged && prev.data != nil:
		order, created = prev.order, prev.created
	case !t.store.exists(collection, id) || wasStaged:
		t.store.nextSeq++
		order, created = t.store.nextSeq, true
	}
	t.staged[key] = &stagedWrite{data: data, order: order, created: created}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

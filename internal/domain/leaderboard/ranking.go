package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/alem-hub/community-rankings/internal/domain/store"
)

// ErrNoEntry означает, что у пользователя нет значения в рейтинге.
// Это не сбой, а законное состояние "вне рейтинга".
var ErrNoEntry = errors.New("leaderboard: no entry for user")

// Resolution - вычисленное место пользователя.
type Resolution struct {
	UserID string
	Value  float64
	Rank   int
}

// RankResolver вычисляет место пользователя по его значению,
// не загружая весь рейтинг: rank = (число записей строго больше) + 1.
type RankResolver struct {
	store store.DocumentStore
}

// NewRankResolver создаёт резолвер.
func NewRankResolver(s store.DocumentStore) *RankResolver {
	return &RankResolver{store: s}
}

// Resolve возвращает место пользователя в рейтинге плана.
// found == false, если записи у пользователя нет.
func (r *RankResolver) Resolve(ctx context.Context, plan Plan, userID string) (Resolution, bool, error) {
	docs, err := r.store.Query(ctx, plan.UserQuery(userID))
	if err != nil {
		return Resolution{}, false, fmt.Errorf("read user record: %w", err)
	}

	records := plan.Records(docs)
	if len(records) == 0 {
		return Resolution{}, false, nil
	}
	value := records[0].Value

	above, err := r.store.Count(ctx, plan.AboveQuery(value))
	if err != nil {
		return Resolution{}, false, fmt.Errorf("count records above %v: %w", value, err)
	}

	return Resolution{UserID: userID, Value: value, Rank: above + 1}, true, nil
}

// MustResolve - как Resolve, но отсутствие записи возвращается как ErrNoEntry.
func (r *RankResolver) MustResolve(ctx context.Context, plan Plan, userID string) (Resolution, error) {
	res, found, err := r.Resolve(ctx, plan, userID)
	if err != nil {
		return Resolution{}, err
	}
	if !found {
		return Resolution{}, ErrNoEntry
	}
	return res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RANK ASSIGNMENT
// ══════════════════════════════════════════════════════════════════════════════

// RankedRecord - запись с присвоенным местом.
type RankedRecord struct {
	Record
	Rank int
}

// AssignRanks присваивает плотные места 1..N: равные значения получают
// место предыдущей записи, следующее значение - место на единицу больше,
// без пропусков. Набор сортируется по убыванию устойчиво, поэтому порядок
// равных значений остаётся порядком поступления из хранилища.
//
// Место вне страницы (CurrentUserEntry) считает RankResolver.
func AssignRanks(records []Record) []RankedRecord {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})

	out := make([]RankedRecord, len(sorted))
	for i, rec := range sorted {
		rank := 1
		if i > 0 {
			rank = out[i-1].Rank
			if rec.Value != sorted[i-1].Value {
				rank++
			}
		}
		out[i] = RankedRecord{Record: rec, Rank: rank}
	}
	return out
}

// ChunkIDs разбивает список ID на части не длиннее size,
// отбрасывая пустые ID и повторы.
func ChunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = store.MaxInValues
	}

	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	chunks := make([][]string, 0, (len(unique)+size-1)/size)
	for start := 0; start < len(unique); start += size {
		end := start + size
		if end > len(unique) {
			end = len(unique)
		}
		chunks = append(chunks, unique[start:end])
	}
	return chunks
}

package leaderboard

import (
	"fmt"

	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE LAYOUT
// ══════════════════════════════════════════════════════════════════════════════

// Поля документов, из которых читаются значения рейтингов.
const (
	FieldUserID      = "userId"
	FieldTotalXP     = "totalXp"
	FieldPeriodType  = "periodType"
	FieldPeriodStart = "periodStart"
	FieldXP          = "xp"

	FieldTradesCompleted     = "tradesCompleted"
	FieldCollaborationRating = "collaborationRating"
	FieldSkillEndorsements   = "skillEndorsements"
	FieldQuickResponses      = "quickResponses"
	FieldAchievements        = "achievements"
)

// cumulativeFields сопоставляет накопительные категории полям user_stats.
var cumulativeFields = map[Category]string{
	CategoryTradeCount:          FieldTradesCompleted,
	CategoryCollaborationRating: FieldCollaborationRating,
	CategorySkillEndorsements:   FieldSkillEndorsements,
	CategoryQuickResponses:      FieldQuickResponses,
	CategoryAchievementCount:    FieldAchievements,
}

// XPPeriodDocID возвращает ID документа агрегата опыта за период.
func XPPeriodDocID(userID string, period Period, bucket string) string {
	return fmt.Sprintf("%s_%s_%s", userID, period, bucket)
}

// ══════════════════════════════════════════════════════════════════════════════
// PLAN
// ══════════════════════════════════════════════════════════════════════════════

// Record - сырое значение метрики пользователя.
type Record struct {
	UserID string
	Value  float64
}

// Plan описывает, где и как читать значения одной пары (категория, период).
// Все запросы рейтинга строятся из плана, поэтому страница, резолвер
// и круг видят один и тот же набор документов.
type Plan struct {
	Category Category
	Period   Period
	Range    Range

	// Collection - коллекция с агрегатами.
	Collection string

	// ValueField - поле со значением метрики.
	ValueField string

	// UserField - поле с ID пользователя.
	UserField string

	// Filters - базовые фильтры (тип периода и корзина).
	Filters []store.Filter
}

func (p Plan) filters(extra ...store.Filter) []store.Filter {
	out := make([]store.Filter, 0, len(p.Filters)+len(extra))
	out = append(out, p.Filters...)
	return append(out, extra...)
}

func (p Plan) order() *store.OrderBy {
	return &store.OrderBy{Field: p.ValueField, Descending: true}
}

// TopQuery возвращает до limit записей по убыванию значения.
func (p Plan) TopQuery(limit int) store.Query {
	return store.Query{
		Collection: p.Collection,
		Filters:    p.filters(),
		OrderBy:    p.order(),
		Limit:      limit,
	}
}

// AboveQuery считает записи со значением строго больше threshold.
func (p Plan) AboveQuery(threshold float64) store.Query {
	return store.Query{
		Collection: p.Collection,
		Filters:    p.filters(store.Gt(p.ValueField, threshold)),
	}
}

// MembersQuery ограничивает запрос списком пользователей.
// Список не должен превышать store.MaxInValues.
func (p Plan) MembersQuery(userIDs []string) store.Query {
	return store.Query{
		Collection: p.Collection,
		Filters:    p.filters(store.In(p.UserField, userIDs)),
		OrderBy:    p.order(),
	}
}

// UserQuery находит запись одного пользователя.
func (p Plan) UserQuery(userID string) store.Query {
	return store.Query{
		Collection: p.Collection,
		Filters:    p.filters(store.Eq(p.UserField, userID)),
		OrderBy:    p.order(),
		Limit:      1,
	}
}

// CountQuery считает всех участников рейтинга.
func (p Plan) CountQuery() store.Query {
	return store.Query{
		Collection: p.Collection,
		Filters:    p.filters(),
		OrderBy:    p.order(),
	}
}

// RecordFrom извлекает запись из документа. Документ без значения
// или без пользователя не участвует в рейтинге.
func (p Plan) RecordFrom(doc store.Document) (Record, bool) {
	value, ok := store.Float(doc.Data, p.ValueField)
	if !ok {
		return Record{}, false
	}
	userID := store.String(doc.Data, p.UserField)
	if userID == "" {
		userID = doc.ID
	}
	return Record{UserID: userID, Value: value}, true
}

// Records извлекает записи из результата запроса, сохраняя порядок.
func (p Plan) Records(docs []store.Document) []Record {
	out := make([]Record, 0, len(docs))
	for _, doc := range docs {
		if r, ok := p.RecordFrom(doc); ok {
			out = append(out, r)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// PLANNER
// ══════════════════════════════════════════════════════════════════════════════

// Planner сопоставляет паре (категория, период) план запросов.
type Planner struct{}

// NewPlanner создаёт планировщик.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan строит план. Накопительные категории игнорируют период и читают
// user_stats; категории опыта читают xp_periods по корзине окна, а для
// ALL_TIME - user_stats.totalXp.
func (pl *Planner) Plan(category Category, period Period, rng Range) (Plan, error) {
	if !category.IsValid() {
		return Plan{}, shared.NewDomainError("leaderboard", "Plan", shared.ErrValidation,
			fmt.Sprintf("unknown category %q", category))
	}
	if !period.IsValid() {
		period = PeriodAllTime
	}

	plan := Plan{
		Category:  category,
		Period:    period,
		Range:     rng,
		UserField: FieldUserID,
	}

	if field, ok := cumulativeFields[category]; ok {
		plan.Collection = store.CollectionUserStats
		plan.ValueField = field
		return plan, nil
	}

	if period == PeriodAllTime {
		plan.Collection = store.CollectionUserStats
		plan.ValueField = FieldTotalXP
		return plan, nil
	}

	plan.Collection = store.CollectionXPPeriods
	plan.ValueField = FieldXP
	plan.Filters = []store.Filter{
		store.Eq(FieldPeriodType, string(period)),
		store.Eq(FieldPeriodStart, rng.Bucket()),
	}
	return plan, nil
}

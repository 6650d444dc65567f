// Package leaderboard содержит доменную модель рейтингов сообщества:
// категории и периоды, окна периодов, планирование запросов к хранилищу
// и вычисление мест с учётом равных значений.
package leaderboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/community-rankings/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Category - метрика, по которой строится рейтинг.
type Category string

const (
	// CategoryTotalXP - суммарный опыт (за период или за всё время).
	CategoryTotalXP Category = "total_xp"
	// CategoryPeriodXP - опыт, заработанный в окне периода.
	CategoryPeriodXP Category = "period_xp"
	// CategoryTradeCount - число завершённых обменов.
	CategoryTradeCount Category = "trade_count"
	// CategoryCollaborationRating - рейтинг сотрудничества.
	CategoryCollaborationRating Category = "collaboration_rating"
	// CategorySkillEndorsements - число подтверждённых навыков.
	CategorySkillEndorsements Category = "skill_endorsements"
	// CategoryQuickResponses - число быстрых ответов.
	CategoryQuickResponses Category = "quick_responses"
	// CategoryAchievementCount - число достижений.
	CategoryAchievementCount Category = "achievement_count"
)

// AllCategories перечисляет все поддерживаемые категории.
var AllCategories = []Category{
	CategoryTotalXP,
	CategoryPeriodXP,
	CategoryTradeCount,
	CategoryCollaborationRating,
	CategorySkillEndorsements,
	CategoryQuickResponses,
	CategoryAchievementCount,
}

// IsValid проверяет, что категория известна.
func (c Category) IsValid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// IsPeriodSensitive возвращает true для категорий, зависящих от окна периода.
// Накопительные категории всегда читаются из агрегата за всё время.
func (c Category) IsPeriodSensitive() bool {
	return c == CategoryTotalXP || c == CategoryPeriodXP
}

// String возвращает строковое представление категории.
func (c Category) String() string {
	return string(c)
}

// ParseCategory разбирает категорию из строки.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", shared.NewDomainError("leaderboard", "ParseCategory", shared.ErrValidation,
			fmt.Sprintf("unknown category %q", s))
	}
	return c, nil
}

// Period - временное окно рейтинга.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all_time"
)

// IsValid проверяет, что период известен.
func (p Period) IsValid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление периода.
func (p Period) String() string {
	return string(p)
}

// ParsePeriod разбирает период из строки.
// Пустая строка и неизвестные значения трактуются как PeriodAllTime.
func ParsePeriod(s string) Period {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return PeriodAllTime
	}
	return p
}

// RankChange - изменение позиции. Положительное значение = подъём.
// Поле информационное: история мест не хранится, поэтому всегда 0.
type RankChange int

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY & PAGE
// ══════════════════════════════════════════════════════════════════════════════

// Entry представляет одну строку рейтинга.
type Entry struct {
	// UserID - идентификатор пользователя.
	UserID string `json:"userId"`

	// DisplayName - отображаемое имя (пустое, если профиль не найден).
	DisplayName string `json:"displayName"`

	// AvatarRef - ссылка на аватар.
	AvatarRef string `json:"avatarRef,omitempty"`

	// Rank - место, начиная с 1. Равные значения делят одно место.
	Rank int `json:"rank"`

	// Value - значение метрики.
	Value float64 `json:"value"`

	// RankChange - изменение места.
	RankChange RankChange `json:"rankChange"`

	// IsCurrentUser - строка принадлежит вызывающему пользователю.
	IsCurrentUser bool `json:"isCurrentUser"`
}

// Page - собранная страница рейтинга.
type Page struct {
	// Entries отсортированы по значению по убыванию.
	Entries []Entry `json:"entries"`

	// CurrentUserEntry заполняется, когда место вызывающего вычислено
	// отдельно, потому что он не попал в Entries.
	CurrentUserEntry *Entry `json:"currentUserEntry,omitempty"`

	// TotalParticipants - число участников рейтинга.
	TotalParticipants int `json:"totalParticipants"`

	GeneratedAt time.Time `json:"generatedAt"`
	Period      Period    `json:"period"`
	Category    Category  `json:"category"`
}

// NewEmptyPage создаёт пустую страницу.
func NewEmptyPage(category Category, period Period, generatedAt time.Time) *Page {
	return &Page{
		Entries:     []Entry{},
		GeneratedAt: generatedAt,
		Period:      period,
		Category:    category,
	}
}

// IsEmpty возвращает true, если в странице нет строк.
func (p *Page) IsEmpty() bool {
	return len(p.Entries) == 0
}

// Find возвращает строку пользователя из Entries.
func (p *Page) Find(userID string) (Entry, bool) {
	for _, e := range p.Entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return Entry{}, false
}

// CallerRank возвращает место вызывающего пользователя, если оно известно.
func (p *Page) CallerRank() (int, bool) {
	if p.CurrentUserEntry != nil {
		return p.CurrentUserEntry.Rank, true
	}
	for _, e := range p.Entries {
		if e.IsCurrentUser {
			return e.Rank, true
		}
	}
	return 0, false
}

// Config - пара (категория, период) для пакетного запроса рейтингов.
type Config struct {
	Category Category `json:"category"`
	Period   Period   `json:"period"`
}

// Key возвращает ключ вида "<category>_<period>".
func (c Config) Key() string {
	return string(c.Category) + "_" + string(c.Period)
}

// CacheKey строит ключ кэша страницы из всех входных параметров.
func CacheKey(category Category, period Period, limit int, callerID string) string {
	return fmt.Sprintf("%s:%s:%d:%s", category, period, limit, callerID)
}

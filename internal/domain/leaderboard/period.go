package leaderboard

import (
	"time"

	"github.com/alem-hub/community-rankings/pkg/timeutil"
)

// PlatformEpoch - начало окна ALL_TIME.
var PlatformEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Range - окно периода [Start, End].
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains проверяет, попадает ли момент в окно.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Bucket возвращает ключ корзины агрегата в формате YYYY-MM-DD.
// Дата берётся в зоне Start, то есть в зоне калькулятора.
func (r Range) Bucket() string {
	return timeutil.DateKey(r.Start, r.Start.Location())
}

// RangeCalculator превращает период в конкретное окно.
// Неделя всегда начинается с понедельника.
type RangeCalculator struct {
	now func() time.Time
	loc *time.Location
}

// NewRangeCalculator создаёт калькулятор. nil now означает time.Now,
// nil loc означает часовой пояс Алматы.
func NewRangeCalculator(now func() time.Time, loc *time.Location) *RangeCalculator {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = timeutil.AlmatyTZ
	}
	return &RangeCalculator{now: now, loc: loc}
}

// Location возвращает часовой пояс калькулятора.
func (c *RangeCalculator) Location() *time.Location {
	return c.loc
}

// Range вычисляет окно периода. Ошибок нет: неизвестный период
// ведёт себя как PeriodAllTime.
func (c *RangeCalculator) Range(period Period) Range {
	now := c.now().In(c.loc)

	var start time.Time
	switch period {
	case PeriodDaily:
		start = timeutil.StartOfDay(now, c.loc)
	case PeriodWeekly:
		start = timeutil.StartOfWeek(now, c.loc)
	case PeriodMonthly:
		start = timeutil.StartOfMonth(now, c.loc)
	default:
		start = PlatformEpoch.In(c.loc)
	}

	return Range{Start: start, End: now}
}

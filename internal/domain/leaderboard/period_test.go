package leaderboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/community-rankings/pkg/timeutil"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRangeCalculator_Windows(t *testing.T) {
	loc := timeutil.AlmatyTZ
	// Wednesday 2025-03-05 15:00 in Almaty.
	now := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	calc := NewRangeCalculator(fixedNow(now), loc)

	tests := []struct {
		period    Period
		wantStart time.Time
		bucket    string
	}{
		{PeriodDaily, time.Date(2025, 3, 5, 0, 0, 0, 0, loc), "2025-03-05"},
		{PeriodWeekly, time.Date(2025, 3, 3, 0, 0, 0, 0, loc), "2025-03-03"},
		{PeriodMonthly, time.Date(2025, 3, 1, 0, 0, 0, 0, loc), "2025-03-01"},
		{PeriodAllTime, PlatformEpoch, "2024-01-01"},
		{Period("fortnightly"), PlatformEpoch, "2024-01-01"},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			rng := calc.Range(tt.period)
			assert.True(t, rng.Start.Equal(tt.wantStart), "start %s, want %s", rng.Start, tt.wantStart)
			assert.True(t, rng.End.Equal(now))
			assert.Equal(t, tt.bucket, rng.Bucket())
			assert.False(t, rng.Start.After(now))
			assert.True(t, rng.Contains(now))
		})
	}
}

func TestRangeCalculator_WeekStartsOnMonday(t *testing.T) {
	loc := timeutil.AlmatyTZ
	monday := time.Date(2025, 3, 3, 0, 0, 0, 0, loc)

	// Every instant of that calendar week maps to the same start, Sunday included.
	for day := 0; day < 7; day++ {
		for _, hour := range []int{0, 12, 23} {
			at := monday.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
			calc := NewRangeCalculator(fixedNow(at), loc)
			assert.True(t, calc.Range(PeriodWeekly).Start.Equal(monday), "instant %s", at)
		}
	}

	nextMonday := monday.AddDate(0, 0, 7)
	calc := NewRangeCalculator(fixedNow(nextMonday), loc)
	assert.True(t, calc.Range(PeriodWeekly).Start.Equal(nextMonday))
}

func TestRangeCalculator_UsesLocalDay(t *testing.T) {
	// 20:00 UTC on Sunday is already 01:00 Monday in Almaty.
	now := time.Date(2025, 3, 2, 20, 0, 0, 0, time.UTC)
	calc := NewRangeCalculator(fixedNow(now), timeutil.AlmatyTZ)

	assert.Equal(t, "2025-03-03", calc.Range(PeriodDaily).Bucket())
	assert.Equal(t, "2025-03-03", calc.Range(PeriodWeekly).Bucket())

	utc := NewRangeCalculator(fixedNow(now), time.UTC)
	assert.Equal(t, "2025-03-02", utc.Range(PeriodDaily).Bucket())
	assert.Equal(t, "2025-02-24", utc.Range(PeriodWeekly).Bucket())
}

func TestRangeCalculator_StableWithinPeriod(t *testing.T) {
	loc := timeutil.AlmatyTZ
	first := time.Date(2025, 7, 1, 0, 0, 1, 0, loc)
	last := time.Date(2025, 7, 31, 23, 59, 59, 0, loc)

	a := NewRangeCalculator(fixedNow(first), loc).Range(PeriodMonthly)
	b := NewRangeCalculator(fixedNow(last), loc).Range(PeriodMonthly)
	assert.True(t, a.Start.Equal(b.Start))
}

func TestParsePeriodAndCategory(t *testing.T) {
	assert.Equal(t, PeriodWeekly, ParsePeriod(" Weekly "))
	assert.Equal(t, PeriodAllTime, ParsePeriod(""))
	assert.Equal(t, PeriodAllTime, ParsePeriod("yearly"))

	c, err := ParseCategory("TOTAL_XP")
	assert.NoError(t, err)
	assert.Equal(t, CategoryTotalXP, c)

	_, err = ParseCategory("karma")
	assert.Error(t, err)
}

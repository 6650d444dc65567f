package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfWeek_MondayInLocation(t *testing.T) {
	// Sunday 20:00 UTC is already Monday 01:00 in Almaty
	at := time.Date(2025, 6, 15, 20, 0, 0, 0, time.UTC)

	got := StartOfWeek(at, AlmatyTZ)
	assert.Equal(t, time.Monday, got.Weekday())
	assert.Equal(t, "2025-06-16", DateKey(got, AlmatyTZ))

	got = StartOfWeek(at, time.UTC)
	assert.Equal(t, "2025-06-09", DateKey(got, time.UTC))
}

func TestStartOfDayAndMonth(t *testing.T) {
	at := time.Date(2025, 3, 31, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, "2025-04-01", DateKey(StartOfDay(at, nil), nil), "nil location means Almaty")
	assert.Equal(t, "2025-04-01", DateKey(StartOfMonth(at, AlmatyTZ), AlmatyTZ))
	assert.Equal(t, "2025-03-01", DateKey(StartOfMonth(at, time.UTC), time.UTC))
}

func TestLoadLocation_FallsBackToAlmaty(t *testing.T) {
	assert.Same(t, AlmatyTZ, LoadLocation(""))
	assert.Same(t, AlmatyTZ, LoadLocation("Mars/Olympus"))
	assert.Equal(t, "UTC", LoadLocation("UTC").String())
}

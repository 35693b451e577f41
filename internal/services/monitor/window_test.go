package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2025, 6, 10, h, m, 0, 0, time.UTC)
}

func TestNextValidRun_MinuteGrid(t *testing.T) {
	// 10:07, интервал 15 -> 10:15.
	got := NextValidRun(at(10, 7), 15, 9, 21)
	require.Equal(t, at(10, 15), got)
}

func TestNextValidRun_BeforeWindowSnapsToStart(t *testing.T) {
	// 08:50 -> ближайший слот 09:00, начало окна.
	got := NextValidRun(at(8, 50), 15, 9, 21)
	require.Equal(t, at(9, 0), got)
}

func TestNextValidRun_AfterWindowGoesToNextDay(t *testing.T) {
	// 20:58 -> слот 21:00 уже за окном -> завтра 09:00.
	got := NextValidRun(at(20, 58), 15, 9, 21)
	require.Equal(t, time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC), got)
}

func TestNextValidRun_HourInterval(t *testing.T) {
	got := NextValidRun(at(10, 7), 60, 9, 21)
	require.Equal(t, at(11, 0), got)

	// Ровно на часе интервал 60 даёт следующий час, не текущий.
	got = NextValidRun(at(10, 0), 60, 9, 21)
	require.Equal(t, at(11, 0), got)
}

func TestNextValidRun_MultiHourInterval(t *testing.T) {
	// Шаг 2 часа: 09:30 -> 10:00 (ближайший чётный час).
	got := NextValidRun(at(9, 30), 120, 9, 21)
	require.Equal(t, at(10, 0), got)

	// Ровно на слоте -> следующий слот.
	got = NextValidRun(at(10, 0), 120, 9, 21)
	require.Equal(t, at(12, 0), got)

	// Шаг 4 часа: 13:10 -> 16:00.
	got = NextValidRun(at(13, 10), 240, 9, 21)
	require.Equal(t, at(16, 0), got)
}

func TestNextValidRun_ExactMultipleAdvances(t *testing.T) {
	// Ровно на слоте сетки планируем следующий, не текущий.
	got := NextValidRun(at(10, 15), 15, 9, 21)
	require.Equal(t, at(10, 30), got)
}

func TestInWindow(t *testing.T) {
	require.True(t, InWindow(at(9, 0), 9, 21))
	require.True(t, InWindow(at(20, 59), 9, 21))
	require.False(t, InWindow(at(21, 0), 9, 21))
	require.False(t, InWindow(at(8, 59), 9, 21))
}

func TestDisplayToSchedulingHour_RoundTrip(t *testing.T) {
	// Бразилия — UTC-3 без летнего времени: 06:00 локально = 09:00 UTC.
	utc, err := DisplayToSchedulingHour("06:00")
	require.NoError(t, err)
	require.Equal(t, "09:00", utc)

	back, err := SchedulingToDisplayHour(utc)
	require.NoError(t, err)
	require.Equal(t, "06:00", back)
}

func TestDisplayToSchedulingHour_Invalid(t *testing.T) {
	_, err := DisplayToSchedulingHour("6h00")
	require.Error(t, err)
	_, err = DisplayToSchedulingHour("25:00")
	require.Error(t, err)
}

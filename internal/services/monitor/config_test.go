package monitor

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rastreiolabs/enviowatch/internal/store"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig(context.Background(), newMemStore(), slog.Default())
	require.Equal(t, DefaultIntervalMinutes, cfg.IntervalMinutes)
	require.Equal(t, DefaultWindowStartHour, cfg.WindowStartHour)
	require.Equal(t, DefaultWindowEndHour, cfg.WindowEndHour)
}

func TestLoadConfig_FromStore(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, store.KeyIntervalMinutes, []byte("15")))
	require.NoError(t, st.Set(ctx, store.KeyWindowStartHour, []byte("10:00")))
	require.NoError(t, st.Set(ctx, store.KeyWindowEndHour, []byte("20:00")))

	cfg := LoadConfig(ctx, st, slog.Default())
	require.Equal(t, 15, cfg.IntervalMinutes)
	require.Equal(t, 10, cfg.WindowStartHour)
	require.Equal(t, 20, cfg.WindowEndHour)
}

func TestLoadConfig_MidnightEndHourIsEndOfDay(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	// 21:00 по Бразилии — полночь UTC; настройка не должна теряться.
	utc, err := DisplayToSchedulingHour("21:00")
	require.NoError(t, err)
	require.Equal(t, "00:00", utc)
	require.NoError(t, st.Set(ctx, store.KeyWindowEndHour, []byte(utc)))

	cfg := LoadConfig(ctx, st, slog.Default())
	require.Equal(t, 24, cfg.WindowEndHour)
	require.True(t, InWindow(time.Date(2025, 6, 10, 23, 30, 0, 0, time.UTC),
		cfg.WindowStartHour, cfg.WindowEndHour))
}

func TestLoadConfig_IntervalOutsideGridFallsBack(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, store.KeyIntervalMinutes, []byte("7")))

	cfg := LoadConfig(ctx, st, slog.Default())
	require.Equal(t, DefaultIntervalMinutes, cfg.IntervalMinutes)
}

func TestLoadConfig_BareHourNumber(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, store.KeyWindowStartHour, []byte("11")))

	cfg := LoadConfig(ctx, st, slog.Default())
	require.Equal(t, 11, cfg.WindowStartHour)
}

func TestLoadConfig_GarbageIgnored(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, store.KeyIntervalMinutes, []byte("soon")))
	require.NoError(t, st.Set(ctx, store.KeyWindowStartHour, []byte("manhã")))

	cfg := LoadConfig(ctx, st, slog.Default())
	require.Equal(t, DefaultIntervalMinutes, cfg.IntervalMinutes)
	require.Equal(t, DefaultWindowStartHour, cfg.WindowStartHour)
}

package monitor

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rastreiolabs/enviowatch/internal/store"
)

const (
	DefaultIntervalMinutes = 10
	DefaultWindowStartHour = 9  // 06:00 по Бразилии
	DefaultWindowEndHour   = 21 // 18:00 по Бразилии
)

// Разрешённая сетка интервалов опроса в минутах. Значения вне сетки
// молча заменяются дефолтом: конфиг правится руками через админку,
// опечатка не должна останавливать мониторинг.
var allowedIntervals = map[int]struct{}{
	2: {}, 10: {}, 15: {}, 20: {}, 30: {}, 45: {}, 60: {}, 120: {}, 180: {}, 240: {},
}

// Config — горячая часть конфигурации: читается из стора перед каждым
// (пере)запуском джобы, чтобы изменения применялись без рестарта.
type Config struct {
	IntervalMinutes int
	WindowStartHour int // UTC, включительно
	WindowEndHour   int // UTC, исключительно
}

func LoadConfig(ctx context.Context, st store.Store, log *slog.Logger) Config {
	cfg := Config{
		IntervalMinutes: DefaultIntervalMinutes,
		WindowStartHour: DefaultWindowStartHour,
		WindowEndHour:   DefaultWindowEndHour,
	}

	if raw, ok := getString(ctx, st, store.KeyIntervalMinutes); ok {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			if _, allowed := allowedIntervals[v]; allowed {
				cfg.IntervalMinutes = v
			} else {
				log.Warn("interval outside allowed grid, using default",
					slog.Int("interval", v), slog.Int("default", DefaultIntervalMinutes))
			}
		}
	}
	if h, ok := getHour(ctx, st, store.KeyWindowStartHour); ok && h >= 0 && h <= 23 {
		cfg.WindowStartHour = h
	}
	if h, ok := getHour(ctx, st, store.KeyWindowEndHour); ok {
		// "00:00" — полночь UTC, то есть конец суток: храним как 24.
		if h == 0 {
			h = 24
		}
		if h >= 1 && h <= 24 {
			cfg.WindowEndHour = h
		}
	}
	return cfg
}

func getString(ctx context.Context, st store.Store, key string) (string, bool) {
	b, ok, err := st.Get(ctx, key)
	if err != nil || !ok {
		return "", false
	}
	return string(b), true
}

// Часы окна хранятся как "HH:MM" (минуты игнорируются) либо как голое число.
func getHour(ctx context.Context, st store.Store, key string) (int, bool) {
	raw, ok := getString(ctx, st, key)
	if !ok {
		return 0, false
	}
	raw = strings.TrimSpace(raw)
	if h, _, err := parseHHMM(raw); err == nil {
		return h, true
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v, true
	}
	return 0, false
}

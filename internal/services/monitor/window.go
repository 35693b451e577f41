package monitor

import (
	"fmt"
	"time"
)

// Расписание считается в UTC (таймзона шедулера и стора); окно мониторинга
// вводится и показывается в бразильском времени (display-таймзона).
const displayTimezone = "America/Sao_Paulo"

func displayLocation() *time.Location {
	loc, err := time.LoadLocation(displayTimezone)
	if err != nil {
		// Без tzdata в окружении: Бразилия без перехода на летнее время с 2019.
		return time.FixedZone("-03", -3*60*60)
	}
	return loc
}

// InWindow — попадает ли момент в окно [startHour, endHour) по часам UTC.
// Проверяется в момент срабатывания, а не планирования.
func InWindow(now time.Time, startHour, endHour int) bool {
	h := now.UTC().Hour()
	return h >= startHour && h < endHour
}

// NextValidRun возвращает ближайший момент (UTC), который одновременно
// выровнен по сетке интервала и попадает в окно мониторинга.
// Поиск ограничен, чтобы гарантировать завершение даже на патологическом
// конфиге (пустое окно).
func NextValidRun(now time.Time, intervalMinutes, startHour, endHour int) time.Time {
	now = now.UTC()

	var next time.Time
	switch {
	case intervalMinutes == 60:
		next = now.Truncate(time.Hour).Add(time.Hour)
	case intervalMinutes < 60:
		rem := now.Minute() % intervalMinutes
		add := intervalMinutes - rem
		if rem == 0 && now.Second() == 0 {
			add = intervalMinutes
		}
		next = now.Truncate(time.Minute).Add(time.Duration(add) * time.Minute)
	default:
		// Интервалы >= 120 минут: следующий час, кратный шагу.
		stepHours := intervalMinutes / 60
		base := now.Truncate(time.Hour)
		if !base.Equal(now) {
			base = base.Add(time.Hour)
		}
		addHours := (stepHours - base.Hour()%stepHours) % stepHours
		if addHours == 0 && base.Equal(now) {
			addHours = stepHours
		}
		next = base.Add(time.Duration(addHours) * time.Hour)
	}

	for i := 0; i < 4; i++ {
		h := next.Hour()
		if h >= startHour && h < endHour {
			break
		}
		if h < startHour {
			// Начало окна само по себе лежит на сетке минутных интервалов.
			next = time.Date(next.Year(), next.Month(), next.Day(), startHour, 0, 0, 0, time.UTC)
			continue
		}
		// Проскочили окно сегодня: начало окна завтра.
		next = time.Date(next.Year(), next.Month(), next.Day(), startHour, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}

	return next
}

// DisplayToSchedulingHour конвертирует "HH:MM" из display-таймзоны в UTC.
// Для целых часов конверсия детерминированна и обратима.
func DisplayToSchedulingHour(hhmm string) (string, error) {
	h, m, err := parseHHMM(hhmm)
	if err != nil {
		return "", err
	}
	loc := displayLocation()
	nowDate := time.Now().In(loc)
	dt := time.Date(nowDate.Year(), nowDate.Month(), nowDate.Day(), h, m, 0, 0, loc)
	return dt.UTC().Format("15:04"), nil
}

// SchedulingToDisplayHour — обратная конверсия, "HH:MM" UTC -> display.
func SchedulingToDisplayHour(hhmm string) (string, error) {
	h, m, err := parseHHMM(hhmm)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	dt := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, time.UTC)
	return dt.In(displayLocation()).Format("15:04"), nil
}

func parseHHMM(hhmm string) (int, int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", hhmm)
	}
	return t.Hour(), t.Minute(), nil
}

package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rastreiolabs/enviowatch/internal/integrations/melhorenvio"
	"github.com/rastreiolabs/enviowatch/internal/store"
)

func newTestScheduler(t *testing.T, st store.Store, mon *Monitor) *Scheduler {
	t.Helper()
	s := NewScheduler(st, mon, time.Hour)
	t.Cleanup(s.Shutdown)
	return s
}

func TestScheduler_StartMonitorAlignsFirstRun(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, store.KeyIntervalMinutes, []byte("15")))

	m := newTestMonitor(st, &fakeOrders{}, newFakeTracker(), &fakeSender{})
	s := newTestScheduler(t, st, m)
	s.now = func() time.Time {
		return time.Date(2025, 6, 10, 10, 7, 0, 0, time.UTC)
	}

	first, err := s.StartMonitor(ctx)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 10, 10, 15, 0, 0, time.UTC), first)
	require.True(t, s.MonitorRunning())
	require.Equal(t, first, s.NextPollAt())
}

func TestScheduler_StopMonitorKeepsRuntime(t *testing.T) {
	st := newMemStore()
	m := newTestMonitor(st, &fakeOrders{}, newFakeTracker(), &fakeSender{})
	s := newTestScheduler(t, st, m)

	_, err := s.StartMonitor(context.Background())
	require.NoError(t, err)
	s.StopMonitor()
	require.False(t, s.MonitorRunning())

	// Рантайм жив: джобу можно переустановить.
	_, err = s.StartMonitor(context.Background())
	require.NoError(t, err)
	require.True(t, s.MonitorRunning())
}

func TestScheduler_ShutdownIsIdempotent(t *testing.T) {
	st := newMemStore()
	m := newTestMonitor(st, &fakeOrders{}, newFakeTracker(), &fakeSender{})
	s := NewScheduler(st, m, time.Hour)

	require.NoError(t, s.StartWelcome())
	s.Shutdown()
	s.Shutdown()

	_, err := s.StartMonitor(context.Background())
	require.ErrorIs(t, err, ErrSchedulerClosed)
	require.ErrorIs(t, s.StartWelcome(), ErrSchedulerClosed)
}

// recordingOrders сигналит о каждом листинге, не блокируя обход.
type recordingOrders struct {
	calls chan struct{}
}

func (o *recordingOrders) ListPosted(context.Context, string) ([]melhorenvio.Shipment, error) {
	select {
	case o.calls <- struct{}{}:
	default:
	}
	return nil, nil
}

func waitCall(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected run did not happen")
	}
}

func noCall(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("run fired despite the gate")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScheduler_PollGatedByWindow(t *testing.T) {
	st := newMemStore()
	setToken(t, st)

	orders := &recordingOrders{calls: make(chan struct{}, 4)}
	m := newTestMonitor(st, &fakeOrders{}, newFakeTracker(), &fakeSender{})
	m.orders = orders
	s := newTestScheduler(t, st, m)

	j := newJob()
	// 03:00 UTC — до начала окна, тик пропускается.
	s.now = func() time.Time { return time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC) }
	s.firePoll(j)
	noCall(t, orders.calls)

	s.now = func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }
	s.firePoll(j)
	waitCall(t, orders.calls)
}

func TestScheduler_WelcomeGatedByWindow(t *testing.T) {
	st := newMemStore()
	setToken(t, st)

	orders := &recordingOrders{calls: make(chan struct{}, 4)}
	m := newTestMonitor(st, &fakeOrders{}, newFakeTracker(), &fakeSender{})
	m.orders = orders
	s := newTestScheduler(t, st, m)

	j := newJob()
	s.now = func() time.Time { return time.Date(2025, 6, 10, 22, 30, 0, 0, time.UTC) }
	s.fireWelcome(j)
	noCall(t, orders.calls)

	s.now = func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }
	s.fireWelcome(j)
	waitCall(t, orders.calls)
}

func TestScheduler_WelcomeSkippedWhenPollImminent(t *testing.T) {
	st := newMemStore()
	setToken(t, st)

	orders := &recordingOrders{calls: make(chan struct{}, 4)}
	m := newTestMonitor(st, &fakeOrders{}, newFakeTracker(), &fakeSender{})
	m.orders = orders
	s := newTestScheduler(t, st, m)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// Джоба обхода «установлена», цикл не запущен: done закрыт заранее,
	// чтобы halt при Shutdown не ждал.
	pj := newJob()
	close(pj.done)
	pj.nextFire.Store(now.Add(5 * time.Minute).UnixNano())
	s.mu.Lock()
	s.poll = pj
	s.mu.Unlock()

	wj := newJob()
	s.fireWelcome(wj)
	noCall(t, orders.calls)

	// Обход нескоро — приветственный проход выполняется.
	pj.nextFire.Store(now.Add(30 * time.Minute).UnixNano())
	s.fireWelcome(wj)
	waitCall(t, orders.calls)
}

// gateOrders блокирует листинг до release — чтобы поймать обход в полёте.
type gateOrders struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateOrders) ListPosted(ctx context.Context, _ string) ([]melhorenvio.Shipment, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return nil, nil
}

func TestScheduler_TriggerPollCoalesces(t *testing.T) {
	st := newMemStore()
	setToken(t, st)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	orders := &gateOrders{entered: entered, release: release}

	m := newTestMonitor(st, &fakeOrders{}, newFakeTracker(), &fakeSender{})
	m.orders = orders
	s := newTestScheduler(t, st, m)

	require.True(t, s.TriggerPoll())
	<-entered

	// Пока обход идёт, второй триггер отклоняется.
	require.False(t, s.TriggerPoll())

	close(release)
	require.Eventually(t, func() bool {
		return s.TriggerPoll()
	}, time.Second, 10*time.Millisecond)
}

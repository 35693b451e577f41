package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/rastreiolabs/enviowatch/internal/store"
)

var ErrSchedulerClosed = errors.New("scheduler is shut down")

// job — одна периодическая джоба. В полёте не больше одного запуска:
// опоздавший тик пропускается, а не ставится в очередь.
type job struct {
	stop     chan struct{}
	done     chan struct{}
	inFlight atomic.Bool
	nextFire atomic.Int64 // unix nano следующего срабатывания
}

func newJob() *job {
	return &job{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (j *job) halt() {
	select {
	case <-j.stop:
	default:
		close(j.stop)
	}
	<-j.done
}

// Scheduler владеет двумя джобами поверх одного рантайма: основной обход
// (интервал из стора, первое срабатывание от калькулятора окна) и
// приветственный проход с коротким фиксированным интервалом.
type Scheduler struct {
	st  store.Store
	mon *Monitor
	log *slog.Logger

	welcomeEvery time.Duration
	proximity    time.Duration

	now func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	poll    *job
	welcome *job
	closed  bool

	manualInFlight atomic.Bool
}

func NewScheduler(st store.Store, mon *Monitor, welcomeEvery time.Duration) *Scheduler {
	if welcomeEvery <= 0 {
		welcomeEvery = 30 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		st:  st,
		mon: mon,
		log: slog.Default(),

		welcomeEvery: welcomeEvery,
		proximity:    10 * time.Minute,

		now: func() time.Time { return time.Now().UTC() },

		baseCtx: ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) WithLogger(log *slog.Logger) *Scheduler {
	if log != nil {
		s.log = log
	}
	return s
}

// StartMonitor (пере)устанавливает джобу обхода по текущему конфигу из
// стора. Возвращает момент первого срабатывания. Повторный вызов — это
// реконфигурация: старая джоба снимается атомарно.
func (s *Scheduler) StartMonitor(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return time.Time{}, ErrSchedulerClosed
	}

	if s.poll != nil {
		s.poll.halt()
		s.poll = nil
	}

	cfg := LoadConfig(ctx, s.st, s.log)
	first := NextValidRun(s.now(), cfg.IntervalMinutes, cfg.WindowStartHour, cfg.WindowEndHour)

	j := newJob()
	j.nextFire.Store(first.UnixNano())
	s.poll = j
	go s.runPollLoop(j, first, time.Duration(cfg.IntervalMinutes)*time.Minute)

	s.log.Info("monitor scheduled",
		slog.Int("interval_minutes", cfg.IntervalMinutes),
		slog.Time("first_run", first))
	return first, nil
}

// StopMonitor снимает джобу обхода, рантайм остаётся живым для рестарта.
func (s *Scheduler) StopMonitor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poll != nil {
		s.poll.halt()
		s.poll = nil
		s.log.Info("monitor stopped")
	}
}

// StartWelcome запускает приветственную джобу, если она ещё не идёт.
func (s *Scheduler) StartWelcome() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	if s.welcome != nil {
		return nil
	}
	j := newJob()
	s.welcome = j
	go s.runWelcomeLoop(j)
	s.log.Info("welcome job scheduled", slog.Duration("every", s.welcomeEvery))
	return nil
}

// MonitorRunning — установлена ли джоба обхода.
func (s *Scheduler) MonitorRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poll != nil
}

// NextPollAt — момент следующего срабатывания обхода (zero, если не идёт).
func (s *Scheduler) NextPollAt() time.Time {
	s.mu.Lock()
	j := s.poll
	s.mu.Unlock()
	if j == nil {
		return time.Time{}
	}
	n := j.nextFire.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// TriggerPoll запускает внеочередной обход, минуя окно: админ попросил
// явно. false — обход уже идёт либо шедулер остановлен.
func (s *Scheduler) TriggerPoll() bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}
	if !s.manualInFlight.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer s.manualInFlight.Store(false)
		if _, err := s.mon.Poll(s.baseCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("manual poll failed", slog.String("error", err.Error()))
		}
	}()
	return true
}

// Shutdown останавливает всё. Идемпотентен.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	if s.poll != nil {
		s.poll.halt()
		s.poll = nil
	}
	if s.welcome != nil {
		s.welcome.halt()
		s.welcome = nil
	}
	s.log.Info("scheduler shut down")
}

func (s *Scheduler) runPollLoop(j *job, first time.Time, every time.Duration) {
	defer close(j.done)

	wait := time.Until(first)
	if wait < 0 {
		wait = 0
	}
	t := time.NewTimer(wait)
	defer t.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-s.baseCtx.Done():
			return
		case <-t.C:
			j.nextFire.Store(s.now().Add(every).UnixNano())
			s.firePoll(j)
			t.Reset(every)
		}
	}
}

func (s *Scheduler) firePoll(j *job) {
	now := s.now()
	cfg := LoadConfig(s.baseCtx, s.st, s.log)
	if !InWindow(now, cfg.WindowStartHour, cfg.WindowEndHour) {
		s.log.Debug("outside monitoring window, skipping poll",
			slog.Int("hour", now.Hour()),
			slog.Int("start", cfg.WindowStartHour),
			slog.Int("end", cfg.WindowEndHour))
		return
	}
	if !j.inFlight.CompareAndSwap(false, true) {
		s.log.Warn("previous poll still in flight, skipping tick")
		return
	}
	go func() {
		defer j.inFlight.Store(false)
		if _, err := s.mon.Poll(s.baseCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("poll failed", slog.String("error", err.Error()))
		}
	}()
}

func (s *Scheduler) runWelcomeLoop(j *job) {
	defer close(j.done)

	t := time.NewTicker(s.welcomeEvery)
	defer t.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-s.baseCtx.Done():
			return
		case <-t.C:
			s.fireWelcome(j)
		}
	}
}

func (s *Scheduler) fireWelcome(j *job) {
	now := s.now()
	cfg := LoadConfig(s.baseCtx, s.st, s.log)
	if !InWindow(now, cfg.WindowStartHour, cfg.WindowEndHour) {
		return
	}
	// Скоро основной обход: он сам поприветствует, не дублируем запросы.
	s.mu.Lock()
	p := s.poll
	s.mu.Unlock()
	if p != nil {
		if n := p.nextFire.Load(); n > 0 {
			if until := time.Unix(0, n).Sub(now); until >= 0 && until < s.proximity {
				s.log.Debug("poll is imminent, skipping welcome run")
				return
			}
		}
	}
	if !j.inFlight.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer j.inFlight.Store(false)
		if _, err := s.mon.WelcomeRun(s.baseCtx); err != nil &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, ErrNoToken) {
			s.log.Error("welcome run failed", slog.String("error", err.Error()))
		}
	}()
}

package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/rastreiolabs/enviowatch/internal/integrations/melhorenvio"
	"github.com/rastreiolabs/enviowatch/internal/integrations/melhorrastreio"
	"github.com/rastreiolabs/enviowatch/internal/models"
	"github.com/rastreiolabs/enviowatch/internal/services/composer"
	"github.com/rastreiolabs/enviowatch/internal/store"
)

// ErrNoToken — в сторе нет токена API заказов; обход не запускается.
var ErrNoToken = errors.New("orders api token not configured")

type OrderSource interface {
	ListPosted(ctx context.Context, token string) ([]melhorenvio.Shipment, error)
}

type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

type Renderer interface {
	Render(ctx context.Context, kind composer.TemplateKind, v composer.Vars) string
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Monitor выполняет один обход: листинг отправленных заказов, запрос
// трекинга по каждому, дифф с сохранённым состоянием, уведомления и GC
// исчезнувших заказов.
type Monitor struct {
	store   store.Store
	orders  OrderSource
	tracker melhorrastreio.Client
	sender  Sender
	comp    Renderer

	// producer опционален: события о нотификациях уходят в Kafka,
	// если брокер сконфигурирован.
	producer Producer
	topic    string

	policy RetryPolicy
	r      Rand
	sleep  func(ctx context.Context, d time.Duration) bool

	log *slog.Logger

	startedAtUnixNano int64
	lastRunUnixNano   atomic.Int64
	totalProcessed    atomic.Int64
	totalNotified     atomic.Int64
	totalRemoved      atomic.Int64
	totalErrors       atomic.Int64
	running           atomic.Bool
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(st store.Store, orders OrderSource, tracker melhorrastreio.Client, sender Sender, comp Renderer) *Monitor {
	return &Monitor{
		store:   st,
		orders:  orders,
		tracker: tracker,
		sender:  sender,
		comp:    comp,

		policy: DefaultRetryPolicy(),
		r:      newRand(),
		sleep:  sleepCtx,

		log: slog.Default(),

		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (m *Monitor) WithPolicy(p RetryPolicy) *Monitor {
	m.policy = normalizePolicy(p)
	return m
}

func (m *Monitor) WithRand(r Rand) *Monitor {
	if r != nil {
		m.r = r
	}
	return m
}

func (m *Monitor) WithProducer(p Producer, topic string) *Monitor {
	m.producer = p
	m.topic = topic
	return m
}

func (m *Monitor) WithLogger(log *slog.Logger) *Monitor {
	if log != nil {
		m.log = log
	}
	return m
}

// Summary — итог одного обхода.
type Summary struct {
	Processed int `json:"processed"`
	Notified  int `json:"notified"`
	Removed   int `json:"removed"`
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	Running        bool       `json:"running"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalNotified  int64      `json:"totalNotified"`
	TotalRemoved   int64      `json:"totalRemoved"`
	TotalErrors    int64      `json:"totalErrors"`
	LastError      string     `json:"lastError,omitempty"`
}

func (m *Monitor) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, m.startedAtUnixNano).UTC(),
		Running:        m.running.Load(),
		TotalProcessed: m.totalProcessed.Load(),
		TotalNotified:  m.totalNotified.Load(),
		TotalRemoved:   m.totalRemoved.Load(),
		TotalErrors:    m.totalErrors.Load(),
	}
	if n := m.lastRunUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastRunAt = &t
	}
	m.lastErrorMu.Lock()
	st.LastError = m.lastError
	m.lastErrorMu.Unlock()
	return st
}

func (m *Monitor) noteError(err error) {
	m.totalErrors.Add(1)
	m.lastErrorMu.Lock()
	m.lastError = err.Error()
	m.lastErrorMu.Unlock()
}

// Poll выполняет полный обход. Ошибки отдельных заказов не прерывают
// обход; фатальны только отсутствие токена, недоступность листинга и
// отмена контекста.
func (m *Monitor) Poll(ctx context.Context) (Summary, error) {
	m.lastRunUnixNano.Store(time.Now().UTC().UnixNano())
	m.running.Store(true)
	defer m.running.Store(false)

	var sum Summary

	tokenRaw, ok, err := m.store.Get(ctx, store.KeyOrdersToken)
	if err != nil {
		m.noteError(err)
		return sum, errors.Wrap(err, "read orders token")
	}
	if !ok || len(tokenRaw) == 0 {
		return sum, ErrNoToken
	}

	shipments, err := m.orders.ListPosted(ctx, string(tokenRaw))
	if err != nil {
		m.noteError(err)
		return sum, errors.Wrap(err, "list posted orders")
	}
	m.log.Info("poll started", slog.Int("shipments", len(shipments)))

	current := make(map[string]struct{}, len(shipments))
	rq := newRetryQueue()

	for i, sh := range shipments {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if sh.ID == "" {
			continue
		}
		current[sh.ID] = struct{}{}

		// Без телефона уведомлять некого — не тратим запрос к трекингу.
		if sh.To.Phone == "" {
			m.log.Warn("shipment has no recipient phone, skipping", slog.String("shipment_id", sh.ID))
			continue
		}

		if i > 0 {
			if !m.sleep(ctx, randDuration(m.r, m.policy.ItemMinDelay, m.policy.ItemMaxDelay)) {
				return sum, ctx.Err()
			}
		}

		code := trackingCode(sh)
		res, trackErr, deferred := m.lookup(ctx, code)
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if deferred {
			m.log.Warn("rate limited, deferring shipment",
				slog.String("shipment_id", sh.ID), slog.String("code", code))
			rq.add(sh, code)
			continue
		}

		notified, perr := m.apply(ctx, sh, code, res, trackErr, true)
		if perr != nil {
			m.noteError(perr)
			m.log.Error("process shipment",
				slog.String("shipment_id", sh.ID), slog.String("error", perr.Error()))
		}
		sum.Processed++
		if notified {
			sum.Notified++
		}
	}

	resolved, err := m.drainRetryQueue(ctx, rq)
	sum.Processed += resolved
	if err != nil {
		return sum, err
	}

	removed, err := m.collectVanished(ctx, current)
	sum.Removed = removed
	if err != nil {
		m.noteError(err)
		m.log.Error("gc vanished shipments", slog.String("error", err.Error()))
	}

	m.totalProcessed.Add(int64(sum.Processed))
	m.totalNotified.Add(int64(sum.Notified))
	m.totalRemoved.Add(int64(sum.Removed))

	m.log.Info("poll finished",
		slog.Int("processed", sum.Processed),
		slog.Int("notified", sum.Notified),
		slog.Int("removed", sum.Removed))
	return sum, nil
}

// trackingCode — код перевозчика, если есть, иначе собственный код заказа.
func trackingCode(sh melhorenvio.Shipment) string {
	if sh.Tracking != "" {
		return sh.Tracking
	}
	return sh.SelfTracking
}

// lookup делает запрос трекинга с inline-ретраями. deferred=true означает
// «перебор rate-limit, положить в отложенную очередь».
func (m *Monitor) lookup(ctx context.Context, code string) (melhorrastreio.Result, error, bool) {
	if code == "" {
		return melhorrastreio.Result{}, errors.New("shipment has no tracking code"), false
	}

	for attempt := 1; ; attempt++ {
		res, err := m.tracker.Track(ctx, code)
		if err == nil {
			return res, nil, false
		}
		if ctx.Err() != nil {
			return melhorrastreio.Result{}, ctx.Err(), false
		}

		switch melhorrastreio.KindOf(err) {
		case melhorrastreio.KindRateLimited:
			if attempt >= m.policy.MaxAttempts {
				return melhorrastreio.Result{}, err, true
			}
			if !m.sleep(ctx, randDuration(m.r, m.policy.RateLimitMinBackoff, m.policy.RateLimitMaxBackoff)) {
				return melhorrastreio.Result{}, ctx.Err(), false
			}
		case melhorrastreio.KindTimeout:
			if attempt >= m.policy.MaxAttempts {
				return melhorrastreio.Result{}, err, false
			}
			if !m.sleep(ctx, randDuration(m.r, m.policy.TransientMinBackoff, m.policy.TransientMaxBackoff)) {
				return melhorrastreio.Result{}, ctx.Err(), false
			}
		default:
			// not_found и прочие ошибки терминальны сразу.
			return melhorrastreio.Result{}, err, false
		}
	}
}

// apply объединяет результат с сохранённой записью, решает, нужно ли
// уведомление, отправляет и персистит. decideNotify=false — слить только
// состояние (путь отложенной очереди).
func (m *Monitor) apply(ctx context.Context, sh melhorenvio.Shipment, code string, res melhorrastreio.Result, trackErr error, decideNotify bool) (bool, error) {
	isError := trackErr != nil

	old, existed := m.loadRecord(ctx, sh.ID)

	rec := models.ShipmentRecord{
		ID:             sh.ID,
		RecipientName:  sh.To.Name,
		RecipientPhone: sh.To.Phone,

		CarrierTrackingCode: sh.Tracking,
		SelfTrackingCode:    sh.SelfTracking,

		LastSnapshot: old.LastSnapshot,
		WelcomeSent:  old.WelcomeSent,
	}
	if rec.RecipientName == "" {
		rec.RecipientName = old.RecipientName
	}
	if rec.RecipientPhone == "" {
		rec.RecipientPhone = old.RecipientPhone
	}

	var newEvent *models.TrackingEvent
	if !isError {
		snap := &models.TrackingSnapshot{
			OriginalCode:  res.OriginalCode,
			CurrentStatus: res.CurrentStatus,
			QueriedAt:     res.QueriedAt.UTC().Format(time.RFC3339),
		}
		if len(res.Events) > 0 {
			ev := res.Events[0]
			snap.LastEvent = &ev
			newEvent = &ev
		}
		rec.LastSnapshot = snap
	}

	needWelcome := false
	needUpdate := false
	if decideNotify && !isError && newEvent != nil {
		// Записи, мигрировавшие со старой схемы без флага приветствия,
		// но с уже накопленными событиями, считаем уже поприветствованными.
		alreadyWelcomed := old.WelcomeSent ||
			(existed && old.LastSnapshot != nil && old.LastSnapshot.LastEvent != nil)
		if !alreadyWelcomed {
			needWelcome = true
		} else if old.LastSnapshot == nil || old.LastSnapshot.LastEvent == nil ||
			!old.LastSnapshot.LastEvent.Equal(*newEvent) {
			needUpdate = true
		}
	}

	if err := m.saveRecord(ctx, &rec); err != nil {
		return false, err
	}

	if isError {
		m.writeErrorRecord(ctx, sh.ID, trackErr)
		return false, nil
	}
	m.clearErrorRecord(ctx, sh.ID)

	if !needWelcome && !needUpdate {
		return false, nil
	}

	kind := composer.KindUpdate
	if needWelcome {
		kind = composer.KindWelcome
	}
	text := m.comp.Render(ctx, kind, composer.Vars{
		ClientName:   rec.RecipientName,
		TrackingCode: code,
		Event:        newEvent,
		QueriedAt:    rec.LastSnapshot.QueriedAt,
	})

	if rec.RecipientPhone == "" {
		m.log.Warn("shipment has no phone, skip notification", slog.String("shipment_id", sh.ID))
		return false, nil
	}
	if err := m.sender.Send(ctx, rec.RecipientPhone, text); err != nil {
		// Флаг приветствия не выставляем: следующий обход попробует снова.
		return false, errors.Wrap(err, "send whatsapp")
	}

	if needWelcome {
		rec.WelcomeSent = true
		if err := m.saveRecord(ctx, &rec); err != nil {
			return true, err
		}
	}

	m.publishNotified(ctx, &rec, string(kind), newEvent)
	return true, nil
}

func (m *Monitor) loadRecord(ctx context.Context, id string) (models.ShipmentRecord, bool) {
	b, ok, err := m.store.Get(ctx, store.ShipmentKey(id))
	if err != nil || !ok {
		if err != nil {
			m.log.Error("load shipment record", slog.String("shipment_id", id), slog.String("error", err.Error()))
		}
		return models.ShipmentRecord{ID: id}, false
	}
	var rec models.ShipmentRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		// Битая запись трактуется как отсутствующая: перезапишем свежей.
		m.log.Error("corrupt shipment record", slog.String("shipment_id", id), slog.String("error", err.Error()))
		return models.ShipmentRecord{ID: id}, false
	}
	rec.ID = id
	return rec, true
}

func (m *Monitor) saveRecord(ctx context.Context, rec *models.ShipmentRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal shipment record")
	}
	return errors.Wrap(m.store.Set(ctx, store.ShipmentKey(rec.ID), b), "save shipment record")
}

type errorRecord struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

// Side-запись с последней ошибкой: диагностика для админки, на ретраи
// и уведомления не влияет.
func (m *Monitor) writeErrorRecord(ctx context.Context, id string, trackErr error) {
	b, _ := json.Marshal(errorRecord{
		Error:     trackErr.Error(),
		Kind:      melhorrastreio.KindOf(trackErr).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err := m.store.Set(ctx, store.ShipmentErrorKey(id), b); err != nil {
		m.log.Error("write error record", slog.String("shipment_id", id), slog.String("error", err.Error()))
	}
}

func (m *Monitor) clearErrorRecord(ctx context.Context, id string) {
	if err := m.store.Delete(ctx, store.ShipmentErrorKey(id)); err != nil {
		m.log.Error("clear error record", slog.String("shipment_id", id), slog.String("error", err.Error()))
	}
}

// collectVanished удаляет записи заказов, которых больше нет в листинге
// (доставлены или отменены), вместе с их side-записями.
func (m *Monitor) collectVanished(ctx context.Context, current map[string]struct{}) (int, error) {
	var stale []string
	err := m.store.Iterate(ctx, store.ShipmentKeyPrefix, func(key string, _ []byte) error {
		id, ok := store.ShipmentIDFromKey(key)
		if !ok {
			return nil
		}
		if _, live := current[id]; !live {
			stale = append(stale, id)
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "iterate shipments")
	}

	removed := 0
	for _, id := range stale {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if err := m.store.Delete(ctx, store.ShipmentKey(id)); err != nil {
			m.log.Error("delete shipment record", slog.String("shipment_id", id), slog.String("error", err.Error()))
			continue
		}
		_ = m.store.Delete(ctx, store.ShipmentErrorKey(id))
		m.log.Info("shipment removed", slog.String("shipment_id", id))
		removed++
	}
	return removed, nil
}

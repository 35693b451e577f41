package monitor

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/rastreiolabs/enviowatch/internal/store"
)

// WelcomeRun — лёгкий проход для приветствий: обходит листинг и греетит
// только заказы, у которых ещё нет ни флага, ни накопленного трекинга.
// Нужен, потому что основной обход может идти с интервалом до 4 часов,
// а приветствие хочется отправить вскоре после появления заказа.
func (m *Monitor) WelcomeRun(ctx context.Context) (int, error) {
	tokenRaw, ok, err := m.store.Get(ctx, store.KeyOrdersToken)
	if err != nil {
		return 0, errors.Wrap(err, "read orders token")
	}
	if !ok || len(tokenRaw) == 0 {
		return 0, ErrNoToken
	}

	shipments, err := m.orders.ListPosted(ctx, string(tokenRaw))
	if err != nil {
		m.noteError(err)
		return 0, errors.Wrap(err, "list posted orders")
	}

	sent := 0
	queried := 0
	for _, sh := range shipments {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if sh.ID == "" || sh.To.Phone == "" {
			continue
		}

		old, existed := m.loadRecord(ctx, sh.ID)
		if existed && (old.WelcomeSent || (old.LastSnapshot != nil && old.LastSnapshot.LastEvent != nil)) {
			continue
		}

		if queried > 0 {
			if !m.sleep(ctx, randDuration(m.r, m.policy.ItemMinDelay, m.policy.ItemMaxDelay)) {
				return sent, ctx.Err()
			}
		}
		queried++

		code := trackingCode(sh)
		res, trackErr, deferred := m.lookup(ctx, code)
		if deferred {
			// Rate-limit: заказ греетнется на следующем проходе.
			continue
		}

		notified, perr := m.apply(ctx, sh, code, res, trackErr, true)
		if perr != nil {
			m.noteError(perr)
			m.log.Error("welcome shipment",
				slog.String("shipment_id", sh.ID), slog.String("error", perr.Error()))
			continue
		}
		if notified {
			sent++
			m.totalNotified.Add(1)
		}
	}

	if sent > 0 {
		m.log.Info("welcome run finished", slog.Int("sent", sent))
	}
	return sent, nil
}

package monitor

import (
	"context"
	"log/slog"

	"github.com/rastreiolabs/enviowatch/internal/integrations/melhorenvio"
	"github.com/rastreiolabs/enviowatch/internal/integrations/melhorrastreio"
)

// Отложенная очередь живёт внутри одного обхода и не переживает рестарт:
// недоставленный дифф догонится на следующем обходе.
type retryItem struct {
	sh   melhorenvio.Shipment
	code string
}

type retryQueue struct {
	items []retryItem
}

func newRetryQueue() *retryQueue {
	return &retryQueue{}
}

func (q *retryQueue) add(sh melhorenvio.Shipment, code string) {
	q.items = append(q.items, retryItem{sh: sh, code: code})
}

// drainRetryQueue добивает заказы, упершиеся в rate-limit во время обхода.
// Разрешившиеся (успех или не-rate-limit ошибка) сливаются в стор без
// повторного решения об уведомлении; уведомление отправит следующий обход.
func (m *Monitor) drainRetryQueue(ctx context.Context, rq *retryQueue) (int, error) {
	if len(rq.items) == 0 {
		return 0, nil
	}
	m.log.Info("draining retry queue", slog.Int("deferred", len(rq.items)))

	resolved := 0
	for round := 1; round <= m.policy.MaxRounds && len(rq.items) > 0; round++ {
		if !m.sleep(ctx, randDuration(m.r, m.policy.RoundMinBackoff, m.policy.RoundMaxBackoff)) {
			return resolved, ctx.Err()
		}

		var still []retryItem
		for i, it := range rq.items {
			if ctx.Err() != nil {
				return resolved, ctx.Err()
			}
			if i > 0 {
				if !m.sleep(ctx, randDuration(m.r, m.policy.ItemMinDelay, m.policy.ItemMaxDelay)) {
					return resolved, ctx.Err()
				}
			}

			res, err := m.tracker.Track(ctx, it.code)
			if err != nil && melhorrastreio.KindOf(err) == melhorrastreio.KindRateLimited {
				still = append(still, it)
				continue
			}

			if _, perr := m.apply(ctx, it.sh, it.code, res, err, false); perr != nil {
				m.noteError(perr)
				m.log.Error("retry queue merge",
					slog.String("shipment_id", it.sh.ID), slog.String("error", perr.Error()))
			}
			resolved++
		}
		rq.items = still
	}

	// Раунды исчерпаны: оставляем диагностическую запись, заказ
	// обработается на следующем обходе.
	for _, it := range rq.items {
		m.log.Warn("retry rounds exhausted", slog.String("shipment_id", it.sh.ID))
		m.writeErrorRecord(ctx, it.sh.ID, &melhorrastreio.Error{
			Kind: melhorrastreio.KindRateLimited,
			Msg:  "rate limit retries exhausted",
		})
		resolved++
	}
	rq.items = nil
	return resolved, nil
}

package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rastreiolabs/enviowatch/internal/broker/messages"
	"github.com/rastreiolabs/enviowatch/internal/models"
)

// publishNotified отправляет событие в Kafka best-effort: доставка
// уведомления уже состоялась, потеря события не откатывает флаги.
func (m *Monitor) publishNotified(ctx context.Context, rec *models.ShipmentRecord, kind string, ev *models.TrackingEvent) {
	if m.producer == nil || m.topic == "" {
		return
	}

	msg := messages.ShipmentNotified{
		ShipmentID: rec.ID,
		Kind:       kind,
		NotifiedAt: time.Now().UTC(),
	}
	if rec.CarrierTrackingCode != "" {
		msg.TrackingCode = rec.CarrierTrackingCode
	} else {
		msg.TrackingCode = rec.SelfTrackingCode
	}
	if ev != nil {
		msg.Status = ev.Title
	}

	b, err := json.Marshal(msg)
	if err != nil {
		m.log.Error("marshal notified event", slog.String("error", err.Error()))
		return
	}
	if err := m.producer.Publish(ctx, m.topic, []byte(rec.ID), b); err != nil {
		m.log.Error("publish notified event",
			slog.String("shipment_id", rec.ID), slog.String("error", err.Error()))
	}
}

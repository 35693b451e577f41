package messages

import "time"

// ShipmentNotified публикуется после успешно отправленного уведомления.
// Даунстрим (аналитика, CRM) подписывается на топик и не трогает стор.
type ShipmentNotified struct {
	ShipmentID   string    `json:"shipment_id"`
	TrackingCode string    `json:"tracking_code"`
	Kind         string    `json:"kind"` // welcome | update
	Status       string    `json:"status,omitempty"`
	NotifiedAt   time.Time `json:"notified_at"`
}

package models

import "encoding/json"

// TrackingEvent — одно событие статуса от источника отслеживания.
// Списки событий упорядочены от нового к старому; индекс 0 — текущее.
type TrackingEvent struct {
	RegisteredAt string `json:"registered_at"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	StatusCode   string `json:"status_code,omitempty"`
	Origin       string `json:"origin,omitempty"`
	Destination  string `json:"destination,omitempty"`
	Location     string `json:"location,omitempty"`
}

// Equal сравнивает события структурно, по всем полям. Изменение описания
// при том же времени регистрации — это тоже изменение.
func (e TrackingEvent) Equal(o TrackingEvent) bool {
	return e == o
}

// TrackingSnapshot хранит только последнее событие, без полной истории.
type TrackingSnapshot struct {
	OriginalCode  string         `json:"original_code,omitempty"`
	CurrentStatus string         `json:"current_status,omitempty"`
	LastEvent     *TrackingEvent `json:"last_event,omitempty"`
	QueriedAt     string         `json:"queried_at,omitempty"`
}

type ShipmentRecord struct {
	ID string `json:"-"`

	RecipientName  string `json:"name"`
	RecipientPhone string `json:"phone"`

	CarrierTrackingCode string `json:"tracking,omitempty"`
	SelfTrackingCode    string `json:"self_tracking,omitempty"`

	LastSnapshot *TrackingSnapshot `json:"last_snapshot,omitempty"`

	// WelcomeSent переходит false->true ровно один раз и назад не откатывается.
	WelcomeSent bool `json:"-"`
}

// shipmentRecordWire разводит одно поле WelcomeSent по двум историческим
// json-ключам: старые записи могут нести только один из них.
type shipmentRecordWire struct {
	RecipientName       string            `json:"name"`
	RecipientPhone      string            `json:"phone"`
	CarrierTrackingCode string            `json:"tracking,omitempty"`
	SelfTrackingCode    string            `json:"self_tracking,omitempty"`
	LastSnapshot        *TrackingSnapshot `json:"last_snapshot,omitempty"`
	WelcomeMessageSent  bool              `json:"welcome_message_sent"`
	FirstMessageSent    bool              `json:"first_message_sent"`
}

func (r ShipmentRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(shipmentRecordWire{
		RecipientName:       r.RecipientName,
		RecipientPhone:      r.RecipientPhone,
		CarrierTrackingCode: r.CarrierTrackingCode,
		SelfTrackingCode:    r.SelfTrackingCode,
		LastSnapshot:        r.LastSnapshot,
		WelcomeMessageSent:  r.WelcomeSent,
		FirstMessageSent:    r.WelcomeSent,
	})
}

func (r *ShipmentRecord) UnmarshalJSON(b []byte) error {
	var w shipmentRecordWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	r.RecipientName = w.RecipientName
	r.RecipientPhone = w.RecipientPhone
	r.CarrierTrackingCode = w.CarrierTrackingCode
	r.SelfTrackingCode = w.SelfTrackingCode
	r.LastSnapshot = w.LastSnapshot
	r.WelcomeSent = w.WelcomeMessageSent || w.FirstMessageSent
	return nil
}

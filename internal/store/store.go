package store

import (
	"context"
	"strings"
)

// Store — durable byte-string key/value map. Конкретный движок не важен:
// движки обязаны обеспечивать безопасный конкурентный доступ из нескольких
// горутин одного процесса, но не межпроцессные блокировки.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	// Iterate вызывает fn для каждой пары с данным префиксом (prefix == "" — весь стор).
	// Ошибка из fn прерывает обход и возвращается как есть.
	Iterate(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
	Close() error
}

// Ключи, которые использует ядро мониторинга.
const (
	KeyOrdersToken     = "token:melhor_envio"
	KeyIntervalMinutes = "config:interval_minutes"
	KeyWindowStartHour = "config:monitor_start_hour"
	KeyWindowEndHour   = "config:monitor_end_hour"
	KeyUpdateTemplate  = "config:whatsapp_template"
	KeyWelcomeTemplate = "config:whatsapp_template_welcome"

	ShipmentKeyPrefix = "etiqueta:"
	lastErrorSuffix   = ":last_error"
)

func ShipmentKey(id string) string {
	return ShipmentKeyPrefix + id
}

func ShipmentErrorKey(id string) string {
	return ShipmentKeyPrefix + id + lastErrorSuffix
}

// ShipmentIDFromKey извлекает id из ключа записи. Для side-ключей
// (":last_error") и посторонних ключей возвращает ok=false.
func ShipmentIDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, ShipmentKeyPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(key, ShipmentKeyPrefix)
	if id == "" || strings.HasSuffix(id, lastErrorSuffix) {
		return "", false
	}
	return id, true
}

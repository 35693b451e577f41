package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
storage:
  driver: "redis"
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
redis:
  host: "localhost"
  port: 6379
kafka:
  host: "localhost"
  port: 9092
  shipment_notified_topic_name: "shipment.notified"
whatsapp:
  token: "tok"
  from_phone: "+5511999990000"
  organization_id: "org"
monitor:
  http_addr: ":8080"
  tracking_mode: "fake"
  welcome_interval_minutes: 30
  autostart_monitor: true
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "redis", cfg.Storage.Driver)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, "shipment.notified", cfg.Kafka.ShipmentNotifiedTopicName)
	require.Equal(t, "tok", cfg.WhatsApp.Token)
	require.Equal(t, ":8080", cfg.Monitor.HTTPAddr)
	require.Equal(t, 30, cfg.Monitor.WelcomeIntervalMinutes)
	require.True(t, cfg.Monitor.AutostartMonitor)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/cfg.yaml")
	require.Error(t, err)
}

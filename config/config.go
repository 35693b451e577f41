package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

// StorageConfig выбирает бэкенд KV-стора: redis (дефолт) либо postgres.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "redis" | "postgres"
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// KafkaConfig опционален: без хоста события о нотификациях не публикуются.
type KafkaConfig struct {
	Host                      string `yaml:"host"`
	Port                      int    `yaml:"port"`
	ShipmentNotifiedTopicName string `yaml:"shipment_notified_topic_name"`
}

type WhatsAppConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	FromPhone      string `yaml:"from_phone"`
	OrganizationID string `yaml:"organization_id"`
}

type MonitorConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	OrdersBaseURL   string `yaml:"orders_base_url"`
	TrackingBaseURL string `yaml:"tracking_base_url"`
	// "fake" подменяет источник отслеживания детерминированной заглушкой.
	TrackingMode string `yaml:"tracking_mode"` // "live" | "fake"

	WelcomeIntervalMinutes  int `yaml:"welcome_interval_minutes"`
	TemplateCacheTTLSeconds int `yaml:"template_cache_ttl_seconds"`

	AutostartMonitor bool `yaml:"autostart_monitor"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rastreiolabs/enviowatch/config"
	"github.com/rastreiolabs/enviowatch/internal/broker/kafka"
	"github.com/rastreiolabs/enviowatch/internal/integrations/melhorenvio"
	"github.com/rastreiolabs/enviowatch/internal/integrations/melhorrastreio"
	mrfake "github.com/rastreiolabs/enviowatch/internal/integrations/melhorrastreio/fake"
	"github.com/rastreiolabs/enviowatch/internal/integrations/whatsapp"
	"github.com/rastreiolabs/enviowatch/internal/services/composer"
	"github.com/rastreiolabs/enviowatch/internal/services/monitor"
	"github.com/rastreiolabs/enviowatch/internal/store"
	"github.com/rastreiolabs/enviowatch/internal/store/pgkv"
	"github.com/rastreiolabs/enviowatch/internal/store/rediskv"
)

type appFactories struct {
	newStore    func(cfg *config.Config) (store.Store, error)
	newOrders   func(cfg *config.Config) monitor.OrderSource
	newTracker  func(cfg *config.Config) melhorrastreio.Client
	newSender   func(cfg *config.Config) monitor.Sender
	newProducer func(cfg *config.Config) monitor.Producer
}

func defaultFactories() appFactories {
	return appFactories{
		newStore: func(cfg *config.Config) (store.Store, error) {
			switch cfg.Storage.Driver {
			case "", "redis":
				addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
				return rediskv.New(addr), nil
			case "postgres":
				sslMode := cfg.Database.SSLMode
				if sslMode == "" {
					sslMode = "disable"
				}
				connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
					cfg.Database.Username, cfg.Database.Password, cfg.Database.Host,
					cfg.Database.Port, cfg.Database.DBName, sslMode)
				return pgkv.New(connString)
			default:
				return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
			}
		},
		newOrders: func(cfg *config.Config) monitor.OrderSource {
			return melhorenvio.New(cfg.Monitor.OrdersBaseURL)
		},
		newTracker: func(cfg *config.Config) melhorrastreio.Client {
			// fake удобен для демо без внешнего API.
			if cfg.Monitor.TrackingMode == "fake" {
				return mrfake.New()
			}
			return melhorrastreio.NewHTTP(cfg.Monitor.TrackingBaseURL)
		},
		newSender: func(cfg *config.Config) monitor.Sender {
			return whatsapp.New(
				cfg.WhatsApp.BaseURL,
				cfg.WhatsApp.Token,
				cfg.WhatsApp.FromPhone,
				cfg.WhatsApp.OrganizationID,
			)
		},
		newProducer: func(cfg *config.Config) monitor.Producer {
			if cfg.Kafka.Host == "" {
				return nil
			}
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
	}
}

func RunMonitor(ctx context.Context, cfg *config.Config, f appFactories) error {
	st, err := f.newStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ttl := time.Duration(cfg.Monitor.TemplateCacheTTLSeconds) * time.Second
	comp := composer.New(st, ttl)

	mon := monitor.New(st, f.newOrders(cfg), f.newTracker(cfg), f.newSender(cfg), comp)

	if p := f.newProducer(cfg); p != nil {
		topic := cfg.Kafka.ShipmentNotifiedTopicName
		if topic == "" {
			topic = "shipment.notified"
		}
		mon.WithProducer(p, topic)
	}

	welcomeEvery := time.Duration(cfg.Monitor.WelcomeIntervalMinutes) * time.Minute
	sched := monitor.NewScheduler(st, mon, welcomeEvery)
	defer sched.Shutdown()

	if err := sched.StartWelcome(); err != nil {
		return err
	}
	if cfg.Monitor.AutostartMonitor {
		if _, err := sched.StartMonitor(ctx); err != nil {
			return err
		}
	}

	return runHTTPServer(ctx, httpOpts{
		httpAddr: cfg.Monitor.HTTPAddr,
		store:    st,
		monitor:  mon,
		sched:    sched,
		comp:     comp,
		log:      slog.Default(),
	})
}

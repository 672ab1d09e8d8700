package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/config"
	kafkax "github.com/ariefcatur/go-pickup-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/logging"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/notify"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/redisx"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/stock"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.Must(cfg.ServiceName+"-notifier", cfg.Env)
	defer func() { _ = log.Sync() }()

	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("kafka_not_configured")
	}
	if len(cfg.StaffAlertEmails) == 0 {
		log.Warn("staff_alert_emails_empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logging.WithLogger(ctx, log)

	mailer := notify.NewMailer(notify.MailerConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	m := metrics.New(prometheus.DefaultRegisterer)
	relay := &stock.Relay{Alerter: metered{stock.MailAlerter{Mail: mailer, Recipients: cfg.StaffAlertEmails}, m}}

	// Redis dedup on event id; without it a redelivered event mails twice
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			log.Warn("redis_unreachable", zap.Error(err))
		}
		relay.Dedup = redisx.NewDedup(rdb, "notifier")
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics_listen_failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.TopicStockLow, cfg.NotifierWorkers, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("notifier_consumer_started",
			zap.String("group", cfg.NotifierGroup),
			zap.String("topic", orders.TopicStockLow),
			zap.Int("workers", cfg.NotifierWorkers),
		)
		if err := cons.Start(ctx, relay.Handle); err != nil {
			log.Error("consumer_exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting_down")
	cancel()
	<-done
}

// metered counts every alert delivery attempt.
type metered struct {
	stock.Alerter
	m *metrics.Metrics
}

func (a metered) LowStock(ctx context.Context, p orders.Product, threshold int) error {
	err := a.Alerter.LowStock(ctx, p, threshold)
	a.m.Notification("low_stock_email", err)
	return err
}

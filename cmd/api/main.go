package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/config"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/httpx"
	kafkax "github.com/ariefcatur/go-pickup-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/logging"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/lygos"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/notify"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/ratelimit"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/redisx"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/stock"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.Must(cfg.ServiceName, cfg.Env)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Store
	var store orders.Store
	if cfg.PostgresDSN != "" {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db_connect_failed", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal("db_migrate_failed", zap.Error(err))
		}
		store = &orders.PGStore{DB: db}
	} else {
		mem := orders.NewMemoryStore()
		if _, _, err := orders.Seed(ctx, mem, time.Now().In(cfg.Location()), 7); err != nil {
			log.Fatal("seed_failed", zap.Error(err))
		}
		log.Warn("postgres_not_configured", zap.String("store", "memory"))
		store = mem
	}

	// Redis: webhook limiter + status cache
	var (
		limiter ratelimit.Limiter
		cache   fulfillment.StatusCache
	)
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			log.Warn("redis_unreachable", zap.Error(err))
		}
		limiter = ratelimit.NewRedisLimiter(rdb, "webhook", cfg.WebhookRateLimit, cfg.WebhookRateWindow)
		cache = redisx.NewStatusCache(rdb)
	} else {
		sw := ratelimit.NewSlidingWindow(cfg.WebhookRateLimit, cfg.WebhookRateWindow)
		go sw.RunSweeper(ctx, cfg.WebhookRateWindow)
		limiter = sw
	}

	// Notifications
	mailer := notify.NewMailer(notify.MailerConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	sms := notify.NewSMSClient(notify.SMSConfig{
		APIKey:      cfg.SMS.APIKey,
		Endpoint:    cfg.SMS.Endpoint,
		CountryCode: cfg.SMS.CountryCode,
	}, &http.Client{Timeout: cfg.NotifyTimeout})
	tasks := notify.NewDetached(cfg.NotifyTimeout, m)

	// Kafka producer; without brokers low-stock alerts are mailed directly
	var (
		events  orders.Publisher = orders.NopPublisher{}
		alerter stock.Alerter    = stock.MailAlerter{Mail: mailer, Recipients: cfg.StaffAlertEmails}
		prod    *kafkax.Producer
	)
	prodCtx, stopProd := context.WithCancel(context.Background())
	defer stopProd()
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start(prodCtx)
		events = prod
		alerter = stock.EventAlerter{Publisher: prod, Producer: cfg.ServiceName}
	}

	// Payment gateway
	var gateway fulfillment.PaymentGateway
	lc := lygos.New(lygos.Config{
		BaseURL:     cfg.Lygos.BaseURL,
		APIKey:      cfg.Lygos.APIKey,
		MerchantID:  cfg.Lygos.MerchantID,
		Channel:     cfg.Lygos.Channel,
		CreatePath:  cfg.Lygos.CreatePath,
		MinorUnits:  cfg.Lygos.MinorUnits,
		CallbackURL: cfg.Lygos.CallbackURL,
		ReturnURL:   cfg.Lygos.ReturnURL,
		Timeout:     cfg.Lygos.Timeout,
	}, nil, m)
	if lc.Configured() {
		gateway = lc
	} else {
		log.Warn("lygos_not_configured")
	}
	if cfg.Lygos.WebhookSecret == "" {
		log.Warn("lygos_webhook_secret_missing")
	}

	ledger := stock.NewLedger(store,
		stock.WithAlerter(alerter, tasks),
		stock.WithThreshold(cfg.LowStockThreshold),
		stock.WithMetrics(m),
	)
	svc := fulfillment.New(fulfillment.Config{
		Location:      cfg.Location(),
		Currency:      cfg.Currency,
		WebhookSecret: cfg.Lygos.WebhookSecret,
		Producer:      cfg.ServiceName,
	}, fulfillment.Deps{
		Store:   store,
		Ledger:  ledger,
		Gateway: gateway,
		Mail:    mailer,
		SMS:     sms,
		Tasks:   tasks,
		Events:  events,
		Cache:   cache,
		Metrics: m,
	})

	router := httpx.NewRouter(log, m, reg)
	(&httpx.Handler{Service: svc, Limiter: limiter, Metrics: m}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http_listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http_listen_failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting_down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	tasks.Wait() // notifications and alerts still in flight
	cancel()
	if prod != nil {
		stopProd()
		prod.WaitClosed()
	}
}

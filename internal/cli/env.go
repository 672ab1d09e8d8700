package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/config"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/logging"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/notify"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/stock"
)

// OpenFromEnv connects to POSTGRES_DSN and wires the service with the
// configured mail and SMS senders. Close waits for pending notifications.
func OpenFromEnv(ctx context.Context) (*Env, error) {
	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.PostgresDSN == "" {
		return nil, errors.New("POSTGRES_DSN is not set")
	}
	log, err := logging.New(cfg.ServiceName+"-cli", cfg.Env)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	store := &orders.PGStore{DB: db}

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
	tasks := notify.NewDetached(cfg.NotifyTimeout, nil)

	ledger := stock.NewLedger(store,
		stock.WithAlerter(stock.MailAlerter{Mail: mailer, Recipients: cfg.StaffAlertEmails}, tasks),
		stock.WithThreshold(cfg.LowStockThreshold),
	)
	svc := fulfillment.New(fulfillment.Config{
		Location: cfg.Location(),
		Currency: cfg.Currency,
		Producer: "fulfillctl",
	}, fulfillment.Deps{
		Store:  store,
		Ledger: ledger,
		Mail:   mailer,
		SMS:    sms,
		Tasks:  tasks,
	})

	return &Env{
		Store:   store,
		Service: svc,
		Close: func() {
			tasks.Wait()
			db.Close()
			_ = log.Sync()
		},
	}, nil
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Lygos struct {
	BaseURL       string
	APIKey        string
	MerchantID    string
	Channel       string
	CreatePath    string
	MinorUnits    bool
	CallbackURL   string
	ReturnURL     string
	WebhookSecret string
	Timeout       time.Duration
}

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMS struct {
	APIKey      string
	Endpoint    string
	CountryCode string
}

type Config struct {
	HTTPAddr     string
	PostgresDSN  string // empty: in-memory store with the demo catalog
	RedisAddr    string // empty: in-process limiter, no status cache
	KafkaBrokers []string
	ServiceName  string
	Env          string

	Timezone          string
	Currency          string
	LowStockThreshold int

	WebhookRateLimit  int
	WebhookRateWindow time.Duration

	Lygos Lygos
	SMTP  SMTP
	SMS   SMS

	StaffAlertEmails []string
	NotifyTimeout    time.Duration

	NotifierGroup   string
	NotifierWorkers int
	MetricsAddr     string // notifier /metrics listener, empty to disable
}

func Load() Config {
	smtpUser := getenv("SMTP_USER", os.Getenv("GMAIL_USER"))
	return Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8081"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		ServiceName:  getenv("SERVICE_NAME", "fulfillment-api"),
		Env:          getenv("ENV", "production"),

		Timezone:          getenv("TIMEZONE", "Africa/Brazzaville"),
		Currency:          getenv("DEFAULT_CURRENCY", "XAF"),
		LowStockThreshold: getint("LOW_STOCK_THRESHOLD", 5),

		WebhookRateLimit:  getint("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateWindow: getduration("WEBHOOK_RATE_WINDOW", time.Minute),

		Lygos: Lygos{
			BaseURL:       os.Getenv("LYGOS_BASE_URL"),
			APIKey:        os.Getenv("LYGOS_API_KEY"),
			MerchantID:    os.Getenv("LYGOS_MERCHANT_ID"),
			Channel:       os.Getenv("LYGOS_CHANNEL"),
			CreatePath:    getenv("LYGOS_CREATE_PATH", "/v1/transactions"),
			MinorUnits:    getbool("LYGOS_AMOUNT_MINOR_UNITS", false),
			CallbackURL:   os.Getenv("LYGOS_CALLBACK_URL"),
			ReturnURL:     os.Getenv("LYGOS_RETURN_URL"),
			WebhookSecret: os.Getenv("LYGOS_WEBHOOK_SECRET"),
			Timeout:       getduration("LYGOS_TIMEOUT", 20*time.Second),
		},
		SMTP: SMTP{
			Host:     getenv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getint("SMTP_PORT", 587),
			Username: smtpUser,
			Password: getenv("SMTP_PASSWORD", os.Getenv("GMAIL_APP_PASSWORD")),
			From:     getenv("SMTP_FROM", smtpUser),
		},
		SMS: SMS{
			APIKey:      os.Getenv("SMS_TO_API_KEY"),
			Endpoint:    os.Getenv("SMS_TO_ENDPOINT"),
			CountryCode: getenv("SMS_DEFAULT_COUNTRY_CODE", "+242"),
		},

		StaffAlertEmails: splitCSV(os.Getenv("STAFF_ALERT_EMAILS")),
		NotifyTimeout:    getduration("NOTIFY_TIMEOUT", 10*time.Second),

		NotifierGroup:   getenv("NOTIFIER_GROUP", "fulfillment-notifier"),
		NotifierWorkers: getint("NOTIFIER_WORKERS", 4),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
	}
}

// Location resolves Timezone, falling back to UTC when the zone database
// does not know it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	i, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return i
}

// getduration accepts Go durations ("90s") or a bare number of seconds.
func getduration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func getbool(k string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(k))
	if err != nil {
		return def
	}
	return b
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     string
	DBDSN    string
	LogFile  string
	SeedDemo bool

	AdminEmail    string
	AdminPassword string

	// Unit-of-work bounds: LockWait caps waiting for a contended lock,
	// SequenceTimeout caps the order-number allocation step, TxTimeout the whole checkout.
	TxTimeout       time.Duration
	LockWait        time.Duration
	SequenceTimeout time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	PublicBaseURL       string
	Currency            string

	KafkaBrokers       []string
	KafkaTopic         string
	OutboxPollInterval time.Duration
	OutboxBatch        int
}

func Load() Config {
	cfg := Config{
		Port:     getEnv("PORT", "8080"),
		DBDSN:    getEnv("DB_DSN", "storefront.db"), // sqlite file in project root
		LogFile:  getEnv("LOG_FILE", ""),
		SeedDemo: getEnvBool("SEED_DEMO", true),

		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@storefront.local"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		TxTimeout:       getEnvDuration("TX_TIMEOUT", 30*time.Second),
		LockWait:        getEnvDuration("LOCK_WAIT", 5*time.Second),
		SequenceTimeout: getEnvDuration("SEQUENCE_TIMEOUT", 10*time.Second),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		PublicBaseURL:       strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		Currency:            strings.ToLower(getEnv("CURRENCY", "usd")),

		KafkaBrokers:       getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "orders.created"),
		OutboxPollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatch:        getEnvInt("OUTBOX_BATCH", 50),
	}
	log.Printf("[config] PORT=%s DB_DSN=%s LOG_FILE=%s TX_TIMEOUT=%s LOCK_WAIT=%s SEQUENCE_TIMEOUT=%s STRIPE=%t KAFKA=%v",
		cfg.Port, mask(cfg.DBDSN), cfg.LogFile, cfg.TxTimeout, cfg.LockWait, cfg.SequenceTimeout,
		cfg.StripeSecretKey != "", cfg.KafkaBrokers)
	return cfg
}

// mask hides credentials embedded in a postgres:// DSN.
func mask(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

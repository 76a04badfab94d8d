package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel string
	HTTPPort int

	// Abandonment timings. The sweeper rejects a checkout timeout that
	// is not strictly greater than the cart timeout.
	CartTimeout     time.Duration
	CheckoutTimeout time.Duration
	SweepInterval   time.Duration

	// AWS wiring. An empty LogsTable selects the in-memory log
	// repository.
	LogsTable       string
	RecoveryQueue   string
	MetricNamespace string

	// External collaborators.
	CommerceBaseURL string
	TemplatesPath   string

	// Recovery message composition.
	CheckoutLinkBase string
	CurrencySymbol   string
}

func Load() Config {
	return Config{
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		CartTimeout:     getEnvDuration("CART_TIMEOUT", 30*time.Second),
		CheckoutTimeout: getEnvDuration("CHECKOUT_TIMEOUT", 45*time.Second),
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 10*time.Second),

		LogsTable:       os.Getenv("ABANDONMENT_LOGS_TABLE"),
		RecoveryQueue:   os.Getenv("RECOVERY_QUEUE_URL"),
		MetricNamespace: getEnv("METRIC_NAMESPACE", "CartRecovery"),

		CommerceBaseURL: getEnv("COMMERCE_BASE_URL", "http://localhost:9090"),
		TemplatesPath:   os.Getenv("TEMPLATES_PATH"),

		CheckoutLinkBase: getEnv("CHECKOUT_LINK_BASE", "https://shop.example.com"),
		CurrencySymbol:   getEnv("CURRENCY_SYMBOL", "R$"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

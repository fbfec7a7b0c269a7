package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Port          string
	AllowedOrigin string

	DatabaseURL   string
	RunMigrations bool

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CartTTL         time.Duration
	CheckoutLockTTL time.Duration

	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string

	StallLocation   string
	InvoiceBrand    string
	InvoiceRenderer string
	ChromeRemoteURL string
	ChromeNoSandbox bool
	InvoiceStorage  string
	InvoiceDir      string

	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	LogLevel         string
	LogFormat        string
	MetricsNamespace string
}

// Load reads the process environment, after merging an optional .env file.
// Variables already set in the environment win over .env.
func Load() (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := Config{
		Port:          valueOrDefault(k.String("PORT"), "8080"),
		AllowedOrigin: valueOrDefault(k.String("ALLOWED_ORIGIN"), "http://127.0.0.1:5173"),

		DatabaseURL:   strings.TrimSpace(k.String("DATABASE_URL")),
		RunMigrations: parseBool(k.String("RUN_MIGRATIONS"), true),

		RedisAddr:       strings.TrimSpace(k.String("REDIS_ADDR")),
		RedisPassword:   k.String("REDIS_PASSWORD"),
		RedisDB:         parseInt(k.String("REDIS_DB"), 0, 0),
		CartTTL:         parseDuration(k.String("CART_TTL"), "12h"),
		CheckoutLockTTL: parseDuration(k.String("CHECKOUT_LOCK_TTL"), "60s"),

		AuthSecret:            strings.TrimSpace(k.String("AUTH_SECRET")),
		AccessTokenTTLMinutes: parseInt(k.String("ACCESS_TOKEN_TTL_MINUTES"), 480, 1),
		ManagerPIN:            strings.TrimSpace(k.String("MANAGER_PIN")),

		StallLocation:   valueOrDefault(k.String("STALL_LOCATION"), "Main Stall"),
		InvoiceBrand:    valueOrDefault(k.String("INVOICE_BRAND"), "SLAYDRIP"),
		InvoiceRenderer: strings.ToLower(valueOrDefault(k.String("INVOICE_RENDERER"), "html")),
		ChromeRemoteURL: strings.TrimSpace(k.String("CHROME_REMOTE_URL")),
		ChromeNoSandbox: parseBool(k.String("CHROME_NO_SANDBOX"), false),
		InvoiceStorage:  strings.ToLower(valueOrDefault(k.String("INVOICE_STORAGE"), "fs")),
		InvoiceDir:      valueOrDefault(k.String("INVOICE_DIR"), "invoices"),

		S3Endpoint:     strings.TrimSpace(k.String("S3_ENDPOINT")),
		S3Region:       valueOrDefault(k.String("S3_REGION"), "us-east-1"),
		S3Bucket:       strings.TrimSpace(k.String("S3_BUCKET")),
		S3AccessKey:    strings.TrimSpace(k.String("S3_ACCESS_KEY")),
		S3SecretKey:    strings.TrimSpace(k.String("S3_SECRET_KEY")),
		S3UsePathStyle: parseBool(k.String("S3_USE_PATH_STYLE"), false),

		LogLevel:         valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat:        valueOrDefault(k.String("LOG_FORMAT"), "json"),
		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "slaydrip"),
	}

	switch cfg.InvoiceRenderer {
	case "html", "chromedp":
	default:
		return Config{}, fmt.Errorf("INVOICE_RENDERER must be html or chromedp, got %q", cfg.InvoiceRenderer)
	}
	switch cfg.InvoiceStorage {
	case "fs":
	case "s3":
		if cfg.S3Bucket == "" {
			return Config{}, fmt.Errorf("S3_BUCKET is required when INVOICE_STORAGE=s3")
		}
	default:
		return Config{}, fmt.Errorf("INVOICE_STORAGE must be fs or s3, got %q", cfg.InvoiceStorage)
	}

	return cfg, nil
}

func (c Config) Address() string {
	port := strings.TrimSpace(c.Port)
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int, min int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < min {
		return fallback
	}
	return n
}

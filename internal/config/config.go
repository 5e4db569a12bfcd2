package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	API struct {
		Port           string
		BasePath       string
		MaxUploadBytes int64
		UploadDir      string
	}
	Logging struct {
		Dir   string
		Level string
	}
	DB struct {
		DSN string
	}
	Auth struct {
		JWTSecret     string
		TokenTTL      time.Duration
		AdminName     string
		AdminEmail    string
		AdminPassword string
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	Models struct {
		ClassifierURL string
		SeverityURL   string
		Timeout       time.Duration
		Retries       int
	}
	Inference struct {
		Timezone string
	}
	Hotspot struct {
		Eps          float64
		MinSamples   int
		MinPoints    int
		MaxPoints    int
		Timeout      time.Duration
		RefreshSpec  string
		LookbackDays int
	}
	Alerts struct {
		QueueSize   int
		MaxWorkers  int
		MinPriority string
	}
	Telegram struct {
		BotToken  string
		ChatID    int64
		RateLimit int
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		To         []string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// API settings
	cfg.API.Port = getEnv("API_PORT", ":8080")
	cfg.API.BasePath = getEnv("API_BASE_PATH", "/api/v0")
	cfg.API.MaxUploadBytes = int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20))
	cfg.API.UploadDir = getEnv("UPLOAD_DIR", "uploads")

	cfg.Logging.Dir = getEnv("LOG_DIR", "logs")
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")

	// Optional backing services
	cfg.DB.DSN = os.Getenv("DB_DSN")
	cfg.Auth.JWTSecret = os.Getenv("AUTH_JWT_SECRET")
	cfg.Auth.TokenTTL = getEnvAsDuration("AUTH_TOKEN_TTL", 24*time.Hour)
	cfg.Auth.AdminName = getEnv("AUTH_ADMIN_NAME", "Administrator")
	cfg.Auth.AdminEmail = os.Getenv("AUTH_ADMIN_EMAIL")
	cfg.Auth.AdminPassword = os.Getenv("AUTH_ADMIN_PASSWORD")
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", "issue_triaged")
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", "urban-issue-alerts")

	// Model servers
	cfg.Models.ClassifierURL = os.Getenv("CLASSIFIER_URL")
	cfg.Models.SeverityURL = os.Getenv("SEVERITY_MODEL_URL")
	cfg.Models.Timeout = getEnvAsDuration("MODEL_TIMEOUT", 5*time.Second)
	cfg.Models.Retries = getEnvAsInt("MODEL_RETRIES", 2)

	cfg.Inference.Timezone = getEnv("INFERENCE_TIMEZONE", "Local")

	// Hotspot clustering
	cfg.Hotspot.Eps = getEnvAsFloat("HOTSPOT_EPS", 0.002)
	cfg.Hotspot.MinSamples = getEnvAsInt("HOTSPOT_MIN_SAMPLES", 3)
	cfg.Hotspot.MinPoints = getEnvAsInt("HOTSPOT_MIN_POINTS", 5)
	cfg.Hotspot.MaxPoints = getEnvAsInt("HOTSPOT_MAX_POINTS", 10000)
	cfg.Hotspot.Timeout = getEnvAsDuration("HOTSPOT_TIMEOUT", 5*time.Second)
	cfg.Hotspot.RefreshSpec = getEnv("HOTSPOT_REFRESH_SPEC", "*/10 * * * *")
	cfg.Hotspot.LookbackDays = getEnvAsInt("HOTSPOT_LOOKBACK_DAYS", 30)

	// Alert worker settings
	cfg.Alerts.QueueSize = getEnvAsInt("ALERT_QUEUE_SIZE", 500)
	cfg.Alerts.MaxWorkers = getEnvAsInt("ALERT_MAX_WORKERS", 4)
	cfg.Alerts.MinPriority = getEnv("ALERT_MIN_PRIORITY", "High")

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.ChatID = id
	}
	cfg.Telegram.RateLimit = getEnvAsInt("TELEGRAM_RATE_LIMIT", 20)

	cfg.Email.SMTPServer = os.Getenv("SMTP_SERVER")
	cfg.Email.SMTPPort = getEnvAsInt("SMTP_PORT", 587)
	cfg.Email.Username = os.Getenv("SMTP_USERNAME")
	cfg.Email.Password = os.Getenv("SMTP_PASSWORD")
	cfg.Email.To = getEnvAsList("ALERT_EMAIL_TO")

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks required settings and numeric ranges.
func validate(cfg Config) error {
	missing := []string{}
	if cfg.Models.ClassifierURL == "" {
		missing = append(missing, "CLASSIFIER_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configurations: %v", missing)
	}

	if cfg.Hotspot.Eps <= 0 {
		return fmt.Errorf("HOTSPOT_EPS must be positive, got %v", cfg.Hotspot.Eps)
	}
	if cfg.Hotspot.MinSamples < 1 {
		return fmt.Errorf("HOTSPOT_MIN_SAMPLES must be at least 1, got %d", cfg.Hotspot.MinSamples)
	}
	if cfg.Hotspot.MaxPoints < cfg.Hotspot.MinPoints {
		return fmt.Errorf("HOTSPOT_MAX_POINTS (%d) below HOTSPOT_MIN_POINTS (%d)", cfg.Hotspot.MaxPoints, cfg.Hotspot.MinPoints)
	}
	if cfg.Models.Retries < 0 {
		return fmt.Errorf("MODEL_RETRIES must be non-negative, got %d", cfg.Models.Retries)
	}
	if cfg.Alerts.MaxWorkers < 1 || cfg.Alerts.QueueSize < 1 {
		return fmt.Errorf("ALERT_MAX_WORKERS and ALERT_QUEUE_SIZE must be positive")
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if cfg.DB.DSN != "" && len(cfg.Auth.JWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET of at least 32 bytes is required when DB_DSN is set")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %v", cfg.Auth.TokenTTL)
	}
	if (cfg.Auth.AdminEmail == "") != (cfg.Auth.AdminPassword == "") {
		return fmt.Errorf("AUTH_ADMIN_EMAIL and AUTH_ADMIN_PASSWORD must be set together")
	}
	if cfg.Email.SMTPServer != "" && len(cfg.Email.To) == 0 {
		return fmt.Errorf("ALERT_EMAIL_TO is required when SMTP_SERVER is set")
	}
	if _, err := time.LoadLocation(cfg.Inference.Timezone); err != nil {
		return fmt.Errorf("invalid INFERENCE_TIMEZONE %q: %w", cfg.Inference.Timezone, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

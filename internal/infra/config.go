package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	DatabaseURL       string
	DBMaxConns        int
	APIToken          string
	CORSOrigins       []string
	GeoIPDBPath       string
	ProviderBaseURL   string
	ProviderAPIKey    string
	WorkerConcurrency int
	WorkerPollEvery   time.Duration
	StagePollEvery    time.Duration
	StageTimeout      time.Duration
	StaggerInterval   time.Duration
	SnapshotTTL       time.Duration
	QueueRetryBackoff time.Duration
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	RateLimitPerMin   int
	DefaultLocale     string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		APIToken:          os.Getenv("API_TOKEN"),
		CORSOrigins:       splitCSV(os.Getenv("CORS_ORIGINS")),
		GeoIPDBPath:       os.Getenv("GEOIP_DB_PATH"),
		ProviderBaseURL:   getEnv("PROVIDER_BASE_URL", "https://pipeline.example.com/api"),
		ProviderAPIKey:    os.Getenv("PROVIDER_API_KEY"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollEvery:   time.Millisecond * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_MS", 2000)),
		StagePollEvery:    time.Millisecond * time.Duration(getEnvInt("STAGE_POLL_INTERVAL_MS", 2000)),
		StageTimeout:      time.Second * time.Duration(getEnvInt("STAGE_TIMEOUT_SECONDS", 300)),
		StaggerInterval:   time.Millisecond * time.Duration(getEnvInt("BATCH_STAGGER_INTERVAL_MS", 1000)),
		SnapshotTTL:       time.Minute * time.Duration(getEnvInt("SNAPSHOT_TTL_MINUTES", 30)),
		QueueRetryBackoff: time.Millisecond * time.Duration(getEnvInt("QUEUE_RETRY_BACKOFF_MS", 1000)),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		DefaultLocale:     getEnv("DEFAULT_LOCALE", "en"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.DBMaxConns < 1 {
		cfg.DBMaxConns = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries all runtime configuration, loaded from environment
// variables (a local .env is loaded by main before this runs).
type Config struct {
	AppEnv           string
	LogLevel         string
	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string

	BackendBaseURL   string
	WhatsAppBaseURL  string
	LangchainBaseURL string
	UpstreamTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	DatabaseURL string
	AuditDBPath string

	WhatsAppSessionTTL time.Duration
	InterviewTTL       time.Duration
}

// Load reads configuration from the environment with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           envString("APP_ENV", "development"),
		LogLevel:         envString("LOG_LEVEL", "info"),
		HTTPListenAddr:   envString("HTTP_LISTEN_ADDR", ":3000"),
		PublicBasePath:   envString("PUBLIC_BASE_PATH", ""),
		MetricsNamespace: envString("METRICS_NAMESPACE", "agent_relay"),

		BackendBaseURL:   envString("BACKEND_BASE_URL", ""),
		WhatsAppBaseURL:  firstNonEmpty(os.Getenv("WHATSAPP_STATUS_BASE_URL"), os.Getenv("WHATSAPP_BACKEND_BASE_URL"), "http://localhost:8080/api/v1"),
		LangchainBaseURL: envString("LANGCHAIN_BASE_URL", ""),
		UpstreamTimeout:  envDuration("UPSTREAM_TIMEOUT", 15*time.Second),

		RedisAddr:     envString("REDIS_ADDR", ""),
		RedisPassword: envString("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),
		RedisTLS:      envBool("REDIS_TLS", false),

		DatabaseURL: envString("DATABASE_URL", ""),
		AuditDBPath: envString("AUDIT_DB_PATH", ""),

		WhatsAppSessionTTL: envDuration("WHATSAPP_SESSION_TTL", 15*time.Minute),
		InterviewTTL:       envDuration("INTERVIEW_TTL", 10*time.Minute),
	}

	if cfg.HTTPListenAddr == "" {
		return nil, fmt.Errorf("HTTP_LISTEN_ADDR must not be empty")
	}
	if cfg.DatabaseURL != "" && cfg.AuditDBPath != "" {
		return nil, fmt.Errorf("DATABASE_URL and AUDIT_DB_PATH are mutually exclusive")
	}
	return cfg, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

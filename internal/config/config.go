// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Signaling backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendRelay    = "relay"
)

// DefaultSTUNURLs are used when STUN_URLS is unset.
var DefaultSTUNURLs = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config is everything both binaries read from the environment.
type Config struct {
	LogLevel logrus.Level

	SignalBackend string
	RedisAddr     string
	RedisDB       int
	SignalTTL     time.Duration
	DatabaseURL   string
	RelayURL      string

	Port            string
	STUNURLs        []string
	TokenExpireTime string
	// Ed25519 key files for host tokens. Unset means a fresh key per relay run.
	HostPrivateKeyPath string
	HostPublicKeyPath  string
}

// Load reads the environment. Call after godotenv/autoload has run.
func Load() (*Config, error) {
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	ttl, err := time.ParseDuration(getEnv("SIGNAL_TTL", "6h"))
	if err != nil {
		return nil, fmt.Errorf("SIGNAL_TTL: %w", err)
	}

	cfg := &Config{
		LogLevel:        level,
		SignalBackend:   strings.ToLower(getEnv("SIGNAL_BACKEND", BackendRelay)),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		SignalTTL:       ttl,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RelayURL:        getEnv("RELAY_URL", "http://localhost:8080"),
		Port:            getEnv("PORT", "8080"),
		STUNURLs:        getEnvList("STUN_URLS", DefaultSTUNURLs),
		TokenExpireTime: getEnv("TOKEN_EXPIRE_TIME", "24h"),

		HostPrivateKeyPath: os.Getenv("HOST_PRIVATE_KEY_PATH"),
		HostPublicKeyPath:  os.Getenv("HOST_PUBLIC_KEY_PATH"),
	}

	switch cfg.SignalBackend {
	case BackendMemory, BackendRedis, BackendRelay:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("unknown SIGNAL_BACKEND %q", cfg.SignalBackend)
	}
	return cfg, nil
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	return logger
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvList(key string, defaultVal []string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

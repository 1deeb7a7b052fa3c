package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr               = ":8099"
	defaultDBPath                 = "/data/srun_guard.db"
	defaultPollInterval           = 3 * time.Second
	defaultProfile                = PresetHaut
	defaultProfileRefreshInterval = 60 * time.Second
	defaultHistoryLimit           = 5000
)

// Config stores runtime settings loaded from environment variables.
type Config struct {
	HTTPAddr               string
	DBPath                 string
	LogLevel               slog.Level
	LogFormat              string
	PollInterval           time.Duration
	Profile                string
	ProfilesFile           string
	ProfileRefreshInterval time.Duration
	SecretSaltPath         string
	SecretPassphrase       string
	HistoryLimit           int
}

// Load builds Config from environment variables using stable defaults.
func Load() Config {
	cfg := Config{
		HTTPAddr:               getenv("HTTP_ADDR", defaultHTTPAddr),
		DBPath:                 getenv("DB_PATH", defaultDBPath),
		LogLevel:               parseLogLevel(getenv("LOG_LEVEL", "info")),
		LogFormat:              strings.ToLower(getenv("LOG_FORMAT", "json")),
		PollInterval:           parseDuration("POLL_INTERVAL", defaultPollInterval),
		Profile:                getenv("SRUN_PROFILE", defaultProfile),
		ProfilesFile:           getenv("SRUN_PROFILES_FILE", ""),
		ProfileRefreshInterval: parseDuration("PROFILE_REFRESH_INTERVAL", defaultProfileRefreshInterval),
		SecretPassphrase:       getenv("SECRET_PASSPHRASE", ""),
		HistoryLimit:           parseInt("HISTORY_LIMIT", defaultHistoryLimit),
	}
	cfg.SecretSaltPath = getenv("SECRET_SALT_PATH", filepath.Join(cfg.DBDir(), "secret.salt"))
	return cfg
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

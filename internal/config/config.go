package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration, injected through environment
// variables with local-dev defaults.
type Config struct {
	HTTPAddr string

	MySQLDSN string

	RedisAddr     string
	RedisDB       int
	RedisPoolSize int

	KafkaBrokers []string
	KafkaTopic   string

	HoldDuration  time.Duration
	SweepInterval time.Duration
	MaxRetries    int

	EntryCacheTTL       time.Duration
	ListCacheTTL        time.Duration
	ReservationCacheTTL time.Duration
}

// Load reads and validates configuration, falling back to defaults for
// anything unset.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		MySQLDSN:            getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/inventory?parseTime=true"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:             0,
		RedisPoolSize:       100,
		KafkaBrokers:        splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "inventory-events"),
		HoldDuration:        30 * time.Minute,
		SweepInterval:       time.Minute,
		MaxRetries:          4,
		EntryCacheTTL:       30 * time.Minute,
		ListCacheTTL:        2 * time.Minute,
		ReservationCacheTTL: 5 * time.Minute,
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", cfg.RedisDB); err != nil {
		return Config{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.RedisPoolSize, err = getEnvInt("REDIS_POOL_SIZE", cfg.RedisPoolSize); err != nil {
		return Config{}, fmt.Errorf("invalid REDIS_POOL_SIZE: %w", err)
	}
	if cfg.MaxRetries, err = getEnvInt("MAX_RETRIES", cfg.MaxRetries); err != nil {
		return Config{}, fmt.Errorf("invalid MAX_RETRIES: %w", err)
	}
	if cfg.MaxRetries <= 0 {
		return Config{}, fmt.Errorf("MAX_RETRIES must be > 0")
	}

	if cfg.HoldDuration, err = getEnvDuration("HOLD_DURATION_MIN", time.Minute, cfg.HoldDuration); err != nil {
		return Config{}, fmt.Errorf("invalid HOLD_DURATION_MIN: %w", err)
	}
	if cfg.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL_SEC", time.Second, cfg.SweepInterval); err != nil {
		return Config{}, fmt.Errorf("invalid SWEEP_INTERVAL_SEC: %w", err)
	}
	if cfg.EntryCacheTTL, err = getEnvDuration("ENTRY_CACHE_TTL_MIN", time.Minute, cfg.EntryCacheTTL); err != nil {
		return Config{}, fmt.Errorf("invalid ENTRY_CACHE_TTL_MIN: %w", err)
	}
	if cfg.ListCacheTTL, err = getEnvDuration("LIST_CACHE_TTL_MIN", time.Minute, cfg.ListCacheTTL); err != nil {
		return Config{}, fmt.Errorf("invalid LIST_CACHE_TTL_MIN: %w", err)
	}
	if cfg.ReservationCacheTTL, err = getEnvDuration("RESERVATION_CACHE_TTL_MIN", time.Minute, cfg.ReservationCacheTTL); err != nil {
		return Config{}, fmt.Errorf("invalid RESERVATION_CACHE_TTL_MIN: %w", err)
	}

	if cfg.HoldDuration <= 0 {
		return Config{}, fmt.Errorf("HOLD_DURATION_MIN must be > 0")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("SWEEP_INTERVAL_SEC must be > 0")
	}
	if cfg.MySQLDSN == "" {
		return Config{}, fmt.Errorf("MYSQL_DSN must not be empty")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return Config{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, unit, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * unit, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

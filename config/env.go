package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer. ok is false when the variable is unset.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overlays SCRAPER_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	ints := []struct {
		key string
		dst *int
	}{
		{"SCRAPER_MAX_ITEMS", &c.MaxItems},
		{"SCRAPER_PAGES", &c.MaxPages},
		{"SCRAPER_CONCURRENCY", &c.Concurrency},
		{"SCRAPER_MAX_RETRIES", &c.MaxRetries},
	}
	for _, item := range ints {
		value, ok, err := EnvInt(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dst = value
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SCRAPER_DOMAIN_DELAY", &c.MinDomainDelay},
		{"SCRAPER_DOMAIN_JITTER", &c.DomainJitter},
		{"SCRAPER_TIMEOUT", &c.Timeout},
	}
	for _, item := range durations {
		value, ok, err := EnvDuration(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dst = value
		}
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"SCRAPER_START_URL", &c.StartURL},
		{"SCRAPER_OUTPUT", &c.OutputFile},
		{"SCRAPER_FORMAT", &c.OutputFormat},
		{"SCRAPER_METRICS_ADDR", &c.MetricsAddr},
		{"SCRAPER_PROXY_URL", &c.ProxyURL},
		{"SCRAPER_POSTGRES_DSN", &c.PostgresDSN},
		{"SCRAPER_CHECKPOINT", &c.CheckpointBackend},
		{"SCRAPER_REDIS_ADDR", &c.RedisAddr},
		{"SCRAPER_JOB_ID", &c.JobID},
	}
	for _, item := range strs {
		if value, ok := EnvString(item.key); ok {
			*item.dst = value
		}
	}
	if value, ok := EnvString("SCRAPER_REDIS_PASSWORD"); ok {
		c.RedisPassword = value
	}
	return nil
}

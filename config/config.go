package config

import (
	"fmt"
	"net/url"
	"time"
)

// Document modes select which representation of a product page is fetched.
const (
	DocumentModeJSON = "json"
	DocumentModeHTML = "html"
)

// Checkpoint backends.
const (
	CheckpointNone   = "none"
	CheckpointFile   = "file"
	CheckpointSQLite = "sqlite"
	CheckpointRedis  = "redis"
)

// Config holds scraper configuration.
type Config struct {
	StartURL    string `yaml:"start_url"`
	MaxItems    int    `yaml:"max_items"`
	MaxPages    int    `yaml:"max_pages"`
	Concurrency int    `yaml:"concurrency"`

	MinDomainDelay    time.Duration `yaml:"min_domain_delay"`
	DomainJitter      time.Duration `yaml:"domain_jitter"`
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
	Timeout           time.Duration `yaml:"timeout"`

	MaxRetries          int           `yaml:"max_retries"`
	RetryHTTPCodes      []int         `yaml:"retry_http_codes"`
	RetryPriorityAdjust int           `yaml:"retry_priority_adjust"`
	RateLimitBackoff    time.Duration `yaml:"rate_limit_backoff"`
	RateLimitBackoffMax time.Duration `yaml:"rate_limit_backoff_max"`
	RateLimitJitter     time.Duration `yaml:"rate_limit_jitter"`
	RetryBackoff        time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax     time.Duration `yaml:"retry_backoff_max"`
	RetryJitter         time.Duration `yaml:"retry_jitter"`

	ThrottleStartDelay        time.Duration `yaml:"throttle_start_delay"`
	ThrottleMaxDelay          time.Duration `yaml:"throttle_max_delay"`
	ThrottleTargetConcurrency float64       `yaml:"throttle_target_concurrency"`

	UserAgents       []string `yaml:"user_agents"`
	ProxyURL         string   `yaml:"proxy_url"`
	RespectRobotsTxt bool     `yaml:"respect_robots_txt"`

	DocumentMode string `yaml:"document_mode"`
	Currency     string `yaml:"currency"`
	MaxImages    int    `yaml:"max_images"`
	ImageWidth   int    `yaml:"image_width"`

	OutputFile         string `yaml:"output_file"`
	OutputFormat       string `yaml:"output_format"` // csv, json, jsonl, dual, or postgres
	PostgresDSN        string `yaml:"postgres_dsn"`
	PipelineBufferSize int    `yaml:"pipeline_buffer_size"`
	BatchSize          int    `yaml:"batch_size"`
	DedupeMaxSize      int    `yaml:"dedupe_max_size"`

	CheckpointBackend string `yaml:"checkpoint_backend"`
	CheckpointDir     string `yaml:"checkpoint_dir"`
	RedisAddr         string `yaml:"redis_addr"`
	RedisPassword     string `yaml:"redis_password"`
	RedisDB           int    `yaml:"redis_db"`
	JobID             string `yaml:"job_id"`

	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     bool   `yaml:"verbose"`
}

// DefaultUserAgents is the pool each request draws its User-Agent from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
}

// DefaultRetryHTTPCodes lists the statuses treated as transient.
var DefaultRetryHTTPCodes = []int{429, 500, 502, 503, 504, 522, 524, 408, 400}

// DefaultConfig returns conservative defaults for the target storefront.
func DefaultConfig() *Config {
	return &Config{
		StartURL:    "https://styleunion.in/collections/new-in-women?page=1",
		MaxItems:    1200,
		MaxPages:    100,
		Concurrency: 2,

		MinDomainDelay: 5 * time.Second,
		DomainJitter:   2 * time.Second,
		Timeout:        30 * time.Second,

		MaxRetries:          5,
		RetryHTTPCodes:      append([]int(nil), DefaultRetryHTTPCodes...),
		RetryPriorityAdjust: -1,
		RateLimitBackoff:    10 * time.Second,
		RateLimitBackoffMax: 5 * time.Minute,
		RateLimitJitter:     5 * time.Second,
		RetryBackoff:        time.Second,
		RetryBackoffMax:     time.Minute,
		RetryJitter:         time.Second,

		ThrottleStartDelay:        3 * time.Second,
		ThrottleMaxDelay:          10 * time.Second,
		ThrottleTargetConcurrency: 1.0,

		UserAgents: append([]string(nil), DefaultUserAgents...),

		DocumentMode: DocumentModeJSON,
		Currency:     "₹",
		MaxImages:    10,
		ImageWidth:   1200,

		OutputFile:         "output/products.csv",
		OutputFormat:       "dual",
		PipelineBufferSize: 256,
		BatchSize:          32,
		DedupeMaxSize:      50000,

		CheckpointBackend: CheckpointNone,
		CheckpointDir:     "crawls",
		RedisAddr:         "localhost:6379",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("start URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.StartURL)
	if err != nil {
		return fmt.Errorf("invalid start URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("start URL must include a host")
	}

	if c.MaxItems <= 0 {
		return fmt.Errorf("max items must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.MinDomainDelay < 0 {
		return fmt.Errorf("min domain delay cannot be negative")
	}
	if c.DomainJitter < 0 {
		return fmt.Errorf("domain jitter cannot be negative")
	}
	if c.RateLimitRequests < 0 || c.RateLimitWindow < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	for _, code := range c.RetryHTTPCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("retry http code %d out of range", code)
		}
	}
	if c.RetryPriorityAdjust > 0 {
		return fmt.Errorf("retry priority adjust cannot be positive")
	}
	if c.RetryBackoff < 0 || c.RateLimitBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 || c.RateLimitBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.RateLimitBackoffMax > 0 && c.RateLimitBackoff > c.RateLimitBackoffMax {
		return fmt.Errorf("rate limit backoff (%s) cannot exceed rate limit backoff max (%s)", c.RateLimitBackoff, c.RateLimitBackoffMax)
	}
	if c.RetryJitter < 0 || c.RateLimitJitter < 0 {
		return fmt.Errorf("retry jitter cannot be negative")
	}
	if c.ThrottleStartDelay < 0 || c.ThrottleMaxDelay < 0 {
		return fmt.Errorf("throttle delay cannot be negative")
	}
	if c.ThrottleTargetConcurrency <= 0 {
		return fmt.Errorf("throttle target concurrency must be positive")
	}
	if len(c.UserAgents) == 0 {
		return fmt.Errorf("user agent pool cannot be empty")
	}
	if c.ProxyURL != "" {
		if _, err := url.Parse(c.ProxyURL); err != nil {
			return fmt.Errorf("invalid proxy URL: %w", err)
		}
	}
	if c.DocumentMode != DocumentModeJSON && c.DocumentMode != DocumentModeHTML {
		return fmt.Errorf("document mode must be json or html")
	}
	if c.MaxImages <= 0 {
		return fmt.Errorf("max images must be positive")
	}
	if c.ImageWidth < 0 {
		return fmt.Errorf("image width cannot be negative")
	}
	switch c.OutputFormat {
	case "csv", "json", "jsonl", "dual":
		if c.OutputFile == "" {
			return fmt.Errorf("output file cannot be empty")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres output requires a DSN")
		}
	default:
		return fmt.Errorf("output format must be csv, json, jsonl, dual, or postgres")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	switch c.CheckpointBackend {
	case CheckpointNone, "":
	case CheckpointFile, CheckpointSQLite:
		if c.CheckpointDir == "" {
			return fmt.Errorf("checkpoint dir cannot be empty")
		}
	case CheckpointRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis checkpoint requires an address")
		}
	default:
		return fmt.Errorf("checkpoint backend must be none, file, sqlite, or redis")
	}

	return nil
}

// IsRetryStatus reports whether code belongs to the configured retry set.
func (c *Config) IsRetryStatus(code int) bool {
	for _, candidate := range c.RetryHTTPCodes {
		if candidate == code {
			return true
		}
	}
	return false
}

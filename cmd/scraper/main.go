package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-catalog/checkpoint"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
)

// flagValues holds raw command-line values. Only flags the operator set are
// applied, so file and environment settings survive unset flags.
type flagValues struct {
	configFile    string
	startURL      string
	maxItems      int
	maxPages      int
	concurrency   int
	domainDelay   time.Duration
	domainJitter  time.Duration
	maxRetries    int
	timeout       time.Duration
	mode          string
	respectRobots bool
	proxyURL      string
	outputFile    string
	outputFormat  string
	postgresDSN   string
	checkpoint    string
	checkpointDir string
	jobID         string
	metricsAddr   string
	verbose       bool
}

func main() {
	defaults := config.DefaultConfig()
	var fv flagValues

	flag.StringVar(&fv.configFile, "config", "", "YAML configuration file (default: ./"+config.DefaultConfigFile+" or XDG config)")
	flag.StringVar(&fv.startURL, "start-url", defaults.StartURL, "First catalog listing page")
	flag.IntVar(&fv.maxItems, "max-items", defaults.MaxItems, "Item budget: stop after this many products")
	flag.IntVar(&fv.maxPages, "pages", defaults.MaxPages, "Maximum catalog pages to walk")
	flag.IntVar(&fv.concurrency, "concurrency", defaults.Concurrency, "Number of concurrent fetch workers")
	flag.DurationVar(&fv.domainDelay, "delay", defaults.MinDomainDelay, "Minimum spacing between requests to one domain")
	flag.DurationVar(&fv.domainJitter, "jitter", defaults.DomainJitter, "Random jitter added to the domain delay")
	flag.IntVar(&fv.maxRetries, "max-retries", defaults.MaxRetries, "Maximum retry attempts per URL")
	flag.DurationVar(&fv.timeout, "timeout", defaults.Timeout, "Per-request timeout")
	flag.StringVar(&fv.mode, "mode", defaults.DocumentMode, "Product document mode: json or html")
	flag.BoolVar(&fv.respectRobots, "respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	flag.StringVar(&fv.proxyURL, "proxy", "", "Proxy URL for all requests")
	flag.StringVar(&fv.outputFile, "output", defaults.OutputFile, "Output file path")
	flag.StringVar(&fv.outputFormat, "format", defaults.OutputFormat, "Output format: csv, json, jsonl, dual, or postgres")
	flag.StringVar(&fv.postgresDSN, "postgres-dsn", "", "Postgres DSN for the postgres output format")
	flag.StringVar(&fv.checkpoint, "checkpoint", defaults.CheckpointBackend, "Checkpoint backend: none, file, sqlite, or redis")
	flag.StringVar(&fv.checkpointDir, "checkpoint-dir", defaults.CheckpointDir, "Directory for file and sqlite checkpoints")
	flag.StringVar(&fv.jobID, "job", "", "Checkpoint job name (default: derived from the start URL)")
	flag.StringVar(&fv.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flag.BoolVar(&fv.verbose, "v", false, "Enable verbose logging")

	flag.Parse()

	cfg, err := loadConfig(&fv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, SCRAPER_* variables and the
// flags set on the command line, lowest precedence first.
func loadConfig(fv *flagValues) (*config.Config, error) {
	cfg := config.DefaultConfig()

	path := config.FindConfigFile(fv.configFile)
	if fv.configFile != "" && path == "" {
		return nil, fmt.Errorf("config file %s: %w", fv.configFile, config.ErrConfigNotFound)
	}
	if path != "" {
		loaded, err := config.LoadFile(path, cfg)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "start-url":
			cfg.StartURL = fv.startURL
		case "max-items":
			cfg.MaxItems = fv.maxItems
		case "pages":
			cfg.MaxPages = fv.maxPages
		case "concurrency":
			cfg.Concurrency = fv.concurrency
		case "delay":
			cfg.MinDomainDelay = fv.domainDelay
		case "jitter":
			cfg.DomainJitter = fv.domainJitter
		case "max-retries":
			cfg.MaxRetries = fv.maxRetries
		case "timeout":
			cfg.Timeout = fv.timeout
		case "mode":
			cfg.DocumentMode = strings.ToLower(fv.mode)
		case "respect-robots":
			cfg.RespectRobotsTxt = fv.respectRobots
		case "proxy":
			cfg.ProxyURL = fv.proxyURL
		case "output":
			cfg.OutputFile = fv.outputFile
		case "format":
			cfg.OutputFormat = strings.ToLower(fv.outputFormat)
		case "postgres-dsn":
			cfg.PostgresDSN = fv.postgresDSN
		case "checkpoint":
			cfg.CheckpointBackend = strings.ToLower(fv.checkpoint)
		case "checkpoint-dir":
			cfg.CheckpointDir = fv.checkpointDir
		case "job":
			cfg.JobID = fv.jobID
		case "metrics-addr":
			cfg.MetricsAddr = fv.metricsAddr
		case "v":
			cfg.Verbose = fv.verbose
		}
	})
	return cfg, nil
}

func run(cfg *config.Config) error {
	slog.Info("starting crawl",
		slog.String("start_url", cfg.StartURL),
		slog.Int("max_items", cfg.MaxItems),
		slog.Int("pages", cfg.MaxPages),
		slog.Int("workers", cfg.Concurrency),
		slog.String("mode", cfg.DocumentMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	store, err := checkpoint.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening checkpoint: %w", err)
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				slog.Error("close checkpoint", slog.Any("error", err))
			}
		}()
		s.WithCheckpoint(store)
	}

	// output keeps draining after a signal so written products are preserved
	outputCtx := context.WithoutCancel(ctx)
	writer, err := createWriter(outputCtx, cfg)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(outputCtx, writer, cfg)
	p.Start(cfg.Concurrency)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, err := s.Run(ctx, p)
	if err != nil {
		return err
	}

	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown: %w", err)
	}

	if err := writer.Validate(); err != nil {
		slog.Warn("output validation failed", slog.Any("error", err))
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(os.Stdout, result, time.Since(startTime), cfg, p.GetMetrics())
	return nil
}

func createWriter(ctx context.Context, cfg *config.Config) (pipeline.OutputWriter, error) {
	if cfg.OutputFormat == "postgres" {
		return pipeline.NewPostgresWriter(ctx, cfg.PostgresDSN)
	}
	return pipeline.NewFileWriter(cfg.OutputFormat, cfg.OutputFile)
}

func printSummary(out *os.File, result *models.CrawlResult, duration time.Duration, cfg *config.Config, metrics map[string]interface{}) {
	written := int64(0)
	if processed, ok := metrics["processed_products"].(int64); ok {
		written = processed
	}
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(written) / duration.Seconds()
	}
	successRate := 0.0
	if result.RequestCount > 0 {
		failed := len(result.ExhaustedURLs) + len(result.AbandonedURLs)
		successRate = float64(result.RequestCount-result.RetryCount-failed) / float64(result.RequestCount) * 100
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Crawl complete")
	t.AppendRows([]table.Row{
		{"Run ID", result.RunID},
		{"Products emitted", result.TotalCount},
		{"Products written", written},
		{"Budget reached", result.BudgetReached},
		{"Listing pages", result.PageCount},
		{"Requests", result.RequestCount},
		{"Success rate", fmt.Sprintf("%.2f%%", successRate)},
		{"Retries", result.RetryCount},
		{"Exhausted URLs", len(result.ExhaustedURLs)},
		{"Abandoned URLs", len(result.AbandonedURLs)},
		{"Structural failures", result.StructuralCount},
	})
	if len(result.ErrorsByType) > 0 {
		t.AppendSeparator()
		for _, key := range sortedKeys(result.ErrorsByType) {
			t.AppendRow(table.Row{"Errors: " + key, result.ErrorsByType[key]})
		}
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		t.AppendSeparator()
		for _, key := range sortedKeys(valErrors) {
			t.AppendRow(table.Row{"Rejected: " + key, valErrors[key]})
		}
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Duration", duration.Round(time.Millisecond)})
	t.AppendRow(table.Row{"Items/sec", fmt.Sprintf("%.2f", itemsPerSec)})
	if cfg.OutputFormat == "postgres" {
		t.AppendRow(table.Row{"Output", "postgres"})
	} else {
		t.AppendRow(table.Row{"Output", cfg.OutputFile})
	}
	t.Render()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

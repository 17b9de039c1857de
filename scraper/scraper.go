// Package scraper wires the frontier walker, the fetch scheduler and the
// product extractor into one crawl run.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-catalog/checkpoint"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/crawlstate"
	"github.com/aluiziolira/go-scrape-catalog/extractor"
	"github.com/aluiziolira/go-scrape-catalog/frontier"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scheduler"
)

// Scraper runs one crawl of the configured catalog.
type Scraper struct {
	cfg       *config.Config
	state     *crawlstate.State
	walker    *frontier.Walker
	extractor *extractor.Extractor
	fetcher   *scheduler.CollyFetcher
	scheduler *scheduler.Scheduler
	store     checkpoint.Store
	Metrics   *Metrics

	pageCount       int64
	structuralCount int64

	mu           sync.Mutex
	exhausted    []string
	abandoned    []string
	errorsByType map[string]int

	budgetOnce sync.Once
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.StartURL)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("start url must include a host")
	}

	fetcher, err := scheduler.NewCollyFetcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("build fetcher: %w", err)
	}

	state := crawlstate.New(cfg.MaxItems)
	metrics := NewMetrics()
	return &Scraper{
		cfg:          cfg,
		state:        state,
		walker:       frontier.NewWalker(state, cfg),
		extractor:    extractor.New(state, cfg),
		fetcher:      fetcher,
		scheduler:    scheduler.New(cfg, state, fetcher, scheduler.WithObserver(metrics)),
		errorsByType: make(map[string]int),
		Metrics:      metrics,
	}, nil
}

// WithTransport swaps the HTTP transport used for every fetch.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.fetcher.WithTransport(rt)
}

// WithCheckpoint enables resumable runs backed by store.
func (s *Scraper) WithCheckpoint(store checkpoint.Store) {
	s.store = store
}

// Run crawls from the start URL and streams products through p. It returns
// once every fetch reached a terminal outcome or ctx is cancelled.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	runID := uuid.NewString()
	var job *checkpoint.Job
	if s.store != nil {
		var (
			visited []string
			resumed bool
			err     error
		)
		job, visited, resumed, err = checkpoint.Resume(ctx, s.store, s.cfg.StartURL)
		if err != nil {
			return nil, fmt.Errorf("resume checkpoint: %w", err)
		}
		s.state.Restore(visited)
		s.state.SetVisitLog(s.store)
		runID = job.ID
		if resumed {
			slog.Info("resuming crawl",
				slog.String("job", job.ID),
				slog.Int("run", job.Runs),
				slog.Int("visited", len(visited)),
			)
		}
	}

	start := time.Now()
	if err := s.scheduler.Submit(s.cfg.StartURL, models.KindListing); err != nil {
		return nil, fmt.Errorf("submit start url: %w", err)
	}
	if err := s.scheduler.Run(ctx, s.handler(ctx, p)); err != nil {
		return nil, fmt.Errorf("run scheduler: %w", err)
	}

	stats := s.scheduler.Stats()
	result := &models.CrawlResult{
		RunID:           runID,
		StartTime:       start,
		EndTime:         time.Now(),
		TotalCount:      s.state.ItemsEmitted(),
		ExhaustedURLs:   s.snapshot(&s.exhausted),
		AbandonedURLs:   s.snapshot(&s.abandoned),
		ErrorsByType:    s.snapshotErrors(stats.ErrorsByType),
		RetryCount:      stats.Retries,
		RequestCount:    stats.Requests,
		PageCount:       int(atomic.LoadInt64(&s.pageCount)),
		StructuralCount: int(atomic.LoadInt64(&s.structuralCount)),
		BudgetReached:   s.state.BudgetReached(),
	}
	result.ErrorCount = len(result.ExhaustedURLs) + len(result.AbandonedURLs) + result.StructuralCount

	if job != nil && ctx.Err() == nil {
		if err := checkpoint.Finish(ctx, s.store, job, result.TotalCount); err != nil {
			slog.Warn("checkpoint finish failed", slog.Any("error", err))
		}
	}
	return result, nil
}

func (s *Scraper) handler(ctx context.Context, p *pipeline.Pipeline) scheduler.Handler {
	return func(o scheduler.Outcome) {
		switch o.Kind {
		case scheduler.OutcomeDocument:
			if o.Attempt.Kind == models.KindListing {
				s.handleListing(o)
				return
			}
			s.handleProduct(ctx, o, p)
		case scheduler.OutcomeExhausted:
			s.record(&s.exhausted, o.URL())
			s.commit(ctx, o)
		case scheduler.OutcomeAbandoned:
			if errors.Is(o.Err, scheduler.ErrCancelled) || errors.Is(o.Err, context.Canceled) || errors.Is(o.Err, context.DeadlineExceeded) {
				return
			}
			s.record(&s.abandoned, o.URL())
			s.commit(ctx, o)
		}
	}
}

func (s *Scraper) handleListing(o scheduler.Outcome) {
	result, err := s.walker.HandleListing(o.Body, o.URL())
	if err != nil {
		s.structural("listing", o.URL(), err)
		return
	}
	if result.Links > 0 {
		atomic.AddInt64(&s.pageCount, 1)
	}
	slog.Info("listing page walked",
		slog.String("url", o.URL()),
		slog.Int("page", result.Page),
		slog.Int("links", result.Links),
		slog.Int("new_products", len(result.Products)),
	)

	for _, req := range result.Products {
		if err := s.scheduler.Submit(req.URL, req.Kind); err != nil {
			slog.Debug("product not submitted", slog.String("url", req.URL), slog.Any("error", err))
		}
	}
	if result.Next != nil {
		if err := s.scheduler.Submit(result.Next.URL, result.Next.Kind); err != nil {
			slog.Debug("next page not submitted", slog.String("url", result.Next.URL), slog.Any("error", err))
		}
	}
}

func (s *Scraper) handleProduct(ctx context.Context, o scheduler.Outcome, p *pipeline.Pipeline) {
	product, err := s.extractor.Extract(o.Body, o.Attempt.Kind, o.URL())
	switch {
	case errors.Is(err, extractor.ErrBudgetExhausted):
		s.budgetReached()
		return
	case err != nil:
		s.structural("product", o.URL(), err)
		s.commit(ctx, o)
		return
	}

	s.commit(ctx, o)
	s.Metrics.IncItems()
	if err := p.Process(product); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
		slog.Error("pipeline process error", slog.Any("error", err))
	}
	if s.state.BudgetReached() {
		s.budgetReached()
	}
}

// budgetReached stops issuance once: queued and armed fetches are dropped,
// in-flight ones complete and are discarded by the extractor.
func (s *Scraper) budgetReached() {
	s.budgetOnce.Do(func() {
		dropped := s.scheduler.CancelPending()
		slog.Info("item budget reached",
			slog.Int("budget", s.state.Budget()),
			slog.Int("dropped_requests", dropped),
		)
	})
}

func (s *Scraper) commit(ctx context.Context, o scheduler.Outcome) {
	if !o.Attempt.Kind.IsProduct() {
		return
	}
	// finished fetches are recorded even while shutting down
	s.state.Commit(context.WithoutCancel(ctx), parser.ProductURL(o.URL()))
}

func (s *Scraper) structural(stage, url string, err error) {
	atomic.AddInt64(&s.structuralCount, 1)
	s.Metrics.ObserveError("structural")
	s.mu.Lock()
	s.errorsByType["structural"]++
	s.mu.Unlock()
	slog.Warn("structural extraction failure",
		slog.String("stage", stage),
		slog.String("url", url),
		slog.Any("error", err),
	)
}

func (s *Scraper) record(list *[]string, url string) {
	s.mu.Lock()
	*list = append(*list, url)
	s.mu.Unlock()
}

func (s *Scraper) snapshot(list *[]string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(*list))
	copy(out, *list)
	return out
}

func (s *Scraper) snapshotErrors(fetchErrors map[string]int) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType)+len(fetchErrors))
	for k, v := range fetchErrors {
		out[k] = v
	}
	for k, v := range s.errorsByType {
		out[k] += v
	}
	return out
}

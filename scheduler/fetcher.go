package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-catalog/config"
)

// Response is a fetched document of any status.
type Response struct {
	Status  int
	Body    []byte
	Header  http.Header
	Latency time.Duration
}

// Fetcher issues one GET request.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// defaultHeaders mimic a desktop browser navigation.
var defaultHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,*/*;q=0.7",
	"Accept-Language":           "en-IN,en;q=0.9",
	"Cache-Control":             "no-cache",
	"Upgrade-Insecure-Requests": "1",
}

const resultKey = "fetch_result"

type fetchResult struct {
	response *colly.Response
	started  time.Time
}

// CollyFetcher runs requests through a synchronous colly collector. URL
// revisits are allowed so retries are never filtered, and error statuses are
// delivered as responses for the scheduler to classify.
type CollyFetcher struct {
	collector  *colly.Collector
	userAgents []string
}

// NewCollyFetcher builds the collector from cfg.
func NewCollyFetcher(cfg *config.Config) (*CollyFetcher, error) {
	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	if cfg.ProxyURL != "" {
		if err := collector.SetProxy(cfg.ProxyURL); err != nil {
			return nil, fmt.Errorf("configure proxy: %w", err)
		}
	}

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Concurrency,
	}); err != nil {
		return nil, fmt.Errorf("configure limits: %w", err)
	}

	f := &CollyFetcher{
		collector:  collector,
		userAgents: append([]string(nil), cfg.UserAgents...),
	}

	collector.OnRequest(func(r *colly.Request) {
		for k, v := range defaultHeaders {
			if r.Headers.Get(k) == "" {
				r.Headers.Set(k, v)
			}
		}
		r.Headers.Set("User-Agent", f.pickUserAgent())
		if result, ok := r.Ctx.GetAny(resultKey).(*fetchResult); ok {
			result.started = time.Now()
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		if result, ok := r.Ctx.GetAny(resultKey).(*fetchResult); ok {
			result.response = r
		}
	})

	return f, nil
}

// WithTransport swaps the HTTP transport.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

func (f *CollyFetcher) pickUserAgent() string {
	if len(f.userAgents) == 0 {
		return ""
	}
	return f.userAgents[rand.IntN(len(f.userAgents))]
}

// Fetch performs a GET. Non-2xx statuses are returned as responses; only
// transport failures produce an error. The request keeps running after ctx
// is cancelled until the collector timeout fires, but its result is dropped.
func (f *CollyFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	result := &fetchResult{}
	collyCtx := colly.NewContext()
	collyCtx.Put(resultKey, result)

	done := make(chan error, 1)
	go func() {
		done <- f.collector.Request(http.MethodGet, url, nil, collyCtx, nil)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.response == nil {
		if err == nil {
			err = fmt.Errorf("no response for %s", url)
		}
		return nil, err
	}
	if err != nil {
		slog.Debug("response delivered with error", slog.String("url", url), slog.Any("error", err))
	}
	return &Response{
		Status:  result.response.StatusCode,
		Body:    result.response.Body,
		Header:  headerOf(result.response),
		Latency: time.Since(result.started),
	}, nil
}

func headerOf(r *colly.Response) http.Header {
	if r.Headers == nil {
		return http.Header{}
	}
	return *r.Headers
}

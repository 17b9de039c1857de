package scraper

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/scheduler"
)

// Metrics bundles Prometheus collectors for the crawl. It satisfies
// scheduler.Observer.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	ResponsesTotal    *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ItemsScrapedTotal prometheus.Counter
	RetriesTotal      *prometheus.CounterVec
	OutcomesTotal     *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	ThrottleDelay     *prometheus.GaugeVec
}

var _ scheduler.Observer = (*Metrics)(nil)

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper, by document kind.",
		},
		[]string{"kind"},
	)
	responses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_responses_total",
			Help: "HTTP responses received, by status code.",
		},
		[]string{"code"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Total number of products sent to the pipeline.",
		},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts scheduled, by failure category.",
		},
		[]string{"reason"},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_fetch_outcomes_total",
			Help: "Terminal fetch outcomes: document, exhausted or abandoned.",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	throttle := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scraper_throttle_delay_seconds",
			Help: "Current autothrottle delay per host.",
		},
		[]string{"host"},
	)

	registry.MustRegister(requests, responses, requestDuration, itemsScraped, retries, outcomes, errorsTotal, throttle)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		ResponsesTotal:    responses,
		RequestDuration:   requestDuration,
		ItemsScrapedTotal: itemsScraped,
		RetriesTotal:      retries,
		OutcomesTotal:     outcomes,
		ErrorsTotal:       errorsTotal,
		ThrottleDelay:     throttle,
	}
}

// ObserveRequest increments the requests counter.
func (m *Metrics) ObserveRequest(kind models.DocumentKind) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(kind.String()).Inc()
}

// ObserveResponse records a response status and its latency.
func (m *Metrics) ObserveResponse(status int, latency time.Duration) {
	if m == nil {
		return
	}
	m.ResponsesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.RequestDuration.Observe(latency.Seconds())
}

// IncItems increments the items scraped counter.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.ItemsScrapedTotal.Inc()
}

// ObserveRetry increments the retries counter for a failure category.
func (m *Metrics) ObserveRetry(reason string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(reason).Inc()
}

// ObserveOutcome counts a terminal fetch outcome.
func (m *Metrics) ObserveOutcome(kind scheduler.OutcomeKind) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(kind.String()).Inc()
}

// ObserveError increments the errors counter for a type label.
func (m *Metrics) ObserveError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveThrottle exports the current autothrottle delay for host.
func (m *Metrics) ObserveThrottle(host string, delay time.Duration) {
	if m == nil {
		return
	}
	m.ThrottleDelay.WithLabelValues(host).Set(delay.Seconds())
}

// Package extractor builds canonical product records from fetched product
// documents, either storefront HTML pages or the JSON product payload.
package extractor

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/crawlstate"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

var (
	// ErrBudgetExhausted signals that the item budget is spent. It is a
	// control signal, not a failure of the document.
	ErrBudgetExhausted = errors.New("extractor: item budget exhausted")
	// ErrMalformed is returned when a document cannot be parsed at all.
	ErrMalformed = errors.New("extractor: malformed document")
	// ErrNoProduct is returned when a parsed document holds no product.
	ErrNoProduct = errors.New("extractor: no product in document")
)

const progressEvery = 100

// Extractor turns documents into products and counts them against the budget.
type Extractor struct {
	state      *crawlstate.State
	currency   string
	imageWidth int
	maxImages  int
}

// New creates an extractor. state may be nil, which disables budget accounting.
func New(state *crawlstate.State, cfg *config.Config) *Extractor {
	return &Extractor{
		state:      state,
		currency:   cfg.Currency,
		imageWidth: cfg.ImageWidth,
		maxImages:  cfg.MaxImages,
	}
}

// Extract parses body and reserves one budget slot for the resulting product.
// Once the budget is spent every document is refused with ErrBudgetExhausted.
func (e *Extractor) Extract(body []byte, kind models.DocumentKind, docURL string) (*models.Product, error) {
	if e.state != nil && e.state.BudgetReached() {
		return nil, ErrBudgetExhausted
	}

	product, err := e.Parse(body, kind, docURL)
	if err != nil {
		return nil, err
	}

	if e.state != nil {
		count, ok := e.state.TryEmit()
		if !ok {
			return nil, ErrBudgetExhausted
		}
		if count%progressEvery == 0 {
			slog.Info("scraped products", slog.Int("count", count))
		}
	}
	return product, nil
}

// Parse extracts a product without touching the budget.
func (e *Extractor) Parse(body []byte, kind models.DocumentKind, docURL string) (*models.Product, error) {
	switch kind {
	case models.KindProductJSON:
		return e.ParseJSON(body, docURL)
	case models.KindProductHTML:
		return e.ParseHTML(body, docURL)
	default:
		return nil, fmt.Errorf("extract %s: unsupported document kind %s", docURL, kind)
	}
}

func (e *Extractor) imageOptions(docURL string) parser.ImageOptions {
	base, err := url.Parse(docURL)
	if err != nil || !base.IsAbs() {
		base = nil
	}
	return parser.ImageOptions{Base: base, Width: e.imageWidth, Max: e.maxImages}
}

// finalize enforces the record invariants shared by both document kinds.
func (e *Extractor) finalize(p *models.Product, options []parser.Option, details map[string]string) *models.Product {
	p.Currency = e.currency
	p.Sizes, p.Colors = parser.ClassifyVariants(options)
	if p.Sizes == nil {
		p.Sizes = []string{}
	}
	if p.Colors == nil {
		p.Colors = []string{}
	}
	if len(p.Sizes) > 0 {
		p.Size = p.Sizes[0]
	}
	if len(p.Colors) > 0 {
		p.Color = p.Colors[0]
	}
	if p.Images == nil {
		p.Images = []string{}
	}

	p.Details = make(map[string]string, len(details))
	for key, value := range details {
		key = parser.CleanText(key)
		value = parser.CleanText(value)
		if key == "" || value == "" || parser.IsReservedDetailKey(key) {
			continue
		}
		p.Details[key] = value
	}
	return p
}

// mergeDetails copies entries of extra whose keys are not yet in dst.
func mergeDetails(dst, extra map[string]string) map[string]string {
	if dst == nil {
		dst = make(map[string]string, len(extra))
	}
	for k, v := range extra {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
	return dst
}

// Package frontier discovers product links on catalog listing pages and
// drives pagination under the crawl budget.
package frontier

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/crawlstate"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// ErrNoLinks is returned when a listing page yields no product links.
var ErrNoLinks = errors.New("frontier: listing has no product links")

// Request is a fetch the walker wants the scheduler to issue.
type Request struct {
	URL  string
	Kind models.DocumentKind
}

// ListingResult is what one listing page contributes to the frontier.
type ListingResult struct {
	Page     int
	Links    int
	Products []Request
	Next     *Request
}

// linkStrategies are tried in order; the first one that matches any link wins.
var linkStrategies = []string{
	"a.full-unstyled-link",
	".product-card a[href], a.grid-product__link",
	"a[href*='/products/']",
}

// Walker turns listing documents into product and next-page requests.
type Walker struct {
	state    *crawlstate.State
	mode     string
	maxPages int
}

// NewWalker creates a walker sharing state with the scheduler and extractor.
func NewWalker(state *crawlstate.State, cfg *config.Config) *Walker {
	return &Walker{
		state:    state,
		mode:     cfg.DocumentMode,
		maxPages: cfg.MaxPages,
	}
}

// HandleListing extracts product links from body, deduplicates them against
// the crawl state and decides whether the next listing page is fetched.
func (w *Walker) HandleListing(body []byte, sourceURL string) (ListingResult, error) {
	source, err := url.Parse(sourceURL)
	if err != nil {
		return ListingResult{}, fmt.Errorf("parse listing url: %w", err)
	}
	page := PageNumber(source)
	result := ListingResult{Page: page}

	if w.state.BudgetReached() {
		return result, nil
	}
	if !w.state.AdvancePage(ListingKey(source), page) {
		slog.Debug("listing page already walked",
			slog.String("url", sourceURL),
			slog.Int("page", page),
		)
		return result, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("parse listing %s: %w", sourceURL, err)
	}

	links := ExtractLinks(doc, source)
	result.Links = len(links)
	if len(links) == 0 {
		return result, ErrNoLinks
	}

	for _, link := range links {
		if !w.state.MarkVisited(link) {
			continue
		}
		result.Products = append(result.Products, w.productRequest(link))
	}

	if w.state.BudgetReached() || page >= w.maxPages {
		return result, nil
	}
	result.Next = &Request{URL: NextPageURL(source), Kind: models.KindListing}
	return result, nil
}

func (w *Walker) productRequest(link string) Request {
	if w.mode == config.DocumentModeHTML {
		return Request{URL: link, Kind: models.KindProductHTML}
	}
	return Request{URL: parser.ProductDocumentURL(link), Kind: models.KindProductJSON}
}

// ExtractLinks returns the canonical same-host product links of doc in page
// order, using the first selector strategy that matches anything.
func ExtractLinks(doc *goquery.Document, source *url.URL) []string {
	for _, selector := range linkStrategies {
		seen := make(map[string]struct{})
		var links []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok {
				return
			}
			link, ok := parser.CanonicalURL(source, href)
			if !ok {
				return
			}
			if u, err := url.Parse(link); err != nil || u.Host != source.Host {
				return
			}
			if _, dup := seen[link]; dup {
				return
			}
			seen[link] = struct{}{}
			links = append(links, link)
		})
		if len(links) > 0 {
			return links
		}
	}
	return nil
}

// PageNumber reads the page query parameter, defaulting to 1.
func PageNumber(u *url.URL) int {
	page, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// NextPageURL increments the page query parameter, appending it when absent.
func NextPageURL(u *url.URL) string {
	next := *u
	query := next.Query()
	query.Set("page", strconv.Itoa(PageNumber(u)+1))
	next.RawQuery = query.Encode()
	next.Fragment = ""
	return next.String()
}

// ListingKey identifies a listing independently of its page number.
func ListingKey(u *url.URL) string {
	key := *u
	query := key.Query()
	query.Del("page")
	key.RawQuery = query.Encode()
	key.Fragment = ""
	return key.String()
}

package frontier

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/crawlstate"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

const listingURL = "https://shop.example.test/collections/new-in?page=1"

const listingHTML = `<html><body>
<div class="grid">
  <div class="card"><a class="full-unstyled-link" href="/products/linen-shirt?variant=1">Linen Shirt</a></div>
  <div class="card"><a class="full-unstyled-link" href="/products/midi-dress">Midi Dress</a></div>
  <div class="card"><a class="full-unstyled-link" href="/products/linen-shirt?variant=2">Linen Shirt</a></div>
  <div class="card"><a class="full-unstyled-link" href="/products/wrap-top#reviews">Wrap Top</a></div>
</div>
<a href="/products/footer-promo">Promo</a>
<a class="pagination__next" href="/collections/new-in?page=2">Next</a>
</body></html>`

func newWalker(budget, maxPages int, mode string) (*Walker, *crawlstate.State) {
	cfg := config.DefaultConfig()
	cfg.MaxPages = maxPages
	cfg.DocumentMode = mode
	state := crawlstate.New(budget)
	return NewWalker(state, cfg), state
}

func TestHandleListingEmitsProductsAndNext(t *testing.T) {
	w, state := newWalker(100, 100, config.DocumentModeJSON)

	result, err := w.HandleListing([]byte(listingHTML), listingURL)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 3, result.Links)
	assert.Equal(t, []Request{
		{URL: "https://shop.example.test/products/linen-shirt.json", Kind: models.KindProductJSON},
		{URL: "https://shop.example.test/products/midi-dress.json", Kind: models.KindProductJSON},
		{URL: "https://shop.example.test/products/wrap-top.json", Kind: models.KindProductJSON},
	}, result.Products)
	require.NotNil(t, result.Next)
	assert.Equal(t, Request{URL: "https://shop.example.test/collections/new-in?page=2", Kind: models.KindListing}, *result.Next)

	assert.True(t, state.Visited("https://shop.example.test/products/midi-dress"))
}

func TestHandleListingHTMLMode(t *testing.T) {
	w, _ := newWalker(100, 100, config.DocumentModeHTML)

	result, err := w.HandleListing([]byte(listingHTML), listingURL)
	require.NoError(t, err)
	require.Len(t, result.Products, 3)
	assert.Equal(t, Request{URL: "https://shop.example.test/products/linen-shirt", Kind: models.KindProductHTML}, result.Products[0])
}

func TestHandleListingDedupAcrossPages(t *testing.T) {
	w, state := newWalker(100, 100, config.DocumentModeJSON)
	state.MarkVisited("https://shop.example.test/products/midi-dress")

	page2 := strings.ReplaceAll(listingHTML, "wrap-top", "cropped-tee")
	first, err := w.HandleListing([]byte(listingHTML), listingURL)
	require.NoError(t, err)
	second, err := w.HandleListing([]byte(page2), "https://shop.example.test/collections/new-in?page=2")
	require.NoError(t, err)

	assert.Len(t, first.Products, 2)
	require.Len(t, second.Products, 1)
	assert.Equal(t, "https://shop.example.test/products/cropped-tee.json", second.Products[0].URL)
	assert.NotNil(t, second.Next, "a page with only known links still paginates")
}

func TestHandleListingFallbackStrategy(t *testing.T) {
	w, _ := newWalker(100, 100, config.DocumentModeHTML)
	body := `<ul>
	<li class="product-card"><a href="/products/a">A</a></li>
	<li class="product-card"><a href="/products/b">B</a></li>
	</ul><a href="/products/c">C</a><a href="https://elsewhere.test/products/d">D</a>`

	result, err := w.HandleListing([]byte(body), listingURL)
	require.NoError(t, err)

	var urls []string
	for _, r := range result.Products {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{"https://shop.example.test/products/a", "https://shop.example.test/products/b"}, urls)
}

func TestHandleListingBroadStrategyFiltersHosts(t *testing.T) {
	w, _ := newWalker(100, 100, config.DocumentModeHTML)
	body := `<a href="/products/c">C</a><a href="https://elsewhere.test/products/d">D</a><a href="/pages/about">About</a>`

	result, err := w.HandleListing([]byte(body), listingURL)
	require.NoError(t, err)
	require.Len(t, result.Products, 1)
	assert.Equal(t, "https://shop.example.test/products/c", result.Products[0].URL)
}

func TestHandleListingNoLinksEndsCatalog(t *testing.T) {
	w, _ := newWalker(100, 100, config.DocumentModeJSON)

	result, err := w.HandleListing([]byte(`<html><body><p>No products found</p></body></html>`), listingURL)
	assert.ErrorIs(t, err, ErrNoLinks)
	assert.Empty(t, result.Products)
	assert.Nil(t, result.Next)
}

func TestHandleListingPageCeiling(t *testing.T) {
	w, _ := newWalker(100, 3, config.DocumentModeJSON)

	result, err := w.HandleListing([]byte(listingHTML), "https://shop.example.test/collections/new-in?page=3")
	require.NoError(t, err)
	assert.Len(t, result.Products, 3)
	assert.Nil(t, result.Next)
}

func TestHandleListingBudgetReached(t *testing.T) {
	w, state := newWalker(1, 100, config.DocumentModeJSON)
	_, ok := state.TryEmit()
	require.True(t, ok)

	result, err := w.HandleListing([]byte(listingHTML), listingURL)
	require.NoError(t, err)
	assert.Empty(t, result.Products)
	assert.Nil(t, result.Next)
}

func TestHandleListingCycleGuard(t *testing.T) {
	w, _ := newWalker(100, 100, config.DocumentModeJSON)

	_, err := w.HandleListing([]byte(listingHTML), "https://shop.example.test/collections/new-in?page=2")
	require.NoError(t, err)

	again, err := w.HandleListing([]byte(strings.ReplaceAll(listingHTML, "wrap-top", "new-item")), listingURL)
	require.NoError(t, err)
	assert.Empty(t, again.Products)
	assert.Nil(t, again.Next)
}

func TestPagination(t *testing.T) {
	tests := []struct {
		raw      string
		wantPage int
		wantNext string
	}{
		{raw: "https://shop.example.test/collections/all", wantPage: 1, wantNext: "https://shop.example.test/collections/all?page=2"},
		{raw: "https://shop.example.test/collections/all?page=4", wantPage: 4, wantNext: "https://shop.example.test/collections/all?page=5"},
		{raw: "https://shop.example.test/collections/all?page=abc", wantPage: 1, wantNext: "https://shop.example.test/collections/all?page=2"},
		{raw: "https://shop.example.test/collections/all?sort=new&page=0", wantPage: 1, wantNext: "https://shop.example.test/collections/all?page=2&sort=new"},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.wantPage, PageNumber(u), tt.raw)
		assert.Equal(t, tt.wantNext, NextPageURL(u), tt.raw)
	}
}

func TestListingKeyIgnoresPage(t *testing.T) {
	a, _ := url.Parse("https://shop.example.test/collections/all?page=1&sort=new")
	b, _ := url.Parse("https://shop.example.test/collections/all?sort=new&page=7")
	assert.Equal(t, ListingKey(a), ListingKey(b))
}

func TestExtractLinksEmptyDocument(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(""))
	require.NoError(t, err)
	source, _ := url.Parse(listingURL)
	assert.Nil(t, ExtractLinks(doc, source))
}

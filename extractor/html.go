package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// selector reads one value from a document: the attribute attr of the first
// match of css, or its text when attr is empty.
type selector struct {
	css  string
	attr string
}

func (s selector) values(doc *goquery.Document) []string {
	var out []string
	doc.Find(s.css).Each(func(_ int, sel *goquery.Selection) {
		var value string
		if s.attr == "" {
			value = sel.Text()
		} else {
			value, _ = sel.Attr(s.attr)
		}
		if value = parser.CleanText(value); value != "" {
			out = append(out, value)
		}
	})
	return out
}

var (
	nameChain = []selector{
		{css: "h1.product__title"},
		{css: "h1.product-single__title"},
		{css: ".product__title h1"},
	}
	// generic page titles, consulted only once the page is known to be a product
	pageTitleChain = []selector{
		{css: "meta[property='og:title']", attr: "content"},
		{css: "title"},
	}
	priceChain = []selector{
		{css: "span.price-item--sale"},
		{css: "span.price-item--regular"},
		{css: ".product__price"},
		{css: "meta[property='product:price:amount']", attr: "content"},
	}
	skuChain = []selector{
		{css: "span.product__sku"},
		{css: "[itemprop=sku]", attr: "content"},
		{css: "[itemprop=sku]"},
	}
	imageChain = []selector{
		{css: "img.product__media", attr: "srcset"},
		{css: ".product__media img", attr: "src"},
		{css: ".product__media img", attr: "data-src"},
		{css: "meta[property='og:image']", attr: "content"},
	}
	optionSelectors = []string{
		"select[name='id'] option",
		"select.product-form__variants option",
	}
	embeddedJSONSelectors = []string{
		"script#ProductJson-product-template",
		"script[data-product-json]",
	}
)

// firstValue returns the first non-empty value of the chain.
func firstValue(doc *goquery.Document, chain []selector) string {
	for _, s := range chain {
		if values := s.values(doc); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// ParseHTML extracts a product from a storefront product page.
func (e *Extractor) ParseHTML(body []byte, docURL string) (*models.Product, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: %s: empty document", ErrMalformed, docURL)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, docURL, err)
	}

	embedded := embeddedProduct(doc, docURL)
	name := firstValue(doc, nameChain)
	priceText := firstValue(doc, priceChain)
	if name == "" && priceText == "" && embedded == nil && !isProductPage(doc) {
		return nil, fmt.Errorf("%w: %s", ErrNoProduct, docURL)
	}
	if name == "" && embedded != nil {
		name = parser.CleanText(parser.DecodeEntities(embedded.Title))
	}
	if name == "" {
		name = firstValue(doc, pageTitleChain)
	}

	product := &models.Product{
		URL:  parser.ProductURL(docURL),
		Name: name,
		SKU:  firstValue(doc, skuChain),
	}
	product.Price = parser.PricePtr(priceText)
	if product.Price == nil && embedded != nil {
		product.Price = embedded.price(true)
	}
	if product.SKU == "" && embedded != nil {
		product.SKU = embedded.sku()
	}

	product.Images = parser.ResolveImages(imageCandidates(doc, embedded), e.imageOptions(docURL))

	blob := descriptionBlob(doc)
	if blob == "" && embedded != nil {
		blob = embedded.body()
	}
	sections := parser.SplitSections(blob)
	product.Description = sections.Description
	product.CareInstructions = sections.Care

	details := mergeDetails(detailParagraphs(doc), sections.Details)
	if embedded != nil {
		details = mergeDetails(details, embedded.extraDetails())
	}

	options := dropdownOptions(doc)
	if len(options) == 0 && embedded != nil {
		options = embedded.options()
	}
	return e.finalize(product, options, details), nil
}

// isProductPage reports whether the Open Graph type marks doc as a product.
func isProductPage(doc *goquery.Document) bool {
	ogType, _ := doc.Find("meta[property='og:type']").First().Attr("content")
	return strings.EqualFold(strings.TrimSpace(ogType), "product")
}

func embeddedProduct(doc *goquery.Document, docURL string) *productPayload {
	for _, css := range embeddedJSONSelectors {
		raw := strings.TrimSpace(doc.Find(css).First().Text())
		if raw == "" {
			continue
		}
		var payload productPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			slog.Warn("embedded product json unreadable",
				slog.String("url", docURL),
				slog.String("selector", css),
				slog.Any("error", err),
			)
			continue
		}
		if !payload.empty() {
			return &payload
		}
	}
	return nil
}

func imageCandidates(doc *goquery.Document, embedded *productPayload) []string {
	for i, s := range imageChain {
		values := s.values(doc)
		if len(values) == 0 {
			continue
		}
		if i == 0 {
			for j, srcset := range values {
				values[j] = parser.LargestFromSrcset(srcset)
			}
		}
		return values
	}
	if embedded != nil {
		return embedded.imageSources()
	}
	return nil
}

// descriptionBlob joins the description block with the accordion panels, each
// panel introduced by its title so the section anchors can find it.
func descriptionBlob(doc *goquery.Document) string {
	var b strings.Builder
	if html, err := doc.Find("div.product__description").First().Html(); err == nil {
		b.WriteString(html)
	}
	doc.Find("details, .accordion").Each(func(_ int, panel *goquery.Selection) {
		title := parser.CleanText(panel.Find("summary, .accordion__title").First().Text())
		content, err := panel.Find(".accordion__content").First().Html()
		if err != nil || strings.TrimSpace(content) == "" {
			return
		}
		b.WriteString("<p>")
		b.WriteString(title)
		b.WriteString(":</p>")
		b.WriteString(content)
	})
	return strings.TrimSpace(b.String())
}

// detailParagraphs reads "<p><strong>Key:</strong> Value</p>" attribute lines.
func detailParagraphs(doc *goquery.Document) map[string]string {
	details := make(map[string]string)
	doc.Find("div.product__details p").Each(func(_ int, p *goquery.Selection) {
		key, value, ok := strings.Cut(p.Text(), ":")
		if !ok {
			return
		}
		key, value = parser.CleanText(key), parser.CleanText(value)
		if key == "" || value == "" {
			return
		}
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	})
	return details
}

func dropdownOptions(doc *goquery.Document) []parser.Option {
	for _, css := range optionSelectors {
		var options []parser.Option
		doc.Find(css).Each(func(_ int, opt *goquery.Selection) {
			options = append(options, parser.ParseOptionLabel(opt.Text())...)
		})
		if len(options) > 0 {
			return options
		}
	}
	return nil
}

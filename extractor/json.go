package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

type productEnvelope struct {
	Product *productPayload `json:"product"`
}

// productPayload is the storefront product object, served wrapped by the
// .json endpoint and bare inside product page script tags.
type productPayload struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	BodyHTML    string         `json:"body_html"`
	Description string         `json:"description"`
	Vendor      string         `json:"vendor"`
	ProductType string         `json:"product_type"`
	Tags        tagList        `json:"tags"`
	Variants    []variantEntry `json:"variants"`
	Images      imageList      `json:"images"`
	Media       imageList      `json:"media"`
}

type variantEntry struct {
	Price   json.RawMessage `json:"price"`
	SKU     string          `json:"sku"`
	Barcode string          `json:"barcode"`
	Option1 *string         `json:"option1"`
	Option2 *string         `json:"option2"`
	Option3 *string         `json:"option3"`
}

func (p *productPayload) empty() bool {
	return p == nil || (p.ID == 0 && strings.TrimSpace(p.Title) == "" && len(p.Variants) == 0)
}

func (p *productPayload) body() string {
	if p.BodyHTML != "" {
		return p.BodyHTML
	}
	return p.Description
}

// options flattens every option slot of every variant.
func (p *productPayload) options() []parser.Option {
	var out []parser.Option
	for _, v := range p.Variants {
		for slot, value := range []*string{v.Option1, v.Option2, v.Option3} {
			if value == nil {
				continue
			}
			out = append(out, parser.Option{Slot: slot + 1, Value: *value})
		}
	}
	return out
}

// sku follows sku, barcode, then the product id.
func (p *productPayload) sku() string {
	if len(p.Variants) > 0 {
		if sku := strings.TrimSpace(p.Variants[0].SKU); sku != "" {
			return sku
		}
		if barcode := strings.TrimSpace(p.Variants[0].Barcode); barcode != "" {
			return barcode
		}
	}
	if p.ID != 0 {
		return strconv.FormatInt(p.ID, 10)
	}
	return ""
}

// price reads the first variant price. Numeric prices in page-embedded
// payloads are minor units.
func (p *productPayload) price(minorUnits bool) *float64 {
	if len(p.Variants) == 0 {
		return nil
	}
	raw := bytes.TrimSpace(p.Variants[0].Price)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return parser.PricePtr(text)
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err != nil || number < 0 {
		return nil
	}
	if minorUnits {
		number /= 100
	}
	return &number
}

func (p *productPayload) imageSources() []string {
	if len(p.Images) > 0 {
		return p.Images
	}
	return p.Media
}

// extraDetails returns Product Type, Vendor and key:value tags.
func (p *productPayload) extraDetails() map[string]string {
	extra := make(map[string]string)
	if t := strings.TrimSpace(p.ProductType); t != "" {
		extra["Product Type"] = t
	}
	if v := strings.TrimSpace(p.Vendor); v != "" {
		extra["Vendor"] = v
	}
	for _, tag := range p.Tags {
		key, value, ok := strings.Cut(tag, ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if _, exists := extra[key]; !exists {
			extra[key] = value
		}
	}
	return extra
}

// tagList accepts tags as an array or as a comma separated string.
type tagList []string

func (t *tagList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	*t = nil
	for _, tag := range strings.Split(joined, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			*t = append(*t, tag)
		}
	}
	return nil
}

// imageList accepts image entries as objects with src or as bare strings.
type imageList []string

func (l *imageList) UnmarshalJSON(data []byte) error {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("images: %w", err)
	}
	*l = nil
	for _, entry := range entries {
		var src string
		if err := json.Unmarshal(entry, &src); err == nil {
			*l = append(*l, src)
			continue
		}
		var obj struct {
			Src          string `json:"src"`
			PreviewSrc   string `json:"preview_image_src"`
			PreviewImage *struct {
				Src string `json:"src"`
			} `json:"preview_image"`
		}
		if err := json.Unmarshal(entry, &obj); err != nil {
			continue
		}
		switch {
		case obj.Src != "":
			*l = append(*l, obj.Src)
		case obj.PreviewImage != nil && obj.PreviewImage.Src != "":
			*l = append(*l, obj.PreviewImage.Src)
		case obj.PreviewSrc != "":
			*l = append(*l, obj.PreviewSrc)
		}
	}
	return nil
}

// ParseJSON extracts a product from a {"product": {...}} payload.
func (e *Extractor) ParseJSON(body []byte, docURL string) (*models.Product, error) {
	var envelope productEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, docURL, err)
	}
	if envelope.Product.empty() {
		return nil, fmt.Errorf("%w: %s", ErrNoProduct, docURL)
	}
	payload := envelope.Product

	sections := parser.SplitSections(payload.body())
	product := &models.Product{
		URL:              parser.ProductURL(docURL),
		Name:             parser.CleanText(parser.DecodeEntities(payload.Title)),
		Price:            payload.price(false),
		SKU:              payload.sku(),
		Description:      sections.Description,
		CareInstructions: sections.Care,
		Images:           parser.ResolveImages(payload.imageSources(), e.imageOptions(docURL)),
	}
	details := mergeDetails(sections.Details, payload.extraDetails())
	return e.finalize(product, payload.options(), details), nil
}

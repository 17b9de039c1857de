// Package parser holds the pure normalisation helpers shared by the extractor
// and the output pipeline: text cleanup, price parsing, variant
// classification, image resolution and description section recovery.
package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// ValidateProduct ensures the extractor produced a usable record.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("product missing url")
	}
	u, err := url.Parse(p.URL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("product url %q is not absolute", p.URL)
	}
	if p.Price != nil && *p.Price < 0 {
		return fmt.Errorf("product %s has negative price", p.URL)
	}
	for _, size := range p.Sizes {
		if IsPlaceholder(size) {
			return fmt.Errorf("product %s has placeholder size", p.URL)
		}
	}
	for _, color := range p.Colors {
		if IsPlaceholder(color) {
			return fmt.Errorf("product %s has placeholder color", p.URL)
		}
	}
	return nil
}

// NormalizeProduct returns a cleaned copy of p: text fields collapsed,
// boilerplate removed, option lists filtered, images revalidated and
// reserved or empty detail entries dropped.
func NormalizeProduct(p *models.Product) *models.Product {
	out := p.Clone()
	if out == nil {
		return nil
	}

	out.URL = strings.TrimSpace(out.URL)
	out.Name = CleanText(out.Name)
	out.SKU = CleanText(out.SKU)
	out.Currency = CleanText(out.Currency)
	out.Description = CleanDescription(out.Description)
	out.CareInstructions = CleanText(out.CareInstructions)

	out.Sizes = cleanLabels(out.Sizes)
	out.Colors = cleanLabels(out.Colors)
	out.Size, out.Color = "", ""
	if len(out.Sizes) > 0 {
		out.Size = out.Sizes[0]
	}
	if len(out.Colors) > 0 {
		out.Color = out.Colors[0]
	}

	out.Images = ResolveImages(out.Images, ImageOptions{})

	if len(out.Details) > 0 {
		cleaned := make(map[string]string, len(out.Details))
		for key, value := range out.Details {
			key = CleanText(key)
			value = CleanText(value)
			if key == "" || value == "" || IsReservedDetailKey(key) {
				continue
			}
			cleaned[key] = value
		}
		out.Details = cleaned
	}
	return out
}

func cleanLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		label = CleanText(label)
		if IsPlaceholder(label) {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}

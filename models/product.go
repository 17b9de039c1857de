// Package models defines data structures for the scraper.
package models

import "time"

// Product is the canonical record extracted from one product document.
type Product struct {
	URL              string            `csv:"product_url" json:"product_url"`
	Name             string            `csv:"product_name" json:"product_name,omitempty"`
	Price            *float64          `csv:"price" json:"price,omitempty"`
	Currency         string            `csv:"currency" json:"currency,omitempty"`
	SKU              string            `csv:"sku" json:"sku,omitempty"`
	Size             string            `csv:"size" json:"size,omitempty"`
	Color            string            `csv:"color" json:"color,omitempty"`
	Sizes            []string          `csv:"size_list" json:"size_list"`
	Colors           []string          `csv:"color_list" json:"color_list"`
	Description      string            `csv:"description" json:"description,omitempty"`
	CareInstructions string            `csv:"care_instructions" json:"care_instructions,omitempty"`
	Images           []string          `csv:"image_urls" json:"image_urls"`
	Details          map[string]string `csv:"product_details" json:"product_details"`
}

// Clone returns a deep copy so downstream stages can normalise without
// touching the record handed out by the extractor.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	out := *p
	if p.Price != nil {
		price := *p.Price
		out.Price = &price
	}
	out.Sizes = append([]string(nil), p.Sizes...)
	out.Colors = append([]string(nil), p.Colors...)
	out.Images = append([]string(nil), p.Images...)
	if p.Details != nil {
		out.Details = make(map[string]string, len(p.Details))
		for k, v := range p.Details {
			out.Details[k] = v
		}
	}
	return &out
}

// CrawlResult holds the overall result of a crawl run.
type CrawlResult struct {
	RunID           string
	StartTime       time.Time
	EndTime         time.Time
	TotalCount      int
	ErrorCount      int
	ExhaustedURLs   []string
	AbandonedURLs   []string
	ErrorsByType    map[string]int
	RetryCount      int
	RequestCount    int
	PageCount       int
	StructuralCount int
	BudgetReached   bool
}

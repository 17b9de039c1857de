package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Option is one raw variant option value and the slot it came from
// (1-based, matching option1..option3 of the product payload).
type Option struct {
	Slot  int
	Value string
}

// sizeRank is the canonical size vocabulary in ascending order.
var sizeRank = map[string]int{
	"XXS":  0,
	"XS":   1,
	"S":    2,
	"M":    3,
	"L":    4,
	"XL":   5,
	"XXL":  6,
	"XXXL": 7,
}

var numericSizePattern = regexp.MustCompile(`^\d+$`)

// PlaceholderVariant is the label storefronts give single-variant products.
const PlaceholderVariant = "Default Title"

// IsPlaceholder reports whether value carries no option information.
func IsPlaceholder(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || strings.EqualFold(value, PlaceholderVariant)
}

// IsSize reports whether value belongs to the size vocabulary or is purely numeric.
func IsSize(value string) bool {
	key := strings.ToUpper(strings.TrimSpace(value))
	if _, ok := sizeRank[key]; ok {
		return true
	}
	return numericSizePattern.MatchString(key)
}

type sizeEntry struct {
	label string
	rank  int
	value int
	order int
}

// ClassifyVariants splits option values into sizes ordered by canonical rank
// (numeric sizes after the named ones, by value) and colors sorted
// lexicographically. Every slot is classified; placeholders are dropped.
func ClassifyVariants(options []Option) (sizes []string, colors []string) {
	seenSizes := make(map[string]struct{})
	seenColors := make(map[string]struct{})
	var entries []sizeEntry

	for _, opt := range options {
		value := CleanText(opt.Value)
		if IsPlaceholder(value) {
			continue
		}
		if !IsSize(value) {
			if _, ok := seenColors[value]; !ok {
				seenColors[value] = struct{}{}
				colors = append(colors, value)
			}
			continue
		}

		key := strings.ToUpper(value)
		if _, ok := seenSizes[key]; ok {
			continue
		}
		seenSizes[key] = struct{}{}

		entry := sizeEntry{label: value, order: len(entries)}
		if rank, ok := sizeRank[key]; ok {
			entry.rank = rank
		} else {
			entry.rank = len(sizeRank)
			entry.value, _ = strconv.Atoi(key)
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].rank != entries[j].rank {
			return entries[i].rank < entries[j].rank
		}
		if entries[i].value != entries[j].value {
			return entries[i].value < entries[j].value
		}
		return entries[i].order < entries[j].order
	})
	for _, entry := range entries {
		sizes = append(sizes, entry.label)
	}
	sort.Strings(colors)
	return sizes, colors
}

var (
	trailingPricePattern   = regexp.MustCompile(`\s+[-–]\s+(?:₹|Rs\.?|INR|\$|€|£)\s*[\d,]+(?:\.\d+)?\s*$`)
	trailingSoldOutPattern = regexp.MustCompile(`(?i)\s+[-–]\s+sold\s*out\s*$`)
)

// ParseOptionLabel splits a dropdown label such as "M / Red - ₹799" into its
// option slots. The trailing price and sold-out markers are discarded.
func ParseOptionLabel(label string) []Option {
	label = CleanText(label)
	label = trailingSoldOutPattern.ReplaceAllString(label, "")
	label = trailingPricePattern.ReplaceAllString(label, "")
	label = trailingSoldOutPattern.ReplaceAllString(label, "")
	if IsPlaceholder(label) {
		return nil
	}

	parts := strings.Split(label, "/")
	options := make([]Option, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		options = append(options, Option{Slot: i + 1, Value: part})
	}
	return options
}

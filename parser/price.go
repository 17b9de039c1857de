package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var amountPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParsePrice extracts the first decimal amount from a currency-decorated
// string such as "₹1,299.50" or "Rs. 799". ok is false when the string
// carries no digits.
func ParsePrice(text string) (float64, bool) {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	match := amountPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

// PricePtr wraps ParsePrice for optional record fields.
func PricePtr(text string) *float64 {
	value, ok := ParsePrice(text)
	if !ok {
		return nil
	}
	return &value
}

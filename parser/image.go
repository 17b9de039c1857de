package parser

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultMaxImages caps the number of images kept per product.
const DefaultMaxImages = 10

var placeholderMarkers = []string{"no-image", "no_image", "noimage", "placeholder"}

// ImageOptions controls image URL normalisation.
type ImageOptions struct {
	Base  *url.URL // resolves relative references; nil drops them
	Width int      // resolution requested through the width query parameter; 0 leaves it untouched
	Max   int      // result cap; 0 means DefaultMaxImages
}

// IsPlaceholderImage reports whether raw points at a stock "no image" asset.
func IsPlaceholderImage(raw string) bool {
	lower := strings.ToLower(raw)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ResolveImages makes image references absolute, sets the width parameter,
// drops placeholders and duplicates and caps the result, keeping input order.
func ResolveImages(raw []string, opts ImageOptions) []string {
	limit := opts.Max
	if limit <= 0 {
		limit = DefaultMaxImages
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, min(len(raw), limit))
	for _, candidate := range raw {
		if len(out) >= limit {
			break
		}
		resolved, ok := resolveImage(candidate, opts)
		if !ok {
			continue
		}
		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	}
	return out
}

func resolveImage(raw string, opts ImageOptions) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || IsPlaceholderImage(raw) {
		return "", false
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		if opts.Base == nil {
			return "", false
		}
		u = opts.Base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	u.Fragment = ""

	if opts.Width > 0 {
		query := u.Query()
		query.Set("width", strconv.Itoa(opts.Width))
		u.RawQuery = query.Encode()
	}
	return u.String(), true
}

// LargestFromSrcset returns the candidate with the widest "w" descriptor in a
// srcset attribute, or the last candidate when no descriptor is present.
func LargestFromSrcset(srcset string) string {
	best := ""
	bestWidth := -1
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) == 0 {
			continue
		}
		width := 0
		if len(fields) > 1 && strings.HasSuffix(fields[1], "w") {
			width, _ = strconv.Atoi(strings.TrimSuffix(fields[1], "w"))
		}
		if width >= bestWidth {
			best = fields[0]
			bestWidth = width
		}
	}
	return best
}

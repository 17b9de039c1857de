package parser

import (
	"net/url"
	"strings"
)

const jsonSuffix = ".json"

// CanonicalURL resolves href against base and strips the query and fragment.
// ok is false for empty, non-http(s) or unparseable references.
func CanonicalURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		if base == nil {
			return "", false
		}
		u = base.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), true
}

// ProductDocumentURL returns the URL of the JSON representation of a product page.
func ProductDocumentURL(productURL string) string {
	if strings.HasSuffix(productURL, jsonSuffix) {
		return productURL
	}
	return strings.TrimSuffix(productURL, "/") + jsonSuffix
}

// ProductURL maps a fetched document URL back to the canonical product URL.
func ProductURL(documentURL string) string {
	base := documentURL
	if u, err := url.Parse(documentURL); err == nil && u.IsAbs() {
		u.RawQuery = ""
		u.Fragment = ""
		base = u.String()
	}
	return strings.TrimSuffix(base, jsonSuffix)
}

package models

// DocumentKind tells the pipeline how a fetched document must be handled.
type DocumentKind int

const (
	KindListing DocumentKind = iota
	KindProductHTML
	KindProductJSON
)

func (k DocumentKind) String() string {
	switch k {
	case KindListing:
		return "listing"
	case KindProductHTML:
		return "product_html"
	case KindProductJSON:
		return "product_json"
	default:
		return "unknown"
	}
}

// IsProduct reports whether k is one of the product document kinds.
func (k DocumentKind) IsProduct() bool {
	return k == KindProductHTML || k == KindProductJSON
}

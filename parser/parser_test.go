package parser

import (
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestValidateProduct(t *testing.T) {
	tests := []struct {
		name    string
		product *models.Product
		wantErr bool
	}{
		{
			name: "valid product",
			product: &models.Product{
				URL:   "https://shop.example.test/products/linen-shirt",
				Name:  "Linen Shirt",
				Price: floatPtr(799),
			},
			wantErr: false,
		},
		{
			name:    "nil product",
			product: nil,
			wantErr: true,
		},
		{
			name:    "missing url",
			product: &models.Product{Name: "Linen Shirt"},
			wantErr: true,
		},
		{
			name:    "relative url",
			product: &models.Product{URL: "/products/linen-shirt"},
			wantErr: true,
		},
		{
			name:    "negative price",
			product: &models.Product{URL: "https://shop.example.test/products/x", Price: floatPtr(-1)},
			wantErr: true,
		},
		{
			name:    "placeholder size",
			product: &models.Product{URL: "https://shop.example.test/products/x", Sizes: []string{"Default Title"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.product)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProduct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeProduct(t *testing.T) {
	original := &models.Product{
		URL:         " https://shop.example.test/products/x ",
		Name:        "  Linen   Shirt \n",
		Sizes:       []string{" M ", "M", "Default Title"},
		Colors:      []string{"Blue", ""},
		Description: "Breathable linen.   Made in India. Disclaimer: colours vary",
		Images: []string{
			"https://cdn.example.test/a.jpg",
			"https://cdn.example.test/a.jpg",
			"https://cdn.example.test/no-image.png",
		},
		Details: map[string]string{"Fabric ": " Linen", "Details": "x", "Fit": " "},
	}

	got := NormalizeProduct(original)

	if got.URL != "https://shop.example.test/products/x" {
		t.Errorf("url = %q", got.URL)
	}
	if got.Name != "Linen Shirt" {
		t.Errorf("name = %q", got.Name)
	}
	if !reflect.DeepEqual(got.Sizes, []string{"M"}) || got.Size != "M" {
		t.Errorf("sizes = %v size = %q", got.Sizes, got.Size)
	}
	if !reflect.DeepEqual(got.Colors, []string{"Blue"}) || got.Color != "Blue" {
		t.Errorf("colors = %v color = %q", got.Colors, got.Color)
	}
	if got.Description != "Breathable linen." {
		t.Errorf("description = %q", got.Description)
	}
	if len(got.Images) != 1 {
		t.Errorf("images = %v, want one entry", got.Images)
	}
	if !reflect.DeepEqual(got.Details, map[string]string{"Fabric": "Linen"}) {
		t.Errorf("details = %v", got.Details)
	}
	if original.Name != "  Linen   Shirt \n" {
		t.Errorf("normalize mutated the input record")
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   float64
		wantOK bool
	}{
		{name: "rupee with thousands", input: "₹1,299.50", want: 1299.50, wantOK: true},
		{name: "rupee integer", input: "₹799", want: 799, wantOK: true},
		{name: "rs prefix", input: "Rs. 1,049", want: 1049, wantOK: true},
		{name: "indian grouping", input: "₹1,29,999.00", want: 129999, wantOK: true},
		{name: "whitespace", input: "  £10.50  ", want: 10.50, wantOK: true},
		{name: "plain decimal", input: "25.99", want: 25.99, wantOK: true},
		{name: "no digits", input: "Sold out", wantOK: false},
		{name: "empty string", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParsePrice(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	if PricePtr("free") != nil {
		t.Errorf("PricePtr without digits should be nil")
	}
}

func TestClassifyVariants(t *testing.T) {
	tests := []struct {
		name       string
		options    []Option
		wantSizes  []string
		wantColors []string
	}{
		{
			name: "size and color slots",
			options: []Option{
				{Slot: 1, Value: "M"}, {Slot: 2, Value: "Red"},
				{Slot: 1, Value: "L"}, {Slot: 2, Value: "Red"},
			},
			wantSizes:  []string{"M", "L"},
			wantColors: []string{"Red"},
		},
		{
			name: "canonical ordering",
			options: []Option{
				{Slot: 1, Value: "XL"}, {Slot: 1, Value: "xs"}, {Slot: 1, Value: "M"},
				{Slot: 1, Value: "XXXL"}, {Slot: 1, Value: "S"},
			},
			wantSizes: []string{"xs", "S", "M", "XL", "XXXL"},
		},
		{
			name: "numeric sizes after named",
			options: []Option{
				{Slot: 1, Value: "32"}, {Slot: 1, Value: "L"}, {Slot: 1, Value: "28"}, {Slot: 1, Value: "S"},
			},
			wantSizes: []string{"S", "L", "28", "32"},
		},
		{
			name: "color in first slot and size in second",
			options: []Option{
				{Slot: 1, Value: "Navy"}, {Slot: 2, Value: "S"},
				{Slot: 1, Value: "Black"}, {Slot: 2, Value: "M"},
			},
			wantSizes:  []string{"S", "M"},
			wantColors: []string{"Black", "Navy"},
		},
		{
			name: "placeholders discarded",
			options: []Option{
				{Slot: 1, Value: "Default Title"}, {Slot: 2, Value: ""}, {Slot: 3, Value: "  "},
			},
		},
		{
			name: "duplicates collapse",
			options: []Option{
				{Slot: 1, Value: "M"}, {Slot: 1, Value: " M "}, {Slot: 2, Value: "Olive"}, {Slot: 2, Value: "Olive"},
			},
			wantSizes:  []string{"M"},
			wantColors: []string{"Olive"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sizes, colors := ClassifyVariants(tt.options)
			if !reflect.DeepEqual(sizes, tt.wantSizes) {
				t.Errorf("sizes = %v, want %v", sizes, tt.wantSizes)
			}
			if !reflect.DeepEqual(colors, tt.wantColors) {
				t.Errorf("colors = %v, want %v", colors, tt.wantColors)
			}
			for _, size := range sizes {
				if !IsSize(size) {
					t.Errorf("size %q is outside the vocabulary", size)
				}
			}
		})
	}
}

func TestParseOptionLabel(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  []Option
	}{
		{
			name:  "size color price",
			label: "M / Red - ₹799.00",
			want:  []Option{{Slot: 1, Value: "M"}, {Slot: 2, Value: "Red"}},
		},
		{
			name:  "size color",
			label: "XL / Sage Green",
			want:  []Option{{Slot: 1, Value: "XL"}, {Slot: 2, Value: "Sage Green"}},
		},
		{
			name:  "bare size with price",
			label: "S - Rs. 1,299",
			want:  []Option{{Slot: 1, Value: "S"}},
		},
		{
			name:  "sold out marker",
			label: "L / Black - Sold out",
			want:  []Option{{Slot: 1, Value: "L"}, {Slot: 2, Value: "Black"}},
		},
		{
			name:  "hyphenated color kept",
			label: "M / Off-White",
			want:  []Option{{Slot: 1, Value: "M"}, {Slot: 2, Value: "Off-White"}},
		},
		{
			name:  "placeholder",
			label: "Default Title - ₹599",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseOptionLabel(tt.label)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseOptionLabel(%q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "  In \n stock\t(22)  ", expected: "In stock (22)"},
		{input: "non breaking", expected: "non breaking"},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		if got := CleanText(tt.input); got != tt.expected {
			t.Errorf("CleanText(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestDecodeEntities(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "Tom &amp; Jerry", expected: "Tom & Jerry"},
		{input: "&lt;b&gt;", expected: "<b>"},
		{input: "it&#39;s &rsquo;ok&rsquo;", expected: "it's ’ok’"},
		{input: "&#8377;799", expected: "₹799"},
		{input: "&#x20B9;799", expected: "₹799"},
		{input: "a&nbsp;b", expected: "a b"},
		{input: "&unknown;", expected: "&unknown;"},
	}

	for _, tt := range tests {
		if got := DecodeEntities(tt.input); got != tt.expected {
			t.Errorf("DecodeEntities(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestHTMLToText(t *testing.T) {
	markup := `<p>Relaxed   fit shirt.</p><ul><li>Fabric: Cotton</li><li>Fit: Regular</li></ul>` +
		`<script>var x = 1;</script><p>Tom &amp; Jerry<br>second line</p>`
	want := "Relaxed fit shirt.\nFabric: Cotton\nFit: Regular\nTom & Jerry\nsecond line"

	if got := HTMLToText(markup); got != want {
		t.Errorf("HTMLToText() = %q, want %q", got, want)
	}
	if got := HTMLToText("<p>Use &amp;lt;b&amp;gt; tags</p>"); got != "Use &lt;b&gt; tags" {
		t.Errorf("escaped entity literal = %q, want it decoded once", got)
	}
	if got := HTMLToText("plain\ntext"); got != "plain\ntext" {
		t.Errorf("plain text = %q", got)
	}
	if got := HTMLToText("   "); got != "" {
		t.Errorf("blank input = %q", got)
	}
}

func TestCleanDescription(t *testing.T) {
	input := "A flowy midi dress.\nMade in India. Manufactured and Marketed By: Style Co, Mumbai. Product color may slightly vary due to lighting."
	if got := CleanDescription(input); got != "A flowy midi dress." {
		t.Errorf("CleanDescription() = %q", got)
	}
}

func TestResolveImages(t *testing.T) {
	base, _ := url.Parse("https://shop.example.test/products/dress")
	input := []string{
		"//cdn.example.test/files/a.jpg?v=1",
		"/cdn/shop/files/b.jpg",
		"https://cdn.example.test/files/a.jpg?v=1",
		"https://cdn.example.test/files/no-image.gif",
		"",
		"javascript:void(0)",
		"https://cdn.example.test/files/c.jpg?width=300",
	}

	got := ResolveImages(input, ImageOptions{Base: base, Width: 1200})
	want := []string{
		"https://cdn.example.test/files/a.jpg?v=1&width=1200",
		"https://shop.example.test/cdn/shop/files/b.jpg?width=1200",
		"https://cdn.example.test/files/c.jpg?width=1200",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveImages() = %v, want %v", got, want)
	}
}

func TestResolveImagesCap(t *testing.T) {
	var input []string
	for i := 0; i < 25; i++ {
		input = append(input, "https://cdn.example.test/img-"+strings.Repeat("x", i)+".jpg")
	}
	got := ResolveImages(input, ImageOptions{})
	if len(got) != DefaultMaxImages {
		t.Fatalf("len = %d, want %d", len(got), DefaultMaxImages)
	}
	for _, u := range got {
		if !strings.HasPrefix(u, "https://") {
			t.Errorf("image %q is not absolute", u)
		}
	}
}

func TestLargestFromSrcset(t *testing.T) {
	srcset := "//cdn.example.test/a_300x.jpg 300w, //cdn.example.test/a_1200x.jpg 1200w, //cdn.example.test/a_600x.jpg 600w"
	if got := LargestFromSrcset(srcset); got != "//cdn.example.test/a_1200x.jpg" {
		t.Errorf("LargestFromSrcset() = %q", got)
	}
	if got := LargestFromSrcset(""); got != "" {
		t.Errorf("empty srcset = %q", got)
	}
}

func TestCanonicalURL(t *testing.T) {
	base, _ := url.Parse("https://shop.example.test/collections/new-in?page=2")
	tests := []struct {
		href   string
		want   string
		wantOK bool
	}{
		{href: "/products/linen-shirt?variant=123", want: "https://shop.example.test/products/linen-shirt", wantOK: true},
		{href: "/collections/new-in/products/dress#reviews", want: "https://shop.example.test/collections/new-in/products/dress", wantOK: true},
		{href: "//shop.example.test/products/a?x=1", want: "https://shop.example.test/products/a", wantOK: true},
		{href: "https://other.example.test/products/b", want: "https://other.example.test/products/b", wantOK: true},
		{href: "mailto:help@example.test", wantOK: false},
		{href: "#top", wantOK: false},
		{href: "   ", wantOK: false},
	}

	for _, tt := range tests {
		got, ok := CanonicalURL(base, tt.href)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("CanonicalURL(%q) = %q, %v; want %q, %v", tt.href, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestProductDocumentURL(t *testing.T) {
	if got := ProductDocumentURL("https://shop.example.test/products/a"); got != "https://shop.example.test/products/a.json" {
		t.Errorf("ProductDocumentURL() = %q", got)
	}
	if got := ProductDocumentURL("https://shop.example.test/products/a.json"); got != "https://shop.example.test/products/a.json" {
		t.Errorf("ProductDocumentURL() should not double the suffix, got %q", got)
	}
	if got := ProductURL("https://shop.example.test/products/a.json?view=x"); got != "https://shop.example.test/products/a" {
		t.Errorf("ProductURL() = %q", got)
	}
	if got := ProductURL("https://shop.example.test/products/a"); got != "https://shop.example.test/products/a" {
		t.Errorf("ProductURL() = %q", got)
	}
}

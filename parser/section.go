package parser

import (
	"regexp"
	"strings"
)

// Sections is the structured view recovered from a free-form description blob.
type Sections struct {
	Details     map[string]string
	Description string
	Care        string
}

var (
	detailsAnchor     = regexp.MustCompile(`(?i)\bproduct\s+details\b\s*:?`)
	descriptionAnchor = regexp.MustCompile(`(?i)\bdescription\b\s*:?`)
	careAnchor        = regexp.MustCompile(`(?i)\b(?:wash\s*(?:and|&)\s*care|care\s+instructions?|care\s+guide)\b\s*:?`)
)

// reservedDetailKeys never appear as attribute names.
var reservedDetailKeys = map[string]struct{}{
	"details":         {},
	"description":     {},
	"product details": {},
}

// detailKeywords maps the attribute names searched for when the blob has no
// "Product Details" anchor. Longer names precede their prefixes.
var detailKeywords = []struct {
	match string
	key   string
}{
	{"fabric type", "Fabric Type"},
	{"fabric", "Fabric"},
	{"material", "Material"},
	{"pattern", "Pattern"},
	{"fit", "Fit"},
	{"sleeve length", "Sleeve Length"},
	{"sleeve", "Sleeve"},
	{"neckline", "Neck"},
	{"neck", "Neck"},
	{"length", "Length"},
	{"occasion", "Occasion"},
	{"closure", "Closure"},
}

var keywordPattern = buildKeywordPattern()

func buildKeywordPattern() *regexp.Regexp {
	names := make([]string, 0, len(detailKeywords))
	for _, kw := range detailKeywords {
		names = append(names, regexp.QuoteMeta(kw.match))
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(names, "|") + `)\b(?:\s*[:\-–]\s*|\s+)([^.\n;]+)`)
}

var (
	sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
	careVerbPattern = regexp.MustCompile(`(?i)\b(?:wash(?:es|ed|ing)?|dry(?:ing)?|dryer|iron(?:ing)?|bleach(?:ing)?|fade[sd]?|fading|hang|tumble)\b`)
)

// SplitSections recovers attribute pairs, description and care instructions
// from a description blob (markup or plain text).
func SplitSections(blob string) Sections {
	text := HTMLToText(blob)
	if text == "" {
		return Sections{}
	}

	sections := Sections{Care: ExtractCareInstructions(text)}
	body := cutCareSection(text)

	if loc := detailsAnchor.FindStringIndex(body); loc != nil {
		before := body[:loc[0]]
		if d := descriptionAnchor.FindStringIndex(before); d != nil {
			before = before[d[1]:]
		}
		rest := body[loc[1]:]

		detailsPart := rest
		description := ""
		if d := descriptionAnchor.FindStringIndex(rest); d != nil {
			detailsPart = rest[:d[0]]
			description = rest[d[1]:]
		}
		sections.Details = parseKeyValueLines(detailsPart)
		sections.Description = CleanDescription(description)
		if sections.Description == "" {
			sections.Description = CleanDescription(before)
		}
		return sections
	}

	sections.Details = scanDetailKeywords(body)
	if d := descriptionAnchor.FindStringIndex(body); d != nil && strings.TrimSpace(body[:d[0]]) == "" {
		body = body[d[1]:]
	}
	sections.Description = CleanDescription(body)
	return sections
}

// ExtractCareInstructions returns the care text found under a care anchor, or
// else the sentences mentioning care verbs. It returns "" when nothing matches.
func ExtractCareInstructions(text string) string {
	if loc := careAnchor.FindStringIndex(text); loc != nil {
		section := text[loc[1]:]
		if end := nextSectionStart(section); end >= 0 {
			section = section[:end]
		}
		if cleaned := CleanText(section); cleaned != "" {
			return cleaned
		}
	}

	var kept []string
	for _, sentence := range sentencePattern.FindAllString(text, -1) {
		sentence = CleanText(sentence)
		if sentence == "" {
			continue
		}
		if careVerbPattern.MatchString(sentence) {
			kept = append(kept, sentence)
		}
	}
	return strings.Join(kept, " ")
}

func cutCareSection(text string) string {
	loc := careAnchor.FindStringIndex(text)
	if loc == nil {
		return text
	}
	rest := text[loc[1]:]
	end := nextSectionStart(rest)
	if end < 0 {
		return text[:loc[0]]
	}
	return text[:loc[0]] + "\n" + rest[end:]
}

func nextSectionStart(text string) int {
	next := -1
	for _, anchor := range []*regexp.Regexp{detailsAnchor, descriptionAnchor} {
		if loc := anchor.FindStringIndex(text); loc != nil && (next < 0 || loc[0] < next) {
			next = loc[0]
		}
	}
	return next
}

func parseKeyValueLines(text string) map[string]string {
	details := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := CleanText(line[:idx])
		value := CleanText(line[idx+1:])
		if key == "" || value == "" || IsReservedDetailKey(key) {
			continue
		}
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func scanDetailKeywords(text string) map[string]string {
	details := make(map[string]string)
	for _, match := range keywordPattern.FindAllStringSubmatch(text, -1) {
		key := canonicalKeyword(match[1])
		value := CleanText(match[2])
		if key == "" || value == "" {
			continue
		}
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func canonicalKeyword(raw string) string {
	lower := strings.ToLower(CleanText(raw))
	for _, kw := range detailKeywords {
		if kw.match == lower {
			return kw.key
		}
	}
	return ""
}

// IsReservedDetailKey reports whether key is a section header rather than an attribute.
func IsReservedDetailKey(key string) bool {
	_, reserved := reservedDetailKeys[strings.ToLower(CleanText(key))]
	return reserved
}

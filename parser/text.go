package parser

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// CleanText collapses runs of whitespace into single spaces and trims the result.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&ndash;", "–",
	"&mdash;", "—",
	"&lsquo;", "‘",
	"&rsquo;", "’",
	"&ldquo;", "“",
	"&rdquo;", "”",
	"&hellip;", "…",
	"&rupee;", "₹",
)

var numericEntityPattern = regexp.MustCompile(`&#([xX][0-9a-fA-F]+|[0-9]+);`)

// DecodeEntities decodes the fixed set of named entities seen in product copy
// plus decimal and hexadecimal character references. It is meant for plain
// text fields such as JSON titles; markup goes through HTMLToText instead.
func DecodeEntities(text string) string {
	text = numericEntityPattern.ReplaceAllStringFunc(text, func(ref string) string {
		body := ref[2 : len(ref)-1]
		base := 10
		if body[0] == 'x' || body[0] == 'X' {
			body = body[1:]
			base = 16
		}
		code, err := strconv.ParseInt(body, base, 32)
		if err != nil || code <= 0 || code > 0x10FFFF {
			return ref
		}
		return string(rune(code))
	})
	return entityReplacer.Replace(text)
}

var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "ul": {}, "ol": {}, "tr": {}, "table": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}, "section": {}, "article": {},
	"dd": {}, "dt": {}, "dl": {}, "blockquote": {}, "hr": {},
}

var skippedTags = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "template": {},
}

// HTMLToText converts markup to plain text. Block and list boundaries become
// line breaks; every line is whitespace-cleaned and empty lines are dropped.
// Entities are decoded exactly once, by the tokenizer. Plain text input passes
// through with its own line breaks preserved.
func HTMLToText(markup string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(markup))
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return joinLines(b.String())
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if _, ok := skippedTags[tag]; ok && tt == html.StartTagToken {
				skipDepth++
				continue
			}
			if _, ok := blockTags[tag]; ok {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if _, ok := skippedTags[tag]; ok {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if _, ok := blockTags[tag]; ok {
				b.WriteByte('\n')
			}
		}
	}
}

func joinLines(raw string) string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if cleaned := CleanText(line); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return strings.Join(out, "\n")
}

var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)made in india[^.\n]*\.?`),
	regexp.MustCompile(`(?i)disclaimer[^.\n]*\.?`),
	regexp.MustCompile(`(?i)manufactured and marketed by:[^.\n]*\.?`),
	regexp.MustCompile(`(?i)product colou?r may slightly vary[^.\n]*\.?`),
}

// StripBoilerplate removes the legal and disclaimer phrases the storefront
// appends to every description.
func StripBoilerplate(text string) string {
	for _, pattern := range boilerplatePatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	return text
}

// CleanDescription flattens text into one paragraph without boilerplate.
func CleanDescription(text string) string {
	return CleanText(StripBoilerplate(CleanText(text)))
}

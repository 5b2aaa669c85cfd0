package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	// Paragraphs at or under this length are treated as noise
	// (nav items, bylines, cookie banner fragments).
	minParagraphChars = 40
	// Hard cap on concatenated content, independent of quality.
	maxContentChars = 12000
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// ExtractParagraphs pulls candidate article paragraphs out of raw HTML.
// Script, style, and noscript subtrees are removed before matching so
// their text never leaks into paragraphs; comments are dropped by the
// parser. Remaining <p> texts get their whitespace collapsed and short
// paragraphs are discarded.
func ExtractParagraphs(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	doc.Find("script, style, noscript").Remove()

	var paras []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := CollapseWhitespace(sel.Text())
		if len(text) > minParagraphChars {
			paras = append(paras, text)
		}
	})
	return paras
}

// JoinParagraphs concatenates paragraphs with blank lines and applies
// the content cap. The cap is measured in bytes; the cut backs off to a
// rune boundary so capped content is always valid UTF-8.
func JoinParagraphs(paras []string) string {
	text := strings.Join(paras, "\n\n")
	if len(text) > maxContentChars {
		cut := maxContentChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

// CollapseWhitespace squeezes whitespace runs to single spaces and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

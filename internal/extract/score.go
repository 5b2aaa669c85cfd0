package extract

import (
	"regexp"
	"strings"
)

// Signal weights and caps for the quality score. These are tuned values;
// changing any of them shifts the browser-fallback rate for every feed.
const (
	lengthCapChars    = 2000
	paragraphCapCount = 8

	weightLength     = 0.40
	weightParagraphs = 0.25
	weightStructure  = 0.25
	weightStopwords  = 0.10
)

// Space-bounded so "the" in "theme" does not count.
var stopwords = []string{
	" the ", " and ", " but ", " with ", " this ", " that ", " from ",
	" for ", " was ", " were ", " are ", " have ", " has ",
}

var (
	articleTagRe   = regexp.MustCompile(`(?i)<article[\s>]`)
	publishedAtRe  = regexp.MustCompile(`(?i)property=["']article:published_time["']`)
	canonicalRelRe = regexp.MustCompile(`(?i)rel=["']canonical["']`)
)

// Score computes the quality heuristic for an extraction attempt. It is
// a pure function of its inputs: a weighted sum of text length,
// paragraph density, structural markup signals, and stopword coverage,
// each normalized to [0,1]. The result estimates whether the extraction
// captured a real article body rather than a paywall or consent page.
func Score(text string, paragraphs []string, rawHTML string) QualityMetrics {
	// Byte length, not rune count. Feed content is overwhelmingly ASCII,
	// where the two agree; non-ASCII articles score slightly longer.
	charCount := len(text)
	paraCount := len(paragraphs)

	structure := 0
	if articleTagRe.MatchString(rawHTML) ||
		publishedAtRe.MatchString(rawHTML) ||
		canonicalRelRe.MatchString(rawHTML) {
		structure = 1
	}

	lower := strings.ToLower(text)
	matched := 0
	for _, sw := range stopwords {
		if strings.Contains(lower, sw) {
			matched++
		}
	}
	coverage := float64(matched) / float64(len(stopwords))

	lengthSignal := capRatio(charCount, lengthCapChars)
	paraSignal := capRatio(paraCount, paragraphCapCount)

	quality := weightLength*lengthSignal +
		weightParagraphs*paraSignal +
		weightStructure*float64(structure) +
		weightStopwords*coverage

	return QualityMetrics{
		CharCount:        charCount,
		ParagraphCount:   paraCount,
		StructureScore:   structure,
		StopwordCoverage: coverage,
		QualityScore:     quality,
	}
}

func capRatio(n, limit int) float64 {
	if n >= limit {
		return 1
	}
	return float64(n) / float64(limit)
}

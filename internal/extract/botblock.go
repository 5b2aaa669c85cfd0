package extract

import (
	"bytes"
	"strings"
)

// Phrases that indicate a captcha or bot-block interstitial was rendered
// instead of the article.
var defaultBlockPhrases = []string{
	"not a robot",
	"please verify",
	"access denied",
	"captcha",
}

// BlockDetector flags rendered pages that are bot-block interstitials
// rather than article content.
type BlockDetector struct {
	phrases [][]byte
}

// NewBlockDetector builds a detector from phrase keywords. Empty input
// falls back to the default phrase set.
func NewBlockDetector(phrases []string) *BlockDetector {
	if len(phrases) == 0 {
		phrases = defaultBlockPhrases
	}
	lowered := make([][]byte, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(p)))
	}
	return &BlockDetector{phrases: lowered}
}

// Blocked reports whether the extracted text or raw HTML matches a
// block phrase.
func (d *BlockDetector) Blocked(text, rawHTML string) bool {
	if d == nil {
		return false
	}
	haystacks := [][]byte{
		bytes.ToLower([]byte(text)),
		bytes.ToLower([]byte(rawHTML)),
	}
	for _, hay := range haystacks {
		if len(hay) == 0 {
			continue
		}
		for _, phrase := range d.phrases {
			if bytes.Contains(hay, phrase) {
				return true
			}
		}
	}
	return false
}

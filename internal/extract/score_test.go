package extract

import (
	"math"
	"strings"
	"testing"
)

func TestScoreEmptyInput(t *testing.T) {
	t.Parallel()

	m := Score("", nil, "")
	if m.QualityScore != 0 {
		t.Fatalf("expected zero score for empty input, got %v", m.QualityScore)
	}
	if m.CharCount != 0 || m.ParagraphCount != 0 || m.StructureScore != 0 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestScoreSaturatesAtCaps(t *testing.T) {
	t.Parallel()

	// 2000+ chars and 8+ paragraphs saturate the length and paragraph
	// signals regardless of how far past the cap the input goes.
	text := strings.Repeat("x", 5000)
	paras := make([]string, 20)
	for i := range paras {
		paras[i] = "paragraph"
	}

	m := Score(text, paras, "<article><link rel=\"canonical\" href=\"x\"></article>")
	want := 0.40 + 0.25 + 0.25 // full length + paragraphs + structure, no stopwords
	if math.Abs(m.QualityScore-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", m.QualityScore, want)
	}
}

func TestScoreStructureSignals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want int
	}{
		{"article tag", "<article>body</article>", 1},
		{"article tag with attrs", `<article class="post">body</article>`, 1},
		{"published time meta", `<meta property="article:published_time" content="2024-01-01">`, 1},
		{"published time single quotes", `<meta property='article:published_time'>`, 1},
		{"canonical link", `<link rel="canonical" href="https://example.com/a">`, 1},
		{"no signals", "<div><p>text</p></div>", 0},
		{"articled word is not a tag", "<p>articled content</p>", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := Score("", nil, tc.html)
			if m.StructureScore != tc.want {
				t.Fatalf("structure = %d, want %d", m.StructureScore, tc.want)
			}
		})
	}
}

func TestScoreStopwordCoverage(t *testing.T) {
	t.Parallel()

	// All 13 stopwords present, space-bounded.
	text := " the and but with this that from for was were are have has "
	m := Score(text, nil, "")
	if m.StopwordCoverage != 1 {
		t.Fatalf("coverage = %v, want 1", m.StopwordCoverage)
	}

	// Embedded occurrences do not count.
	m = Score("theme android button", nil, "")
	if m.StopwordCoverage != 0 {
		t.Fatalf("coverage = %v, want 0 for embedded words", m.StopwordCoverage)
	}
}

func TestScorePartialLengthSignal(t *testing.T) {
	t.Parallel()

	m := Score(strings.Repeat("x", 1000), nil, "")
	want := 0.40 * 0.5
	if math.Abs(m.QualityScore-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", m.QualityScore, want)
	}
}

func TestScoreCrossesThresholdForRealisticArticle(t *testing.T) {
	t.Parallel()

	para := "The committee said that inflation was higher than expected and this has implications for the policy that was agreed from earlier meetings. "
	paras := make([]string, 8)
	for i := range paras {
		paras[i] = para
	}
	text := strings.Join(paras, "\n\n")

	m := Score(text, paras, "<article><p>x</p></article>")
	if m.QualityScore < 0.60 {
		t.Fatalf("expected realistic article to clear 0.60, got %v (%+v)", m.QualityScore, m)
	}
}

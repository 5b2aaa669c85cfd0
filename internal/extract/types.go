// Package extract defines core types shared across the extraction pipeline.
package extract

import "time"

// ContentStatus represents the lifecycle state of an article's extraction.
type ContentStatus string

// Content status values persisted in the article store.
const (
	StatusPending    ContentStatus = "pending"
	StatusExtracting ContentStatus = "extracting"
	StatusReady      ContentStatus = "ready"
	StatusFailed     ContentStatus = "failed"
)

// Article is the slice of the store row the pipeline reads and patches.
type Article struct {
	ID            string        `json:"id"`
	Link          string        `json:"link"`
	ContentStatus ContentStatus `json:"content_status"`
	FullContent   *string       `json:"full_content,omitempty"`
	LastError     *string       `json:"last_error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ArticlePatch carries the fields a pipeline pass may update on a row.
// Nil pointers leave the column untouched; LastError uses ClearError to
// distinguish "set to null" from "leave alone".
type ArticlePatch struct {
	ContentStatus *ContentStatus
	FullContent   *string
	LastError     *string
	ClearError    bool
}

// QualityMetrics is the ephemeral output of the quality scorer. It is
// never persisted; it only routes the current attempt.
type QualityMetrics struct {
	CharCount        int     `json:"charCount"`
	ParagraphCount   int     `json:"paragraphCount"`
	StructureScore   int     `json:"structureScore"`
	StopwordCoverage float64 `json:"stopwordCoverage"`
	QualityScore     float64 `json:"qualityScore"`
}

// LightweightResult is the outcome of a plain-HTTP extraction attempt.
// A failed fetch yields zero values, not an error.
type LightweightResult struct {
	Text       string
	Paragraphs []string
	RawHTML    string
}

// HeavyResult is the outcome of a browser-rendered extraction, including
// the wall-clock seconds charged against the daily budget.
type HeavyResult struct {
	Text            string
	Paragraphs      []string
	RawHTML         string
	DurationSeconds int
}

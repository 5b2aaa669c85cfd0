package extract

import (
	"context"
	"time"
)

// ArticleStore is the read/patch contract with the external article table.
type ArticleStore interface {
	// NextPending returns the oldest article awaiting extraction, or
	// found=false when the backlog is empty.
	NextPending(ctx context.Context) (Article, bool, error)
	// Patch updates the given fields on one row.
	Patch(ctx context.Context, id string, patch ArticlePatch) error
}

// AcquireResult reports the governor's decision on a slot request.
type AcquireResult struct {
	OK           bool   `json:"ok"`
	Reason       string `json:"reason,omitempty"`
	Running      int    `json:"running"`
	DailySeconds int    `json:"dailySeconds"`
}

// QuotaSnapshot is a read-only view of governor state.
type QuotaSnapshot struct {
	Running      int    `json:"running"`
	DailySeconds int    `json:"dailySeconds"`
	DayKey       string `json:"dayKey"`
}

// Governor is the single source of truth for renderer concurrency and
// the daily time budget. Implementations must process each call to
// completion before starting the next.
type Governor interface {
	Acquire(ctx context.Context, reserveSeconds, maxConcurrent, maxDailySeconds int) (AcquireResult, error)
	Release(ctx context.Context) (int, error)
	AddSeconds(ctx context.Context, seconds int) (int, error)
	Status(ctx context.Context) (QuotaSnapshot, error)
}

// LightweightExtractor fetches raw HTML over plain HTTP and pulls
// candidate paragraphs. Network failures surface as empty results.
type LightweightExtractor interface {
	FetchAndExtract(ctx context.Context, url string) LightweightResult
}

// HeavyExtractor drives the browser renderer.
type HeavyExtractor interface {
	RenderAndExtract(ctx context.Context, url string) (HeavyResult, error)
	// Health verifies the renderer binding without consuming quota.
	Health(ctx context.Context) error
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing day rollover).
type Clock interface {
	Now() time.Time
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/worknuggets/extractor/internal/extract"
)

func seed(id, link string, status extract.ContentStatus, created time.Time) extract.Article {
	return extract.Article{
		ID:            id,
		Link:          link,
		ContentStatus: status,
		CreatedAt:     created,
	}
}

func TestMemoryStoreNextPendingOldestFirst(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(false)
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	s.Add(seed("a2", "https://example.com/2", extract.StatusPending, base.Add(time.Hour)))
	s.Add(seed("a1", "https://example.com/1", extract.StatusPending, base))
	s.Add(seed("a3", "https://example.com/3", extract.StatusReady, base.Add(-time.Hour)))

	art, found, err := s.NextPending(context.Background())
	if err != nil || !found {
		t.Fatalf("NextPending found=%v err=%v", found, err)
	}
	if art.ID != "a1" {
		t.Fatalf("picked %s, want oldest pending a1", art.ID)
	}
}

func TestMemoryStoreNextPendingEmpty(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(false)
	s.Add(seed("a1", "https://example.com/1", extract.StatusReady, time.Now()))

	_, found, err := s.NextPending(context.Background())
	if err != nil {
		t.Fatalf("NextPending error = %v", err)
	}
	if found {
		t.Fatal("expected no candidate")
	}
}

func TestMemoryStoreRetryFailedSelectsFailed(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	strict := NewMemoryStore(false)
	strict.Add(seed("f1", "https://example.com/f", extract.StatusFailed, base))
	if _, found, _ := strict.NextPending(context.Background()); found {
		t.Fatal("failed article selected without retry_failed")
	}

	retrying := NewMemoryStore(true)
	retrying.Add(seed("f1", "https://example.com/f", extract.StatusFailed, base))
	art, found, _ := retrying.NextPending(context.Background())
	if !found || art.ID != "f1" {
		t.Fatalf("expected failed article with retry_failed, got found=%v", found)
	}
}

func TestMemoryStorePatch(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(false)
	s.Add(seed("a1", "https://example.com/1", extract.StatusPending, time.Now()))

	extracting := extract.StatusExtracting
	if err := s.Patch(context.Background(), "a1", extract.ArticlePatch{
		ContentStatus: &extracting,
		ClearError:    true,
	}); err != nil {
		t.Fatalf("Patch error = %v", err)
	}

	ready := extract.StatusReady
	content := "the full article body"
	if err := s.Patch(context.Background(), "a1", extract.ArticlePatch{
		ContentStatus: &ready,
		FullContent:   &content,
		ClearError:    true,
	}); err != nil {
		t.Fatalf("Patch error = %v", err)
	}

	art, ok := s.Get("a1")
	if !ok {
		t.Fatal("article lost")
	}
	if art.ContentStatus != extract.StatusReady || art.FullContent == nil || *art.FullContent != content {
		t.Fatalf("patch not applied: %+v", art)
	}
	if art.LastError != nil {
		t.Fatal("last error not cleared")
	}
}

func TestMemoryStorePatchFailure(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(false)
	s.Add(seed("a1", "https://example.com/1", extract.StatusExtracting, time.Now()))

	failed := extract.StatusFailed
	msg := "browser acquire failed: concurrency_limit"
	if err := s.Patch(context.Background(), "a1", extract.ArticlePatch{
		ContentStatus: &failed,
		LastError:     &msg,
	}); err != nil {
		t.Fatalf("Patch error = %v", err)
	}

	art, _ := s.Get("a1")
	if art.ContentStatus != extract.StatusFailed || art.LastError == nil || *art.LastError != msg {
		t.Fatalf("failure not recorded: %+v", art)
	}
}

func TestMemoryStorePatchUnknownID(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(false)
	ready := extract.StatusReady
	if err := s.Patch(context.Background(), "missing", extract.ArticlePatch{ContentStatus: &ready}); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

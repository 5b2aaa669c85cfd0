package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/worknuggets/extractor/internal/extract"
)

// MemoryStore provides an in-memory article store for development and
// tests.
type MemoryStore struct {
	mu          sync.RWMutex
	articles    map[string]extract.Article
	retryFailed bool
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(retryFailed bool) *MemoryStore {
	return &MemoryStore{
		articles:    make(map[string]extract.Article),
		retryFailed: retryFailed,
	}
}

// Add seeds an article row.
func (s *MemoryStore) Add(article extract.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[article.ID] = article
}

// Get returns a copy of the stored row.
func (s *MemoryStore) Get(id string) (extract.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	art, ok := s.articles[id]
	return art, ok
}

// NextPending returns the oldest article in a selectable status.
func (s *MemoryStore) NextPending(_ context.Context) (extract.Article, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []extract.Article
	for _, art := range s.articles {
		if art.ContentStatus == extract.StatusPending ||
			(s.retryFailed && art.ContentStatus == extract.StatusFailed) {
			candidates = append(candidates, art)
		}
	}
	if len(candidates) == 0 {
		return extract.Article{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates[0], true, nil
}

// Patch updates the given fields on one row.
func (s *MemoryStore) Patch(_ context.Context, id string, patch extract.ArticlePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	art, ok := s.articles[id]
	if !ok {
		return fmt.Errorf("patch article: id %s not found", id)
	}
	if patch.ContentStatus != nil {
		art.ContentStatus = *patch.ContentStatus
	}
	if patch.FullContent != nil {
		content := *patch.FullContent
		art.FullContent = &content
	}
	switch {
	case patch.ClearError:
		art.LastError = nil
	case patch.LastError != nil:
		msg := *patch.LastError
		art.LastError = &msg
	}
	s.articles[id] = art
	return nil
}

// Package store provides article store implementations: Postgres for
// production and memory for development and tests. The pipeline only
// depends on the extract.ArticleStore contract.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/worknuggets/extractor/internal/extract"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresConfig controls the article table connection.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// RetryFailed makes failed articles re-eligible for selection, so a
	// later scheduled pass retries them.
	RetryFailed bool
}

// PostgresStore reads and patches article rows in Postgres.
type PostgresStore struct {
	pool        querier
	retryFailed bool
}

// NewPostgresStore creates a pool-backed article store.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool, retryFailed: cfg.RetryFailed}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool querier, retryFailed bool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool, retryFailed: retryFailed}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// NextPending returns the oldest article awaiting extraction.
func (s *PostgresStore) NextPending(ctx context.Context) (extract.Article, bool, error) {
	statuses := []string{string(extract.StatusPending)}
	if s.retryFailed {
		statuses = append(statuses, string(extract.StatusFailed))
	}

	var art extract.Article
	row := s.pool.QueryRow(ctx, `
SELECT id, link, content_status, created_at
FROM articles
WHERE content_status = ANY($1)
ORDER BY created_at ASC
LIMIT 1`, statuses)
	if err := row.Scan(&art.ID, &art.Link, &art.ContentStatus, &art.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return extract.Article{}, false, nil
		}
		return extract.Article{}, false, fmt.Errorf("select next pending: %w", err)
	}
	return art, true, nil
}

// Patch updates the given fields on one article row.
func (s *PostgresStore) Patch(ctx context.Context, id string, patch extract.ArticlePatch) error {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.ContentStatus != nil {
		add("content_status", string(*patch.ContentStatus))
	}
	if patch.FullContent != nil {
		add("full_content", *patch.FullContent)
	}
	switch {
	case patch.ClearError:
		sets = append(sets, "last_error = NULL")
	case patch.LastError != nil:
		add("last_error", *patch.LastError)
	}

	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE articles SET %s WHERE id = $%d`,
		strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("patch article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patch article: id %s not found", id)
	}
	return nil
}

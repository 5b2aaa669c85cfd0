package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InstanceName is the fixed logical instance all callers resolve to.
// A single row keyed by this name holds the global quota state.
const InstanceName = "GLOBAL"

// MemoryStateStore keeps quota state in memory, for development and tests.
type MemoryStateStore struct {
	mu    sync.Mutex
	state State
	set   bool
}

// NewMemoryStateStore constructs an empty MemoryStateStore.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

// Load returns the stored state, if any.
func (s *MemoryStateStore) Load(_ context.Context) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.set, nil
}

// Save overwrites the stored state.
func (s *MemoryStateStore) Save(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.set = true
	return nil
}

type quotaQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStateStoreConfig controls the Postgres connection pool backing
// the durable quota row.
type PostgresStateStoreConfig struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// PostgresStateStore persists the quota row in Postgres so the budget
// survives restarts.
type PostgresStateStore struct {
	pool quotaQuerier
}

// NewPostgresStateStore connects a pool for the quota row.
func NewPostgresStateStore(ctx context.Context, cfg PostgresStateStoreConfig) (*PostgresStateStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("governor store dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStateStore{pool: pool}, nil
}

// NewPostgresStateStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStateStoreWithPool(pool quotaQuerier) (*PostgresStateStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStateStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStateStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load reads the quota row for the fixed instance name.
func (s *PostgresStateStore) Load(ctx context.Context) (State, bool, error) {
	var state State
	row := s.pool.QueryRow(ctx, `
SELECT running, daily_seconds, day_key
FROM browser_quota
WHERE name = $1`, InstanceName)
	if err := row.Scan(&state.Running, &state.DailySeconds, &state.DayKey); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("load quota row: %w", err)
	}
	return state, true, nil
}

// Save upserts the quota row.
func (s *PostgresStateStore) Save(ctx context.Context, state State) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO browser_quota (name, running, daily_seconds, day_key, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (name) DO UPDATE
SET running = EXCLUDED.running,
    daily_seconds = EXCLUDED.daily_seconds,
    day_key = EXCLUDED.day_key,
    updated_at = NOW()`,
		InstanceName, state.Running, state.DailySeconds, state.DayKey)
	if err != nil {
		return fmt.Errorf("upsert quota row: %w", err)
	}
	return nil
}

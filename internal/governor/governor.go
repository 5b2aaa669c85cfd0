// Package governor implements the serialized quota actor for the
// headless renderer resource. One goroutine owns the quota state; every
// acquire/release/addSeconds/status call is delivered over a channel and
// processed to completion before the next, so the concurrency and daily
// budget invariants hold even with callers in parallel processes.
package governor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/worknuggets/extractor/internal/extract"
)

// Denial reasons returned by Acquire.
const (
	ReasonConcurrencyLimit     = "concurrency_limit"
	ReasonDailyBudgetExhausted = "daily_budget_exhausted"
)

const dayKeyLayout = "2006-01-02"

// State is the quota state owned exclusively by the actor.
type State struct {
	Running      int    `json:"running"`
	DailySeconds int    `json:"dailySeconds"`
	DayKey       string `json:"dayKey"`
}

// StateStore persists quota state across restarts. Implementations need
// no internal serialization; the actor is the only writer.
type StateStore interface {
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, state State) error
}

type opKind int

const (
	opAcquire opKind = iota
	opRelease
	opAddSeconds
	opStatus
)

type op struct {
	kind            opKind
	reserveSeconds  int
	maxConcurrent   int
	maxDailySeconds int
	seconds         int
	reply           chan result
}

type result struct {
	acquire  extract.AcquireResult
	running  int
	daily    int
	snapshot extract.QuotaSnapshot
}

// Actor is the in-process Governor implementation.
type Actor struct {
	ops    chan op
	store  StateStore
	clock  extract.Clock
	logger *zap.Logger
}

// New constructs an Actor. Run must be started before the command
// methods are used.
func New(store StateStore, clock extract.Clock, logger *zap.Logger) *Actor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Actor{
		ops:    make(chan op),
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Run loads persisted state and serves commands until the context ends.
func (a *Actor) Run(ctx context.Context) error {
	state, found, err := a.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load quota state: %w", err)
	}
	if !found {
		state = State{}
	}
	a.logger.Info("governor started",
		zap.Int("running", state.Running),
		zap.Int("daily_seconds", state.DailySeconds),
		zap.String("day_key", state.DayKey),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case o := <-a.ops:
			a.handle(ctx, &state, o)
		}
	}
}

func (a *Actor) handle(ctx context.Context, state *State, o op) {
	// Lazy day rollover: applied before the requested operation so the
	// first command of a new UTC day sees a fresh budget.
	today := a.clock.Now().UTC().Format(dayKeyLayout)
	dirty := false
	if state.DayKey != today {
		state.DailySeconds = 0
		state.DayKey = today
		dirty = true
	}

	var res result
	switch o.kind {
	case opAcquire:
		res.acquire, dirty = a.applyAcquire(state, o, dirty)
	case opRelease:
		if state.Running > 0 {
			state.Running--
			dirty = true
		}
		res.running = state.Running
	case opAddSeconds:
		if o.seconds > 0 {
			state.DailySeconds += o.seconds
			dirty = true
		}
		res.daily = state.DailySeconds
	case opStatus:
		res.snapshot = extract.QuotaSnapshot{
			Running:      state.Running,
			DailySeconds: state.DailySeconds,
			DayKey:       state.DayKey,
		}
	}

	if dirty {
		if err := a.store.Save(ctx, *state); err != nil {
			a.logger.Warn("persist quota state failed", zap.Error(err))
		}
	}
	o.reply <- res
}

func (a *Actor) applyAcquire(state *State, o op, dirty bool) (extract.AcquireResult, bool) {
	if state.Running >= o.maxConcurrent {
		return extract.AcquireResult{
			Reason:       ReasonConcurrencyLimit,
			Running:      state.Running,
			DailySeconds: state.DailySeconds,
		}, dirty
	}
	if state.DailySeconds+o.reserveSeconds > o.maxDailySeconds {
		return extract.AcquireResult{
			Reason:       ReasonDailyBudgetExhausted,
			Running:      state.Running,
			DailySeconds: state.DailySeconds,
		}, dirty
	}
	// Pessimistic reservation: charge the budget up front so a crash
	// between acquire and addSeconds still shows quota consumed.
	state.Running++
	state.DailySeconds += o.reserveSeconds
	return extract.AcquireResult{
		OK:           true,
		Running:      state.Running,
		DailySeconds: state.DailySeconds,
	}, true
}

func (a *Actor) send(ctx context.Context, o op) (result, error) {
	select {
	case a.ops <- o:
	case <-ctx.Done():
		return result{}, fmt.Errorf("governor send: %w", ctx.Err())
	}
	select {
	case res := <-o.reply:
		return res, nil
	case <-ctx.Done():
		return result{}, fmt.Errorf("governor reply: %w", ctx.Err())
	}
}

// Acquire requests a renderer slot plus a budget reservation.
func (a *Actor) Acquire(ctx context.Context, reserveSeconds, maxConcurrent, maxDailySeconds int) (extract.AcquireResult, error) {
	res, err := a.send(ctx, op{
		kind:            opAcquire,
		reserveSeconds:  reserveSeconds,
		maxConcurrent:   maxConcurrent,
		maxDailySeconds: maxDailySeconds,
		reply:           make(chan result, 1),
	})
	if err != nil {
		return extract.AcquireResult{}, err
	}
	return res.acquire, nil
}

// Release returns a slot. Floored at zero to tolerate double-release.
func (a *Actor) Release(ctx context.Context) (int, error) {
	res, err := a.send(ctx, op{kind: opRelease, reply: make(chan result, 1)})
	if err != nil {
		return 0, err
	}
	return res.running, nil
}

// AddSeconds records actual measured renderer usage on top of the
// reservation. The overshoot is accepted, not reconciled.
func (a *Actor) AddSeconds(ctx context.Context, seconds int) (int, error) {
	res, err := a.send(ctx, op{kind: opAddSeconds, seconds: seconds, reply: make(chan result, 1)})
	if err != nil {
		return 0, err
	}
	return res.daily, nil
}

// Status returns a read-only snapshot.
func (a *Actor) Status(ctx context.Context) (extract.QuotaSnapshot, error) {
	res, err := a.send(ctx, op{kind: opStatus, reply: make(chan result, 1)})
	if err != nil {
		return extract.QuotaSnapshot{}, err
	}
	return res.snapshot, nil
}

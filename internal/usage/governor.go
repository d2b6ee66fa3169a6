// Package usage gates sends against plan limits.
package usage

import (
	"context"
	"sync"

	"github.com/set-night/sofia/internal/domain"
	"github.com/shopspring/decimal"
)

// Recorder pushes one counter increment to the backend.
type Recorder interface {
	UpdateUsage(ctx context.Context, counter domain.Counter) error
}

// Spawner runs a task without waiting for it.
type Spawner interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// Governor tracks usage counters locally. Increments are optimistic: the
// local counter moves first and the backend is told in the background.
type Governor struct {
	mu        sync.RWMutex
	counters  domain.UsageCounters
	limits    domain.UsageLimits
	unlimited bool

	recorder Recorder
	tasks    Spawner
}

func NewGovernor(limits domain.UsageLimits, recorder Recorder, tasks Spawner) *Governor {
	return &Governor{limits: limits, recorder: recorder, tasks: tasks}
}

// CanSend is a pure predicate.
func (g *Governor) CanSend(mode domain.Mode) bool {
	return g.Check(mode) == nil
}

// Check explains why a send would be vetoed, or returns nil.
func (g *Governor) Check(mode domain.Mode) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.unlimited {
		return nil
	}
	if g.counters.MessagesUsed >= g.limits.MessageLimit {
		return &domain.LimitError{
			Counter: domain.CounterMessages,
			Used:    g.counters.MessagesUsed,
			Limit:   g.limits.MessageLimit,
		}
	}
	if mode == domain.ModeWebSearch && g.counters.WebSearchesUsed >= g.limits.WebSearchLimit {
		return &domain.LimitError{
			Counter: domain.CounterWebSearches,
			Used:    g.counters.WebSearchesUsed,
			Limit:   g.limits.WebSearchLimit,
		}
	}
	return nil
}

// RecordSend counts one confirmed send.
func (g *Governor) RecordSend(ctx context.Context, mode domain.Mode) {
	counters := []domain.Counter{domain.CounterMessages}

	g.mu.Lock()
	g.counters.MessagesUsed++
	if mode == domain.ModeWebSearch {
		g.counters.WebSearchesUsed++
		counters = append(counters, domain.CounterWebSearches)
	}
	g.mu.Unlock()

	if g.recorder == nil || g.tasks == nil {
		return
	}
	for _, c := range counters {
		g.tasks.Go(ctx, "update usage "+string(c), func(ctx context.Context) error {
			return g.recorder.UpdateUsage(ctx, c)
		})
	}
}

// Refresh replaces local state with the backend's view. It is the only way
// counters move down.
func (g *Governor) Refresh(account domain.Account) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters = account.Usage
	g.unlimited = account.Unlimited()
}

func (g *Governor) Counters() domain.UsageCounters {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.counters
}

// Report is a display view of usage.
type Report struct {
	Counters         domain.UsageCounters
	Limits           domain.UsageLimits
	Unlimited        bool
	MessagesPercent  decimal.Decimal
	WebSearchPercent decimal.Decimal
}

func (g *Governor) Report() Report {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Report{
		Counters:         g.counters,
		Limits:           g.limits,
		Unlimited:        g.unlimited,
		MessagesPercent:  percent(g.counters.MessagesUsed, g.limits.MessageLimit),
		WebSearchPercent: percent(g.counters.WebSearchesUsed, g.limits.WebSearchLimit),
	}
}

// percent is capped at 100 and rounded to whole points.
func percent(used, limit int) decimal.Decimal {
	if limit <= 0 {
		return decimal.NewFromInt(100)
	}
	p := decimal.NewFromInt(int64(used)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(limit))).
		Round(0)
	return decimal.Min(p, decimal.NewFromInt(100))
}

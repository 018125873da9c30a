// Package quota decides whether a user may start another conversion.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
	"github.com/statementdesk/statement-desk/pkg/observability"
)

// Counter reports how many conversions a user completed since a moment.
type Counter interface {
	CountConversionsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Config holds the limits. Zero disables a limit.
type Config struct {
	MonthlyConversions int
	RequestsPerMinute  int
}

// limiterIdle is how long an unused limiter is kept. After a minute it has
// refilled its whole burst, so a fresh one behaves the same.
const limiterIdle = time.Minute

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Gate enforces the per-minute rate and the monthly conversion quota.
type Gate struct {
	cfg       Config
	counter   Counter
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
	mu        sync.Mutex
	limiters  map[string]*userLimiter
	lastSweep time.Time
}

// NewGate creates a gate. counter may be nil when no database is
// configured; the monthly limit is then skipped.
func NewGate(cfg Config, counter Counter, metrics *observability.Metrics, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:      cfg,
		counter:  counter,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*userLimiter),
	}
}

// Check returns ErrRateLimited when the user exhausted the per-minute
// budget and ErrQuotaExceeded when the monthly count reached the limit.
func (g *Gate) Check(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", statement.ErrValidation)
	}

	if g.cfg.RequestsPerMinute > 0 && !g.allow(userID) {
		g.metrics.ObserveQuotaDenial("rate")
		g.logger.Warn("rate limit hit", "user_id", userID, "per_minute", g.cfg.RequestsPerMinute)
		return fmt.Errorf("%w: limit is %d per minute", statement.ErrRateLimited, g.cfg.RequestsPerMinute)
	}

	if g.cfg.MonthlyConversions <= 0 || g.counter == nil {
		return nil
	}
	used, err := g.counter.CountConversionsSince(ctx, userID, MonthStart(g.now()))
	if err != nil {
		return fmt.Errorf("failed to check monthly quota: %w", err)
	}
	if used >= g.cfg.MonthlyConversions {
		g.metrics.ObserveQuotaDenial("monthly")
		g.logger.Warn("monthly quota exhausted", "user_id", userID, "used", used, "limit", g.cfg.MonthlyConversions)
		return fmt.Errorf("%w: %d of %d conversions used this month", statement.ErrQuotaExceeded, used, g.cfg.MonthlyConversions)
	}
	return nil
}

func (g *Gate) allow(userID string) bool {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Sub(g.lastSweep) >= limiterIdle {
		for id, ul := range g.limiters {
			if now.Sub(ul.lastSeen) >= limiterIdle {
				delete(g.limiters, id)
			}
		}
		g.lastSweep = now
	}

	ul, ok := g.limiters[userID]
	if !ok {
		ul = &userLimiter{
			lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(g.cfg.RequestsPerMinute)), g.cfg.RequestsPerMinute),
		}
		g.limiters[userID] = ul
	}
	ul.lastSeen = now
	return ul.lim.AllowN(now, 1)
}

// MonthStart returns midnight UTC on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Package grace decides whether the post-startup grace period is still in
// effect and how long upstream calls may take while it is.
package grace

import (
	"time"

	"graceful-hc-proxy/internal/config"
	"graceful-hc-proxy/internal/model"
)

// Gate is an immutable view of the grace period. All methods are pure
// functions of the supplied instant and are safe for concurrent use.
type Gate struct {
	start   time.Time
	period  time.Duration
	timeout time.Duration
}

// New creates a Gate. Negative durations are treated as zero.
func New(start time.Time, period, timeout time.Duration) *Gate {
	return &Gate{
		start:   start,
		period:  max(period, 0),
		timeout: max(timeout, 0),
	}
}

// FromConfig creates a Gate from the loaded grace settings.
func FromConfig(cfg *config.Config) *Gate {
	return New(cfg.Grace.StartTime, cfg.Grace.Period(), cfg.Grace.RequestTimeout())
}

// Expired reports whether now lies strictly after start+period. The boundary
// instant itself is still inside the grace period.
func (g *Gate) Expired(now time.Time) bool {
	return now.Sub(g.start) > g.period
}

// TimeoutFor returns the bound for an upstream call made at now: the short
// during-grace timeout while the grace period lasts, unbounded afterwards.
func (g *Gate) TimeoutFor(now time.Time) model.Timeout {
	if g.Expired(now) {
		return model.Unbounded()
	}
	return model.Within(g.timeout)
}

// Remaining returns how much of the grace period is left at now.
func (g *Gate) Remaining(now time.Time) time.Duration {
	return max(g.End().Sub(now), 0)
}

// Start returns the instant the grace period is anchored to.
func (g *Gate) Start() time.Time { return g.start }

// End returns the last instant that is still within the grace period.
func (g *Gate) End() time.Time { return g.start.Add(g.period) }

// Period returns the configured grace period length.
func (g *Gate) Period() time.Duration { return g.period }

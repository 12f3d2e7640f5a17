// Package ratelimit paces marketplace actions so publish automation stays
// inside the account's sustainable rate.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/listforge/listforge/internal/config"
	"github.com/listforge/listforge/internal/logger"
	"github.com/listforge/listforge/internal/metrics"
)

const (
	secondsPerMinute = 60.0
	// backoffBase is the multiplier applied per throttle signal.
	backoffBase = 2
)

// Pacer combines a token-bucket rate limit on marketplace actions with a
// hard cap on concurrent automation sessions. Throttle signals from the
// marketplace back the rate off exponentially; sustained success restores
// it one step at a time.
type Pacer struct {
	limiter *rate.Limiter
	slots   chan struct{}
	logger  logger.Logger

	mu         sync.Mutex
	baseRate   rate.Limit
	multiplier int
	maxBackoff int
}

// New creates a Pacer from the configured action budget.
func New(cfg config.LimitsConfig, log logger.Logger) *Pacer {
	actionsPerMinute := cfg.ActionsPerMinute
	if actionsPerMinute <= 0 {
		actionsPerMinute = 6
	}
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 1
	}
	maxBackoff := int(cfg.MaxBackoffMultiple)
	if maxBackoff <= 0 {
		maxBackoff = 8
	}

	baseRate := rate.Limit(float64(actionsPerMinute) / secondsPerMinute)
	return &Pacer{
		limiter:    rate.NewLimiter(baseRate, 1),
		slots:      make(chan struct{}, maxSessions),
		logger:     log,
		baseRate:   baseRate,
		multiplier: 1,
		maxBackoff: maxBackoff,
	}
}

// AcquireSession blocks until an automation session slot is free. The
// returned release function must be called when the session ends.
func (p *Pacer) AcquireSession(ctx context.Context) (func(), error) {
	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait blocks until the next marketplace action is allowed.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// OnThrottled registers a throttle signal from the marketplace (slow
// responses, soft blocks, captchas) and backs the action rate off.
func (p *Pacer) OnThrottled() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.multiplier >= p.maxBackoff {
		return
	}
	p.multiplier *= backoffBase
	if p.multiplier > p.maxBackoff {
		p.multiplier = p.maxBackoff
	}
	p.limiter.SetLimit(p.baseRate / rate.Limit(p.multiplier))
	metrics.SetBackoffMultiplier(p.multiplier)

	p.logger.Warn("marketplace throttle signal, backing off",
		logger.Int("backoff_multiplier", p.multiplier))
}

// OnSuccess registers a clean marketplace interaction and restores one
// backoff step.
func (p *Pacer) OnSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.multiplier == 1 {
		return
	}
	p.multiplier /= backoffBase
	if p.multiplier < 1 {
		p.multiplier = 1
	}
	p.limiter.SetLimit(p.baseRate / rate.Limit(p.multiplier))
	metrics.SetBackoffMultiplier(p.multiplier)
}

// Multiplier reports the current backoff multiplier, for stats.
func (p *Pacer) Multiplier() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.multiplier
}

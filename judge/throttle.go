package judge

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/scalvert/playwright-mcp-evals/logger"
)

// Throttle proactively spaces judge requests to stay under a
// requests-per-minute quota. Best-effort: it cannot account for other
// consumers of the same quota.
type Throttle struct {
	limiter *rate.Limiter

	mu        sync.Mutex
	waitCount int
	waitTotal time.Duration
}

func NewThrottle(rpm int) *Throttle {
	perSecond := float64(rpm) / 60.0
	logger.Logger.Info("Judge throttle configured", "rpm", rpm, "requests_per_second", perSecond)
	return &Throttle{
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Wait blocks until a request slot is available or the context ends.
func (t *Throttle) Wait(ctx context.Context) error {
	start := time.Now()
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	waited := time.Since(start)
	if waited > 10*time.Millisecond {
		t.mu.Lock()
		t.waitCount++
		t.waitTotal += waited
		t.mu.Unlock()
		logger.Logger.Debug("Judge request throttled", "waited", waited)
	}
	return nil
}

// Stats returns how often and how long callers were throttled.
func (t *Throttle) Stats() (count int, total time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waitCount, t.waitTotal
}

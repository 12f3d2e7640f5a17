package automation

import (
	"context"
	"math/rand"
	"time"
)

// Delay bounds for paced page interactions. The distribution is skewed
// rather than uniform: most pauses are short, a few run long, which is how
// a person actually fills in a form.
const (
	minActionDelay = 800 * time.Millisecond
	maxActionDelay = 7 * time.Second
	meanExtraDelay = 1500 * time.Millisecond
)

// humanDelay returns a pause length drawn from a skewed distribution.
func humanDelay() time.Duration {
	extra := time.Duration(rand.ExpFloat64() * float64(meanExtraDelay))
	d := minActionDelay + extra
	if d > maxActionDelay {
		d = maxActionDelay
	}
	return d
}

// pause sleeps for a human-shaped interval or until the context ends.
func pause(ctx context.Context) error {
	timer := time.NewTimer(humanDelay())
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/listforge/listforge/internal/config"
	"github.com/listforge/listforge/internal/logger"
)

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		ActionsPerMinute:   600, // fast enough for tests
		MaxSessions:        2,
		MaxBackoffMultiple: 8,
	}
}

func TestPacerSessionSlots(t *testing.T) {
	p := New(testLimits(), logger.NewNop())
	ctx := context.Background()

	release1, err := p.AcquireSession(ctx)
	if err != nil {
		t.Fatalf("AcquireSession() error = %v", err)
	}
	release2, err := p.AcquireSession(ctx)
	if err != nil {
		t.Fatalf("AcquireSession() error = %v", err)
	}

	// Third acquisition must block until a slot frees.
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := p.AcquireSession(blocked); err == nil {
		t.Fatal("AcquireSession() succeeded with all slots held, want block")
	}

	release1()
	release3, err := p.AcquireSession(ctx)
	if err != nil {
		t.Fatalf("AcquireSession() after release error = %v", err)
	}
	release3()
	release2()
}

func TestPacerBackoffSaturates(t *testing.T) {
	p := New(testLimits(), logger.NewNop())

	if got := p.Multiplier(); got != 1 {
		t.Fatalf("Multiplier() = %d, want 1", got)
	}

	for i := 0; i < 10; i++ {
		p.OnThrottled()
	}
	if got := p.Multiplier(); got != 8 {
		t.Errorf("Multiplier() after repeated throttling = %d, want cap of 8", got)
	}
}

func TestPacerRecoversStepwise(t *testing.T) {
	p := New(testLimits(), logger.NewNop())

	p.OnThrottled()
	p.OnThrottled() // multiplier 4

	p.OnSuccess()
	if got := p.Multiplier(); got != 2 {
		t.Errorf("Multiplier() after one success = %d, want 2", got)
	}

	p.OnSuccess()
	p.OnSuccess() // extra successes never push below 1
	if got := p.Multiplier(); got != 1 {
		t.Errorf("Multiplier() after recovery = %d, want 1", got)
	}
}

func TestPacerWaitHonorsContext(t *testing.T) {
	cfg := testLimits()
	cfg.ActionsPerMinute = 1 // one action per minute, so the second Wait blocks
	p := New(cfg, logger.NewNop())

	ctx := context.Background()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := p.Wait(blocked); err == nil {
		t.Error("second Wait() returned immediately, want context deadline")
	}
}

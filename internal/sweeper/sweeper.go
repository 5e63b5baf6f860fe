// Package sweeper is the timer collaborator that expires stale ringing
// calls. The call state machine schedules nothing itself; timeouts arrive
// through its regular end contract with reason timeout.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chabrush/pkg/calls"
	"chabrush/pkg/delivery"
	"chabrush/pkg/logger"
)

// Start launches the sweep scheduler. ringTTL <= 0 disables sweeping.
// Returns a cancel func stopping the scheduler.
func Start(ctx context.Context, cronExpr string, ringTTL time.Duration, hub *delivery.Hub) (context.CancelFunc, error) {
	if ringTTL <= 0 {
		logger.Info("call_sweeper_disabled")
		return func() {}, nil
	}
	if cronExpr == "" {
		cronExpr = "* * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cronExpr)
	}
	ctx2, cancel := context.WithCancel(ctx)
	go run(ctx2, cronExpr, ringTTL, hub)
	logger.Info("call_sweeper_started", "cron", cronExpr, "ring_ttl", ringTTL)
	return cancel, nil
}

func run(ctx context.Context, cronExpr string, ringTTL time.Duration, hub *delivery.Hub) {
	gr := gronx.New()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := gr.IsDue(cronExpr, now)
			if err != nil || !due {
				continue
			}
			if _, err := Sweep(ringTTL, hub); err != nil {
				logger.Error("call_sweep_failed", "error", err)
			}
		}
	}
}

// Sweep runs one expiry pass and fans out callEnded events for every call
// it timed out. Returns how many calls were ended.
func Sweep(ringTTL time.Duration, hub *delivery.Hub) (int, error) {
	ended, err := calls.ExpireRinging(ringTTL)
	if err != nil {
		return 0, err
	}
	for _, c := range ended {
		if hub != nil {
			hub.NotifyCall(delivery.EvtCallEnded, c)
		}
	}
	if len(ended) > 0 {
		logger.Info("calls_timed_out", "count", len(ended))
	}
	return len(ended), nil
}

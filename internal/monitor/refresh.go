package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/audera-data/quietwatch/internal/timeutil"
)

// TimerRefresh is an in-process RefreshScheduler for platforms without an
// OS-level background task service. Each requested opportunity fires once,
// after notBefore, with a hard execution budget enforced through the
// delivered context's deadline.
type TimerRefresh struct {
	clock  timeutil.Clock
	budget time.Duration
	logger *zap.SugaredLogger

	mu     sync.Mutex
	target func(ctx context.Context, report func(success bool))
}

// NewTimerRefresh creates a TimerRefresh granting windows of the given
// execution budget.
func NewTimerRefresh(clock timeutil.Clock, budget time.Duration, logger *zap.SugaredLogger) *TimerRefresh {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &TimerRefresh{clock: clock, budget: budget, logger: logger}
}

// Bind sets the monitor that delivered opportunities are handed to.
func (r *TimerRefresh) Bind(m *Monitor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = m.HandleRefreshOpportunity
}

// RequestOpportunity schedules one future delivery no earlier than
// notBefore.
func (r *TimerRefresh) RequestOpportunity(notBefore time.Time) error {
	r.mu.Lock()
	target := r.target
	r.mu.Unlock()
	if target == nil {
		return fmt.Errorf("no refresh target bound")
	}

	delay := notBefore.Sub(r.clock.Now())
	go func() {
		if delay > 0 {
			<-r.clock.After(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.budget)
		defer cancel()
		target(ctx, func(success bool) {
			if success {
				r.logger.Debugf("background refresh completed")
			} else {
				r.logger.Debugf("background refresh incomplete")
			}
		})
	}()
	return nil
}

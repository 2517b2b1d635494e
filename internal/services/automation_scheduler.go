package services

import (
	"context"
	"sync"
	"time"
)

// SweepSchedule 停滞商机扫描的调度参数
type SweepSchedule struct {
	InitialDelay time.Duration
	Interval     time.Duration // <= 0 表示只执行一次
}

// SweepHandle controls a scheduled stale sweep. Stop is idempotent and
// returns once the loop has exited.
type SweepHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (h *SweepHandle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed when the sweep loop has exited.
func (h *SweepHandle) Done() <-chan struct{} {
	return h.done
}

// ScheduleStaleSweep runs RunStaleDealsCheck after InitialDelay and then on
// every Interval until ctx is cancelled or the handle is stopped.
func (e *AutomationEngine) ScheduleStaleSweep(ctx context.Context, sched SweepSchedule) *SweepHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &SweepHandle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)

		timer := time.NewTimer(sched.InitialDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.RunStaleDealsCheck(ctx)
		}

		if sched.Interval <= 0 {
			return
		}
		ticker := time.NewTicker(sched.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Debugf("automation: stale sweep for workspace %s stopped", e.workspaceID)
				return
			case <-ticker.C:
				e.RunStaleDealsCheck(ctx)
			}
		}
	}()
	return h
}

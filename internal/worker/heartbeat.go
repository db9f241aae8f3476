package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"conveyor/internal/logging"
	"conveyor/internal/metrics"
	"conveyor/internal/queue"
)

// HeartbeatMonitor stamps liveness for in-flight jobs and reclaims rows
// whose holder stopped heartbeating.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a monitor. A zero timeout disables reclaim.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, m *metrics.Metrics, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger,
		metrics:  m,
		interval: interval,
		timeout:  timeout,
	}
}

// Name implements Worker.
func (h *HeartbeatMonitor) Name() string { return "heartbeat-reclaimer" }

// RunOnce reclaims jobs whose heartbeat expired, returning them to their
// stage's ready status.
func (h *HeartbeatMonitor) RunOnce(ctx context.Context) (bool, error) {
	if h.timeout <= 0 {
		return false, nil
	}
	cutoff := time.Now().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStaleJobs(ctx, cutoff)
	if err != nil {
		return false, err
	}
	if reclaimed > 0 {
		h.metrics.RecordReclaimed(reclaimed)
		h.logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
	}
	return false, nil
}

// StartLoop stamps heartbeats for one job until the context is cancelled.
// Workers run it alongside a long side effect so the reclaimer leaves the
// row alone while real work is in progress.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID int64) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateJobHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				h.logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}

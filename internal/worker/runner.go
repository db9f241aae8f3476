package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"conveyor/internal/logging"
)

type entry struct {
	worker   Worker
	interval time.Duration
}

// Runner drives registered stage workers until stopped.
type Runner struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries []entry
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates a runner. A nil logger disables logging.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{logger: logger}
}

// Register adds a worker to the runner with its poll interval. Registration
// after Start is rejected.
func (r *Runner) Register(w Worker, interval time.Duration) error {
	if w == nil {
		return errors.New("worker is nil")
	}
	if interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("runner already started")
	}
	r.entries = append(r.entries, entry{worker: w, interval: interval})
	return nil
}

// Start begins background processing.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("runner already running")
	}
	if len(r.entries) == 0 {
		r.mu.Unlock()
		return errors.New("no workers registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	r.wg.Add(len(entries))
	r.mu.Unlock()

	for _, e := range entries {
		go r.runLoop(runCtx, e)
	}
	return nil
}

// Stop terminates background processing and waits for completion.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

func (r *Runner) runLoop(ctx context.Context, e entry) {
	defer r.wg.Done()
	logger := r.logger.With(logging.String(logging.FieldComponent, e.worker.Name()))
	logger.Info("worker started", logging.Duration("poll_interval", e.interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		default:
		}

		worked, err := e.worker.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("worker stopped")
				return
			}
			logger.Warn("worker tick failed", logging.Error(err))
		}
		if worked {
			// Backlog present; claim again without waiting.
			continue
		}

		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		case <-time.After(e.interval):
		}
	}
}

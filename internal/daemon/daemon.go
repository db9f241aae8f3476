package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"conveyor/internal/api"
	"conveyor/internal/archiving"
	"conveyor/internal/bridge"
	"conveyor/internal/bus"
	"conveyor/internal/config"
	"conveyor/internal/jobstatus"
	"conveyor/internal/logging"
	"conveyor/internal/metrics"
	"conveyor/internal/monitoring"
	"conveyor/internal/notify"
	"conveyor/internal/policy"
	"conveyor/internal/queue"
	"conveyor/internal/remote"
	"conveyor/internal/staging"
	"conveyor/internal/submission"
	"conveyor/internal/worker"
)

// Options overrides collaborator construction, primarily for tests and
// alternate deployments. Nil fields fall back to defaults: a filesystem data
// client, a sandbox scheduler, and a Redis stream subscription when the bus
// is configured.
type Options struct {
	Submitter    remote.Submitter
	Data         remote.DataClient
	Subscription bus.Subscription
	Notifier     notify.Service
	Metrics      *metrics.Metrics
}

// Daemon coordinates the stage workers, the transfer event bridge, and the
// HTTP endpoints, and enforces single-instance execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	runner   *worker.Runner
	bridge   *bridge.Bridge
	sub      bus.Subscription
	metrics  *metrics.Metrics
	notifier notify.Service
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	bridgeWG sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	Queue        queue.HealthSummary
}

// New constructs a daemon with initialized workers.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	data := opts.Data
	if data == nil {
		data = remote.NewLocalDataClient()
	}
	submitter := opts.Submitter
	if submitter == nil {
		submitter = remote.NewSandboxSubmitter(0)
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewService(cfg)
	}

	filter := cfg.TenantFilter()
	pol := policy.FromConfig(cfg)
	hb := worker.NewHeartbeatMonitor(
		store,
		logger,
		m,
		seconds(cfg.Workers.HeartbeatInterval),
		seconds(cfg.Workers.HeartbeatTimeout),
	)

	runner := worker.NewRunner(logger)
	registrations := []struct {
		worker   worker.Worker
		interval time.Duration
	}{
		{staging.New(store, data, pol, filter, logger, m, hb), seconds(cfg.Workers.StagingPollInterval)},
		{submission.New(store, submitter, pol, filter, logger, m, notifier), seconds(cfg.Workers.SubmissionPollInterval)},
		{monitoring.New(store, submitter, filter, seconds(cfg.Workers.MonitorPollInterval), logger, m), seconds(cfg.Workers.MonitorPollInterval)},
		{archiving.New(store, data, pol, filter, logger, m, notifier), seconds(cfg.Workers.ArchivePollInterval)},
		{hb, seconds(cfg.Workers.HeartbeatInterval)},
	}
	for _, reg := range registrations {
		if err := runner.Register(reg.worker, reg.interval); err != nil {
			return nil, fmt.Errorf("register %s: %w", reg.worker.Name(), err)
		}
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		runner:   runner,
		bridge:   bridge.New(store, logger, m),
		sub:      opts.Subscription,
		metrics:  m,
		notifier: notifier,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock and launches the workers, bridge, and
// HTTP endpoints.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another conveyor daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if d.sub == nil && d.cfg.Bus.RedisAddr != "" {
		sub, err := bus.NewRedisSubscription(d.ctx, d.cfg.Bus)
		if err != nil {
			d.rollbackStart()
			return fmt.Errorf("connect event bus: %w", err)
		}
		d.sub = sub
	}

	if err := d.runner.Start(d.ctx); err != nil {
		d.rollbackStart()
		return fmt.Errorf("start workers: %w", err)
	}

	if d.sub != nil {
		d.bridgeWG.Add(1)
		go func() {
			defer d.bridgeWG.Done()
			if err := d.bridge.Run(d.ctx, d.sub); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("transfer bridge stopped", logging.Error(err))
			}
		}()
	}

	if err := d.api.start(d.ctx); err != nil {
		d.runner.Stop()
		d.bridgeWG.Wait()
		d.rollbackStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("conveyor daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) rollbackStart() {
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
	_ = d.lock.Unlock()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.runner.Stop()
	d.bridgeWG.Wait()
	if d.sub != nil {
		if err := d.sub.Close(); err != nil {
			d.logger.Warn("failed to close event bus subscription", logging.Error(err))
		}
		d.sub = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("conveyor daemon stopped")
}

// Close stops the daemon and releases resources.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon is started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the bound HTTP listen address, or an empty string when the
// HTTP server is disabled.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// ListJobs returns jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses ...jobstatus.Status) ([]*queue.Job, error) {
	if d.store == nil {
		return nil, errors.New("job store unavailable")
	}
	return d.store.ListJobs(ctx, statuses...)
}

// RetryJob returns a failed job to the queue with its retry counter reset.
func (d *Daemon) RetryJob(ctx context.Context, jobUUID string) (*queue.Job, error) {
	return api.RetryJob(ctx, d.store, jobUUID)
}

// KillJob stops an in-flight job at operator request.
func (d *Daemon) KillJob(ctx context.Context, jobUUID string) (*queue.Job, error) {
	return api.KillJob(ctx, d.store, jobUUID)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.TestNotification(ctx)
}

// Status returns the current daemon status. Queue health failures leave the
// queue summary zeroed; the daemon fields remain valid.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
	if summary, err := d.store.Health(ctx); err == nil {
		status.Queue = summary
	} else {
		d.logger.Warn("queue health check failed", logging.Error(err))
	}
	return status
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

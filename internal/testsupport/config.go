package testsupport

import (
	"path/filepath"
	"testing"

	"conveyor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.MetricsBind = "127.0.0.1:0"
	cfg.Bus.Consumer = "test-consumer"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithTenants sets the tenant filter expressions on the test config.
func WithTenants(tenants ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Tenancy.Tenants = tenants
	}
}

// WithHeartbeat overrides heartbeat cadence fields, in seconds.
func WithHeartbeat(interval, timeout int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workers.HeartbeatInterval = interval
		cfg.Workers.HeartbeatTimeout = timeout
	}
}

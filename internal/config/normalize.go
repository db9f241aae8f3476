package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTenancy()
	c.normalizeWorkers()
	c.normalizeRetry()
	c.normalizeBus()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.MetricsBind = strings.TrimSpace(c.Paths.MetricsBind)
	if c.Paths.MetricsBind == "" {
		c.Paths.MetricsBind = defaultMetricsBind
	}
	return nil
}

func (c *Config) normalizeTenancy() {
	entries := make([]string, 0, len(c.Tenancy.Tenants))
	for _, raw := range c.Tenancy.Tenants {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		entries = append(entries, entry)
	}
	c.Tenancy.Tenants = entries
}

func (c *Config) normalizeWorkers() {
	if c.Workers.StagingPollInterval <= 0 {
		c.Workers.StagingPollInterval = defaultStagingPollInterval
	}
	if c.Workers.SubmissionPollInterval <= 0 {
		c.Workers.SubmissionPollInterval = defaultSubmissionPollInterval
	}
	if c.Workers.MonitorPollInterval <= 0 {
		c.Workers.MonitorPollInterval = defaultMonitorPollInterval
	}
	if c.Workers.ArchivePollInterval <= 0 {
		c.Workers.ArchivePollInterval = defaultArchivePollInterval
	}
	if c.Workers.ErrorRetryInterval <= 0 {
		c.Workers.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workers.HeartbeatInterval <= 0 {
		c.Workers.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workers.HeartbeatTimeout <= 0 {
		c.Workers.HeartbeatTimeout = defaultHeartbeatTimeout
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.StagingRetries <= 0 {
		c.Retry.StagingRetries = defaultStagingRetries
	}
	if c.Retry.SubmissionRetries <= 0 {
		c.Retry.SubmissionRetries = defaultSubmissionRetries
	}
	if c.Retry.ArchiveRetries <= 0 {
		c.Retry.ArchiveRetries = defaultArchiveRetries
	}
	if c.Retry.StagingTimeout <= 0 {
		c.Retry.StagingTimeout = defaultStagingTimeout
	}
}

func (c *Config) normalizeBus() {
	// An empty address stays empty: the daemon only connects the event
	// bridge when an address is configured.
	c.Bus.RedisAddr = strings.TrimSpace(c.Bus.RedisAddr)
	if c.Bus.RedisPassword == "" {
		if value, ok := os.LookupEnv("CONVEYOR_REDIS_PASSWORD"); ok {
			c.Bus.RedisPassword = value
		}
	}
	c.Bus.Stream = strings.TrimSpace(c.Bus.Stream)
	if c.Bus.Stream == "" {
		c.Bus.Stream = defaultBusStream
	}
	c.Bus.Group = strings.TrimSpace(c.Bus.Group)
	if c.Bus.Group == "" {
		c.Bus.Group = defaultBusGroup
	}
	c.Bus.Consumer = strings.TrimSpace(c.Bus.Consumer)
	if c.Bus.Consumer == "" {
		host, err := os.Hostname()
		if err != nil || strings.TrimSpace(host) == "" {
			host = "conveyord"
		}
		c.Bus.Consumer = host
	}
	if c.Bus.BlockSeconds <= 0 {
		c.Bus.BlockSeconds = defaultBusBlockSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

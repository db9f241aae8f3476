package config

const (
	defaultDataDir                = "~/.local/share/conveyor"
	defaultLogDir                 = "~/.local/share/conveyor/logs"
	defaultMetricsBind            = "127.0.0.1:9478"
	defaultStagingPollInterval    = 5
	defaultSubmissionPollInterval = 5
	defaultMonitorPollInterval    = 15
	defaultArchivePollInterval    = 15
	defaultErrorRetryInterval     = 10
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultStagingRetries         = 3
	defaultSubmissionRetries      = 3
	defaultArchiveRetries         = 3
	defaultStagingTimeout         = 240
	defaultBusStream              = "transfertask.events"
	defaultBusGroup               = "conveyor"
	defaultBusBlockSeconds        = 5
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			MetricsBind: defaultMetricsBind,
		},
		Workers: Workers{
			StagingPollInterval:    defaultStagingPollInterval,
			SubmissionPollInterval: defaultSubmissionPollInterval,
			MonitorPollInterval:    defaultMonitorPollInterval,
			ArchivePollInterval:    defaultArchivePollInterval,
			ErrorRetryInterval:     defaultErrorRetryInterval,
			HeartbeatInterval:      defaultHeartbeatInterval,
			HeartbeatTimeout:       defaultHeartbeatTimeout,
		},
		Retry: Retry{
			StagingRetries:    defaultStagingRetries,
			SubmissionRetries: defaultSubmissionRetries,
			ArchiveRetries:    defaultArchiveRetries,
			StagingTimeout:    defaultStagingTimeout,
		},
		Bus: Bus{
			Stream:       defaultBusStream,
			Group:        defaultBusGroup,
			BlockSeconds: defaultBusBlockSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobFinished:    true,
			JobFailed:      true,
			StageExhausted: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package serverconfig

// Default values for every configuration option, the "layer 0" a config
// file's values are decoded on top of.
const (
	defaultListenAddr      = ":8080"
	defaultShutdownTimeout = "30s"
	defaultRequestTimeout  = "30s"

	defaultDatabasePath = "taskserver.db"
	defaultBusyTimeout  = "5s"

	defaultSyncPushRate            = 10.0
	defaultSyncPushBurst           = 20
	defaultSyncPullRate            = 20.0
	defaultSyncPullBurst           = 40
	defaultConflictResolutionRate  = 5.0
	defaultConflictResolutionBurst = 10

	defaultTombstoneRetentionDays = 90
	defaultSweepInterval          = "1h"

	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// DefaultConfig returns a Config populated with all default values, used
// both as the decode target (so unset keys keep their default) and as the
// zero-config fallback when no file is supplied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      defaultListenAddr,
			ShutdownTimeout: defaultShutdownTimeout,
			RequestTimeout:  defaultRequestTimeout,
		},
		Database: DatabaseConfig{
			Path:        defaultDatabasePath,
			BusyTimeout: defaultBusyTimeout,
		},
		Throttle: ThrottleConfig{
			SyncPush:           ScopeLimit{RatePerSecond: defaultSyncPushRate, Burst: defaultSyncPushBurst},
			SyncPull:           ScopeLimit{RatePerSecond: defaultSyncPullRate, Burst: defaultSyncPullBurst},
			ConflictResolution: ScopeLimit{RatePerSecond: defaultConflictResolutionRate, Burst: defaultConflictResolutionBurst},
		},
		Tombstone: TombstoneConfig{
			RetentionDays: defaultTombstoneRetentionDays,
			SweepInterval: defaultSweepInterval,
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

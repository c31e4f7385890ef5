// Package serverconfig loads the sync server's TOML configuration file.
package serverconfig

// Config is the root configuration for the taskserver binary. Nested
// structs mirror the five sections listed in SPEC_FULL.md §5.1; each
// section carries its own `toml` tags so config files stay readable as
// one [section] per concern, the shape the teacher's internal/config
// package uses for its own nested sections.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Throttle  ThrottleConfig  `toml:"throttle"`
	Tombstone TombstoneConfig `toml:"tombstone"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig controls the HTTP listener and its shutdown behavior.
type ServerConfig struct {
	ListenAddr      string `toml:"listen_addr"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	RequestTimeout  string `toml:"request_timeout"`
}

// DatabaseConfig points at the SQLite file backing internal/store.
type DatabaseConfig struct {
	Path        string `toml:"path"`
	BusyTimeout string `toml:"busy_timeout"`
}

// ThrottleConfig carries one rate/burst pair per throttled scope
// (spec.md §4.5's sync_push/sync_pull/conflict_resolution scopes).
type ThrottleConfig struct {
	SyncPush           ScopeLimit `toml:"sync_push"`
	SyncPull           ScopeLimit `toml:"sync_pull"`
	ConflictResolution ScopeLimit `toml:"conflict_resolution"`
}

// ScopeLimit is a token-bucket rate (requests/sec) and burst size.
type ScopeLimit struct {
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
}

// TombstoneConfig sets the expiry window for deletion tombstones
// (spec.md §4.3's 90-day retention, the teacher's SafetyConfig.TombstoneRetentionDays knob).
type TombstoneConfig struct {
	RetentionDays int    `toml:"retention_days"`
	SweepInterval string `toml:"sweep_interval"`
}

// LoggingConfig mirrors the teacher's LoggingConfig shape.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

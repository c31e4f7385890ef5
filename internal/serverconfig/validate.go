package serverconfig

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks a Config for internally-consistent values, collecting as
// many errors as possible before returning (the teacher's validate.go style:
// accumulate []error, then join for the caller).
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateDurationField("server.shutdown_timeout", cfg.Server.ShutdownTimeout, 0)...)
	errs = append(errs, validateDurationField("server.request_timeout", cfg.Server.RequestTimeout, time.Second)...)
	errs = append(errs, validateDurationField("database.busy_timeout", cfg.Database.BusyTimeout, 0)...)
	errs = append(errs, validateDurationField("tombstone.sweep_interval", cfg.Tombstone.SweepInterval, time.Second)...)

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr: must not be empty"))
	}
	if cfg.Database.Path == "" {
		errs = append(errs, errors.New("database.path: must not be empty"))
	}
	if cfg.Tombstone.RetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("tombstone.retention_days: must be > 0, got %d", cfg.Tombstone.RetentionDays))
	}

	errs = append(errs, validateScopeLimit("throttle.sync_push", cfg.Throttle.SyncPush)...)
	errs = append(errs, validateScopeLimit("throttle.sync_pull", cfg.Throttle.SyncPull)...)
	errs = append(errs, validateScopeLimit("throttle.conflict_resolution", cfg.Throttle.ConflictResolution)...)

	errs = append(errs, validateLogLevel(cfg.Logging.Level)...)
	errs = append(errs, validateLogFormat(cfg.Logging.Format)...)

	return errors.Join(errs...)
}

func validateScopeLimit(field string, l ScopeLimit) []error {
	var errs []error
	if l.RatePerSecond <= 0 {
		errs = append(errs, fmt.Errorf("%s.rate_per_second: must be > 0, got %v", field, l.RatePerSecond))
	}
	if l.Burst <= 0 {
		errs = append(errs, fmt.Errorf("%s.burst: must be > 0, got %d", field, l.Burst))
	}
	return errs
}

func validateDurationField(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}
	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}
	return nil
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.level: must be one of debug, info, warn, error; got %q", level)}
	}
	return nil
}

var validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.format: must be one of auto, text, json; got %q", format)}
	}
	return nil
}

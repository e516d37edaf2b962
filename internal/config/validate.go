package config

import (
	"context"
	"fmt"
	"strings"
)

// Validate checks everything the config package can judge on its own:
// required fields, duration syntax, timezone names, driver names. Cron spec
// validation lives with the digest service; app composes both into the
// manager's validator hook.
func Validate(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token: required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if cfg.Telegram.RatePerSec < 0 {
		return fmt.Errorf("telegram.rate_per_sec: must be >= 0")
	}
	for i, id := range cfg.Telegram.OwnerIDs {
		if id == 0 {
			return fmt.Errorf("telegram.owner_ids[%d]: must be a telegram user id", i)
		}
	}

	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		return fmt.Errorf("logging.file.path: required when logging.file.enabled")
	}
	if cfg.Logging.Alert.Enabled && cfg.Telegram.AlertChatID == 0 {
		return fmt.Errorf("telegram.alert_chat: required when logging.alert.enabled")
	}
	if cfg.Logging.Alert.RatePerSec < 0 {
		return fmt.Errorf("logging.alert.rate_per_sec: must be >= 0")
	}

	if _, err := ParseLocationField("digest.timezone", cfg.Digest.Timezone); err != nil {
		return err
	}
	for _, f := range []struct{ path, raw string }{
		{"digest.retry_base", cfg.Digest.RetryBase},
		{"digest.retry_max_delay", cfg.Digest.RetryMaxDelay},
		{"digest.dedup_window", cfg.Digest.DedupWindow},
		{"ops.read_timeout", cfg.Ops.ReadTimeout},
		{"ops.write_timeout", cfg.Ops.WriteTimeout},
		{"ops.idle_timeout", cfg.Ops.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if cfg.Digest.Workers < 0 || cfg.Digest.QueueSize < 0 || cfg.Digest.RatePerSec < 0 ||
		cfg.Digest.RetryMax < 0 || cfg.Digest.DedupMaxEntries < 0 {
		return fmt.Errorf("digest: counts must be >= 0")
	}

	if cfg.Storage != nil {
		switch strings.TrimSpace(strings.ToLower(cfg.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	return nil
}

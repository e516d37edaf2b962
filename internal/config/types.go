package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Planner  PlannerConfig  `json:"planner"`
	Digest   DigestConfig   `json:"digest"`
	Ops      OpsConfig      `json:"ops,omitempty"`

	// Storage is optional; nil disables persistence (digest subscriptions
	// and dedup state then live only in memory).
	Storage *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token    string  `json:"token"`
	OwnerIDs []int64 `json:"owner_ids"`
	// AlertChatID receives error-level log alerts when logging.alert is
	// enabled. Usually a private ops group.
	AlertChatID int64 `json:"alert_chat,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outbound messages across all senders. 0 keeps the
	// adapter default.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlert mirrors high-severity log records into telegram.alert_chat.
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"` // default: "error"
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// PlannerConfig bounds per-chat schedule state.
type PlannerConfig struct {
	// MaxEntriesPerChat caps entries per chat. 0 keeps the default (64),
	// negative disables the cap.
	MaxEntriesPerChat int `json:"max_entries_per_chat,omitempty"`
}

// DigestConfig controls the daily plan digest.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - cron: "0 7 * * *" (07:00 every day; seconds field optional)
//   - timezone: host local time
//   - workers: 2
//   - queue_size: 64
//   - rate_per_sec: 3
//   - retry_max: 0 (no retries)
//   - retry_base: "500ms"
//   - retry_max_delay: "10s"
//   - dedup_window: "20h"
//   - dedup_max_entries: 4096
type DigestConfig struct {
	Enabled         bool   `json:"enabled"`
	Cron            string `json:"cron,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
}

// OpsConfig controls the operational HTTP server (healthz/statusz/pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - A non-loopback bind requires a token or an explicit allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Pprof exposes net/http/pprof under /debug/pprof/ when true.
	Pprof bool `json:"pprof,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0
	// (disabled) so long pprof profiles work reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./planbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"` // "file", "sqlite" or "none"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestParseStrictJSON(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "config.json", `{
		"telegram": {"token": "t", "owner_ids": [42], "poll_timeout": "10s"},
		"logging": {"level": "debug", "console": true},
		"planner": {"max_entries_per_chat": 16},
		"digest": {"enabled": true, "cron": "0 7 * * *", "workers": 2}
	}`)
	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Telegram.Token != "t" || len(cfg.Telegram.OwnerIDs) != 1 || cfg.Telegram.OwnerIDs[0] != 42 {
		t.Fatalf("telegram section = %+v, want token t / owner 42", cfg.Telegram)
	}
	if cfg.Planner.MaxEntriesPerChat != 16 {
		t.Fatalf("planner.max_entries_per_chat = %d, want 16", cfg.Planner.MaxEntriesPerChat)
	}
	if !cfg.Digest.Enabled || cfg.Digest.Cron != "0 7 * * *" {
		t.Fatalf("digest section = %+v", cfg.Digest)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() did not return the committed config")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"unknown top-level field", `{"telegram":{"token":"t"},"nonsense":1}`},
		{"unknown nested field", `{"telegram":{"token":"t","oops":true}}`},
		{"trailing data", `{"telegram":{"token":"t"}}{"again":1}`},
		{"not json", `hello world`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeTemp(t, "config.json", tt.content))
			if _, err := m.Parse(); err == nil {
				t.Fatalf("Parse() accepted %s", tt.name)
			}
		})
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "config.yaml", strings.Join([]string{
		"telegram:",
		"  token: t",
		"  owner_ids: [7]",
		"logging:",
		"  level: info",
		"  console: true",
		"digest:",
		"  enabled: true",
		"  timezone: UTC",
	}, "\n"))
	m := NewConfigManager(path)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Telegram.Token != "t" || cfg.Digest.Timezone != "UTC" {
		t.Fatalf("yaml parse = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t", OwnerIDs: []int64{1}, PollTimeout: "10s"},
			Logging:  LoggingConfig{Level: "info", Console: true},
			Digest:   DigestConfig{Enabled: true, Timezone: "UTC", RetryBase: "500ms"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = " " }, "telegram.token"},
		{"bad poll timeout", func(c *Config) { c.Telegram.PollTimeout = "soon" }, "telegram.poll_timeout"},
		{"zero owner id", func(c *Config) { c.Telegram.OwnerIDs = []int64{0} }, "owner_ids"},
		{"file sink without path", func(c *Config) { c.Logging.File.Enabled = true }, "logging.file.path"},
		{"alert without chat", func(c *Config) { c.Logging.Alert.Enabled = true }, "telegram.alert_chat"},
		{"bad timezone", func(c *Config) { c.Digest.Timezone = "Mars/Olympus" }, "digest.timezone"},
		{"negative digest workers", func(c *Config) { c.Digest.Workers = -1 }, "digest"},
		{"bad retry base", func(c *Config) { c.Digest.RetryBase = "-1s" }, "digest.retry_base"},
		{"unknown storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "etcd"} }, "storage.driver"},
		{"ok storage file", func(c *Config) { c.Storage = &StorageConfig{Driver: "file", Path: "./x"} }, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(context.Background(), cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{
		Telegram: TelegramConfig{Token: "t", PollTimeout: "10s"},
		Logging:  LoggingConfig{Level: "info"},
		Digest:   DigestConfig{Enabled: true, Cron: "0 7 * * *"},
	}
	newCfg := &Config{
		Telegram: TelegramConfig{Token: "t", PollTimeout: "30s"},
		Logging:  LoggingConfig{Level: "debug"},
		Digest:   DigestConfig{Enabled: true, Cron: "0 7 * * *"},
		Ops:      OpsConfig{Enabled: true, Addr: "127.0.0.1:6060", Token: "secret"},
	}

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"logging", "ops", "telegram"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
	if len(attrs) == 0 {
		t.Fatal("attrs empty, want structured fields for changed sections")
	}
}

func TestSummarizeConfigChangeNoChanges(t *testing.T) {
	t.Parallel()

	cfg := &Config{Telegram: TelegramConfig{Token: "t"}}
	changed, _ := SummarizeConfigChange(cfg, cfg)
	if len(changed) != 0 {
		t.Fatalf("changed = %v, want empty", changed)
	}
}

func TestPublishDropsOldestForSlowSubscriber(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{Logging: LoggingConfig{Level: "info"}}
	second := &Config{Logging: LoggingConfig{Level: "debug"}}
	m.publish(first)
	m.publish(second)

	select {
	case got := <-ch:
		if got != second {
			t.Fatalf("received %+v, want the newest config", got.Logging)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received a config")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	// Publishing afterwards must not panic.
	m.publish(&Config{})
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", " 1m30s "); err != nil || d != 90*time.Second {
		t.Fatalf("ParseDurationField(1m30s) = %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("ParseDurationField(empty) = %v, %v, want 0, nil", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("ParseDurationField(-5s) accepted a negative duration")
	}
	if d, err := ParseDurationOrDefault("x", "", 7*time.Second); err != nil || d != 7*time.Second {
		t.Fatalf("ParseDurationOrDefault(empty) = %v, %v, want default", d, err)
	}
}

func TestParseLocationField(t *testing.T) {
	t.Parallel()

	if loc, err := ParseLocationField("x", "UTC"); err != nil || loc != time.UTC {
		t.Fatalf("ParseLocationField(UTC) = %v, %v", loc, err)
	}
	if loc, err := ParseLocationField("x", ""); err != nil || loc != time.Local {
		t.Fatalf("ParseLocationField(empty) = %v, %v, want local", loc, err)
	}
	if _, err := ParseLocationField("x", "Nowhere/Special"); err == nil {
		t.Fatal("ParseLocationField accepted an unknown zone")
	}
}

package config

import (
	"reflect"
	"sort"
	"strings"

	logx "planbot/pkg/logx"
)

// SummarizeConfigChange returns the list of changed sections plus structured
// log attrs describing the new values. Secrets (telegram token, ops token)
// never appear in attrs, only booleans saying whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerIDs, newCfg.Telegram.OwnerIDs) ||
		oldCfg.Telegram.AlertChatID != newCfg.Telegram.AlertChatID ||
		oldCfg.Telegram.RatePerSec != newCfg.Telegram.RatePerSec {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerIDs)),
			logx.Bool("telegram.alert_chat_set", newCfg.Telegram.AlertChatID != 0),
			logx.Int("telegram.rate_per_sec", newCfg.Telegram.RatePerSec),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alert_enabled", newCfg.Logging.Alert.Enabled),
		)
	}

	if oldCfg.Planner != newCfg.Planner {
		changed = append(changed, "planner")
		attrs = append(attrs,
			logx.Int("planner.max_entries_per_chat", newCfg.Planner.MaxEntriesPerChat),
		)
	}

	if !reflect.DeepEqual(oldCfg.Digest, newCfg.Digest) {
		changed = append(changed, "digest")
		attrs = append(attrs,
			logx.Bool("digest.enabled", newCfg.Digest.Enabled),
			logx.String("digest.cron", strings.TrimSpace(newCfg.Digest.Cron)),
			logx.String("digest.timezone", strings.TrimSpace(newCfg.Digest.Timezone)),
			logx.Int("digest.workers", newCfg.Digest.Workers),
			logx.Int("digest.rate_per_sec", newCfg.Digest.RatePerSec),
			logx.Int("digest.retry_max", newCfg.Digest.RetryMax),
			logx.String("digest.dedup_window", strings.TrimSpace(newCfg.Digest.DedupWindow)),
		)
	}

	// Ops: compare token presence, never its value.
	oldOps, newOps := oldCfg.Ops, newCfg.Ops
	oldTokenSet := strings.TrimSpace(oldOps.Token) != ""
	newTokenSet := strings.TrimSpace(newOps.Token) != ""
	oldOps.Token, newOps.Token = "", ""
	if !reflect.DeepEqual(oldOps, newOps) || oldTokenSet != newTokenSet {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newOps.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newOps.Addr)),
			logx.Bool("ops.token_set", newTokenSet),
			logx.Bool("ops.allow_insecure", newOps.AllowInsecure),
			logx.Bool("ops.pprof", newOps.Pprof),
		)
	}

	// Storage: nil means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oBusy = strings.TrimSpace(oldCfg.Storage.BusyTimeout)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nBusy = strings.TrimSpace(newCfg.Storage.BusyTimeout)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

package app

import (
	"planbot/internal/digest"
)

func mapDigestConfig(cfg *Config) (digest.Config, error) {
	if cfg == nil {
		return digest.Config{}, nil
	}
	dc := cfg.Digest

	if err := digest.ValidateSpec(dc.Cron); err != nil {
		return digest.Config{}, err
	}
	retryBase, err := parseDurationField("digest.retry_base", dc.RetryBase)
	if err != nil {
		return digest.Config{}, err
	}
	retryMaxDelay, err := parseDurationField("digest.retry_max_delay", dc.RetryMaxDelay)
	if err != nil {
		return digest.Config{}, err
	}
	dedupWindow, err := parseDurationField("digest.dedup_window", dc.DedupWindow)
	if err != nil {
		return digest.Config{}, err
	}

	// Zero values fall through; the digest service owns its defaults.
	return digest.Config{
		Enabled:         dc.Enabled,
		Cron:            dc.Cron,
		Timezone:        dc.Timezone,
		Workers:         dc.Workers,
		QueueSize:       dc.QueueSize,
		RatePerSec:      dc.RatePerSec,
		RetryMax:        dc.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: dc.DedupMaxEntries,
	}, nil
}

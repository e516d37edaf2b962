package app

import (
	"planbot/internal/observability/ops"
)

func mapOpsConfig(cfg *Config) (ops.Config, error) {
	if cfg == nil {
		return ops.Config{}, nil
	}
	oc := cfg.Ops

	readTimeout, err := parseDurationField("ops.read_timeout", oc.ReadTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	writeTimeout, err := parseDurationField("ops.write_timeout", oc.WriteTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	idleTimeout, err := parseDurationField("ops.idle_timeout", oc.IdleTimeout)
	if err != nil {
		return ops.Config{}, err
	}

	return ops.Config{
		Enabled:              oc.Enabled,
		Addr:                 oc.Addr,
		Token:                oc.Token,
		AllowInsecure:        oc.AllowInsecure,
		Pprof:                oc.Pprof,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MutexProfileFraction: oc.MutexProfileFraction,
		BlockProfileRate:     oc.BlockProfileRate,
		MemProfileRate:       oc.MemProfileRate,
	}, nil
}

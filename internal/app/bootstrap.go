package app

import (
	"time"

	"planbot/internal/config"
	"planbot/internal/runtime/supervisor"
	"planbot/internal/transport/telegram/router"
)

// ---- Config ----

type Config = config.Config

type ConfigManager = config.ConfigManager

var NewConfigManager = config.NewConfigManager

// ValidateConfig is the config package's own validation; the app composes it
// with subsystem mappings in the manager's validator hook.
var ValidateConfig = config.Validate

// SummarizeConfigChange produces a safe, structured summary of config diffs.
// Aliased here so app wiring reads without deep import noise.
var SummarizeConfigChange = config.SummarizeConfigChange

func parseDurationField(path, raw string) (time.Duration, error) {
	return config.ParseDurationField(path, raw)
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}

// ---- Supervision ----

type Supervisor = supervisor.Supervisor

var NewSupervisor = supervisor.NewSupervisor

var WithLogger = supervisor.WithLogger

var WithCancelOnError = supervisor.WithCancelOnError

type SupervisorCounters = supervisor.SupervisorCounters

// ---- Command routing ----

type CommandManager = router.CommandManager

var NewCommandManager = router.NewCommandManager

type Services = router.Services

var NewSupervisorRegistry = router.NewSupervisorRegistry

package app

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"planbot/internal/digest"
	"planbot/internal/eventbus"
	"planbot/internal/observability/ops"
	"planbot/internal/planner"
	"planbot/internal/storage"
	kit "planbot/internal/transport"
	telegram "planbot/internal/transport/telegram/adapter"
	logx "planbot/pkg/logx"
	"planbot/pkg/tgui"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	plans  *planner.Registry
	digest *digest.Service
	ops    *ops.Service

	cmdm    *CommandManager
	tickets *tgui.TokenStore

	serv *Services

	updates   chan kit.Update
	startedAt time.Time
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Adapter config mapping
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Logging service mapping.
	// logx.New() calls Apply() immediately. If the alert sink is enabled but
	// its target chat isn't set yet, Apply() would warn, so bootstrap with
	// the alert disabled, set the target, then Apply() the final config.
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    false, // target first, then enable via Apply()
			ThreadID:   cfg.Logging.Alert.ThreadID,
			MinLevel:   cfg.Logging.Alert.MinLevel,
			RatePerSec: cfg.Logging.Alert.RatePerSec,
		},
	}
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if cfg.Telegram.AlertChatID != 0 {
		logSvc.SetAlertTarget(cfg.Telegram.AlertChatID, cfg.Logging.Alert.ThreadID)
	}

	finalLogCfg := baseLogCfg
	finalLogCfg.Alert.Enabled = cfg.Logging.Alert.Enabled
	logSvc.Apply(finalLogCfg)

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	plans := planner.New(planner.Config{
		MaxEntriesPerChat: cfg.Planner.MaxEntriesPerChat,
	}, bus, log.With(logx.String("comp", "planner")))

	dcfg, err := mapDigestConfig(cfg)
	if err != nil {
		return nil, err
	}
	digestSvc := digest.New(dcfg, plans, ad, store, bus, log.With(logx.String("comp", "digest")))

	serv := &Services{
		Planner:            plans,
		Digest:             digestSvc,
		Bus:                bus,
		RuntimeSupervisors: NewSupervisorRegistry(),
		StartedAt:          time.Now(),
	}

	cmdm := NewCommandManager(log.With(logx.String("comp", "commands")),
		ad, cfgm, serv, cfg.Telegram.OwnerIDs)

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		adapter:   ad,
		plans:     plans,
		digest:    digestSvc,
		cmdm:      cmdm,
		tickets:   tgui.NewTokenStore(),
		serv:      serv,
		updates:   make(chan kit.Update, 256),
		startedAt: serv.StartedAt,
	}

	// The ops server reads app state through the snapshot closure, so it is
	// built last.
	ocfg, err := mapOpsConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.ops = ops.New(ocfg, log.With(logx.String("comp", "ops")), a.statusSnapshot)

	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	if a.serv != nil {
		a.serv.AppSupervisor = a.sup
		if a.serv.RuntimeSupervisors == nil {
			a.serv.RuntimeSupervisors = NewSupervisorRegistry()
		}
	}

	// Transactional config reload: validate before commit/publish.
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
			if err := ValidateConfig(c, cfg); err != nil {
				return err
			}
			// Subsystem mappings run here too so a bad hot reload is
			// rejected before anything tries to apply it.
			if _, err := mapDigestConfig(cfg); err != nil {
				return err
			}
			if _, err := mapOpsConfig(cfg); err != nil {
				return err
			}
			if _, _, err := mapStorageConfig(cfg); err != nil {
				return err
			}
			return nil
		})
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	// Expose adapter supervisor for operational visibility.
	if a.serv != nil {
		if sp, ok := a.adapter.(interface{ Supervisor() *Supervisor }); ok {
			if sup := sp.Supervisor(); sup != nil {
				a.serv.RuntimeSupervisors.Set("telegram.adapter", sup)
			}
		}
	}

	if a.digest != nil && a.digest.Enabled() {
		a.digest.Start(a.sup.Context())
	}

	if a.ops != nil && a.ops.Enabled() {
		a.ops.Start(a.sup.Context())
		if a.serv != nil {
			if sup := a.ops.Supervisor(); sup != nil {
				a.serv.RuntimeSupervisors.Set("ops", sup)
			}
		}
	}

	// Register the command table; this also pushes the Telegram menu.
	cmds, cbs := commandRegistry(a.tickets)
	a.cmdm.SetRegistry(cmds, cbs)

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	a.startAuditLoop()
	a.startConfigReload()

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// startAuditLoop mirrors bus events into the audit trail and the debug log.
// Components only publish; what gets persisted is decided here.
func (a *App) startAuditLoop() {
	if a.bus == nil {
		return
	}
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("audit", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				if a.store == nil {
					continue
				}
				rec, ok := auditRecordFor(e)
				if !ok {
					continue
				}
				wctx, cancel := context.WithTimeout(c, 2*time.Second)
				if err := a.store.AppendAudit(wctx, rec); err != nil {
					a.log.Warn("audit append failed", logx.String("type", e.Type), logx.Err(err))
				}
				cancel()
			}
		}
	})
}

// auditRecordFor flattens a bus event into an audit row. Unknown event
// types are skipped rather than guessed at.
func auditRecordFor(e eventbus.Event) (storage.AuditRecord, bool) {
	rec := storage.AuditRecord{At: e.Time}
	switch data := e.Data.(type) {
	case planner.ScheduleEvent:
		rec.ChatID = data.ChatID
		rec.ActorID = data.ActorID
		switch e.Type {
		case "schedule.added":
			rec.Action = "add"
			rec.Target = data.Entry
		case "schedule.conflict":
			rec.Action = "conflict"
			rec.Target = data.Entry
			rec.Detail = data.Error
		case "schedule.cleared":
			rec.Action = "clear"
			rec.Detail = fmt.Sprintf("removed %d", data.Removed)
		default:
			return storage.AuditRecord{}, false
		}
		return rec, true
	case digest.DigestEvent:
		rec.ChatID = data.ChatID
		rec.OK = data.Sent
		rec.Fail = data.Failed
		rec.TookMS = data.TookMS
		rec.Target = data.Reason
		rec.Detail = data.Error
		switch e.Type {
		case "digest.sent":
			rec.Action = "digest.sent"
		case "digest.failed":
			rec.Action = "digest.failed"
		default:
			return storage.AuditRecord{}, false
		}
		return rec, true
	}
	return storage.AuditRecord{}, false
}

// startConfigReload fans validated config updates out to running services.
func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		// Track the last applied config to diff against for log summaries.
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				lastApplied = newCfg

				for _, s := range sections {
					if s == "storage" {
						a.log.Warn("storage config changed; restart required for changes to take effect")
						break
					}
				}

				a.applyConfig(c, newCfg)

				// Keep the final line concise; details are in debug logs.
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})
}

func (a *App) applyConfig(c context.Context, cfg *Config) {
	// Update the alert target first so Apply() doesn't warn when the alert
	// sink is enabled.
	if cfg.Telegram.AlertChatID != 0 {
		a.logs.SetAlertTarget(cfg.Telegram.AlertChatID, cfg.Logging.Alert.ThreadID)
	} else {
		// Allow clearing the target via hot reload.
		a.logs.SetAlertTarget(0, 0)
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    cfg.Logging.Alert.Enabled,
			ThreadID:   cfg.Logging.Alert.ThreadID,
			MinLevel:   cfg.Logging.Alert.MinLevel,
			RatePerSec: cfg.Logging.Alert.RatePerSec,
		},
	})

	// Owner list gates AccessOwnerOnly commands and callback defaults.
	a.cmdm.SetOwners(cfg.Telegram.OwnerIDs)

	a.plans.Apply(planner.Config{MaxEntriesPerChat: cfg.Planner.MaxEntriesPerChat})

	// Digest applies live; enable flips start/stop the worker pool.
	if a.digest != nil {
		prevEnabled := a.digest.Enabled()
		dcfg, err := mapDigestConfig(cfg)
		if err != nil {
			a.log.Warn("invalid digest config; keeping previous", logx.Err(err))
		} else {
			a.digest.Apply(dcfg)
			switch {
			case prevEnabled && !dcfg.Enabled:
				a.log.Info("digest disabled via config")
				stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
				a.digest.Stop(stopCtx)
				cancel()
			case !prevEnabled && dcfg.Enabled:
				a.log.Info("digest enabled via config")
				a.digest.Start(c)
			}
		}
	}

	if a.ops != nil {
		ocfg, err := mapOpsConfig(cfg)
		if err != nil {
			a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
		} else {
			a.ops.Reconfigure(c, ocfg)
			if a.serv != nil {
				// Reconfigure may have restarted the server under a fresh
				// supervisor; Set(nil) deletes a stale entry.
				a.serv.RuntimeSupervisors.Set("ops", a.ops.Supervisor())
			}
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Each shutdown step gets an upper bound so one slow component cannot
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// fn must honor stepCtx; if it didn't, watch for the leak.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Digest first (no new sends), then the ops listener, the Telegram
	// poller, and finally storage once nothing writes to it.
	step("digest", 2*time.Second, func(c context.Context) error { a.digest.Stop(c); return nil })
	step("ops", 1*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	// Wait for supervised goroutines (dispatcher, audit, config watch).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

type plannerStatus struct {
	Chats   int `json:"chats"`
	Entries int `json:"entries"`
}

type statusPayload struct {
	UptimeSec   int64                         `json:"uptime_sec"`
	Go          string                        `json:"go"`
	Goroutines  int                           `json:"goroutines"`
	Planner     plannerStatus                 `json:"planner"`
	Digest      digest.Stats                  `json:"digest"`
	BusDropped  uint64                        `json:"bus_dropped"`
	Supervisors map[string]SupervisorCounters `json:"supervisors,omitempty"`
}

// statusSnapshot feeds /statusz. Everything it reads is either immutable
// after NewApp or guarded by the owning service.
func (a *App) statusSnapshot() any {
	chats, entries := a.plans.Stats()
	st := statusPayload{
		UptimeSec:  int64(time.Since(a.startedAt).Seconds()),
		Go:         runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		Planner:    plannerStatus{Chats: chats, Entries: entries},
		Digest:     a.digest.Stats(),
		BusDropped: a.bus.Dropped(),
	}
	if a.serv != nil && a.serv.RuntimeSupervisors != nil {
		snap := a.serv.RuntimeSupervisors.Snapshot()
		if len(snap) > 0 {
			sups := make(map[string]SupervisorCounters, len(snap))
			for name, sup := range snap {
				sups[name] = sup.Counters()
			}
			st.Supervisors = sups
		}
	}
	return st
}

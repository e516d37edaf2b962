package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "planbot/pkg/logx"
)

// RestartOption configures GoRestart.
type RestartOption func(*restartCfg)

type restartCfg struct {
	minBackoff      time.Duration
	maxBackoff      time.Duration
	maxRestarts     int // <=0 means unlimited
	stopOnCleanExit bool
	fatalOnFinalErr bool
	publishFirstErr bool
}

// WithRestartBackoff sets the exponential backoff window between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartCfg) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMaxRestarts limits restarts before giving up. The first run does not
// count as a restart.
func WithMaxRestarts(n int) RestartOption { return func(c *restartCfg) { c.maxRestarts = n } }

// WithFatalOnFinalError records the last error (and cancels the supervisor if
// cancel-on-error is enabled) when the restart budget is exhausted.
func WithFatalOnFinalError(enabled bool) RestartOption {
	return func(c *restartCfg) { c.fatalOnFinalErr = enabled }
}

// WithPublishFirstError records the first error/panic as the supervisor error
// while still restarting. Useful to surface flapping loops in status output.
func WithPublishFirstError(enabled bool) RestartOption {
	return func(c *restartCfg) { c.publishFirstErr = enabled }
}

// WithStopOnCleanExit stops (instead of restarting) when fn returns nil.
// Default is true.
func WithStopOnCleanExit(enabled bool) RestartOption {
	return func(c *restartCfg) { c.stopOnCleanExit = enabled }
}

// GoRestart runs fn and restarts it on error or panic with jittered
// exponential backoff until the context is cancelled. Meant for pollers,
// watchers and consumers that should ride out transient failures.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartCfg{
		minBackoff:      250 * time.Millisecond,
		maxBackoff:      30 * time.Second,
		stopOnCleanExit: true,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.minBackoff <= 0 {
		cfg.minBackoff = 250 * time.Millisecond
	}
	if cfg.maxBackoff < cfg.minBackoff {
		cfg.maxBackoff = cfg.minBackoff
	}

	// The restart loop itself is one supervised goroutine. The ".restart"
	// suffix keeps its stats separate from the logical task's run stats.
	s.Go0(name+".restart", func(ctx context.Context) {
		backoff := cfg.minBackoff
		restarts := 0
		for {
			if ctx.Err() != nil {
				return
			}

			startedAt := s.markStart(name, restarts > 0)
			err := runRecovered(ctx, fn, func(p any, stack string) {
				s.markPanic(name, p)
				if !s.log.IsZero() {
					s.log.Error("goroutine panicked (restart)",
						logx.String("name", name),
						logx.Any("panic", p),
						logx.String("stack", stack))
				}
			})

			// A run that ends during shutdown is a clean stop regardless of
			// what fn returned.
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.markExit(name, startedAt, nil)
				return
			}
			if err == nil {
				if cfg.stopOnCleanExit {
					s.markExit(name, startedAt, nil)
					return
				}
				err = errors.New("exited")
			}

			named := fmt.Errorf("%s: %w", name, err)
			s.markExit(name, startedAt, named)
			if cfg.publishFirstErr {
				s.setErr(named)
			}

			restarts++
			// A long successful stretch resets the backoff so a rare failure
			// does not inherit a maxed-out delay.
			if time.Since(startedAt) >= 30*time.Second {
				backoff = cfg.minBackoff
			}
			if cfg.maxRestarts > 0 && restarts > cfg.maxRestarts {
				if !s.log.IsZero() {
					s.log.Error("goroutine gave up after restarts",
						logx.String("name", name),
						logx.Int("restarts", restarts),
						logx.Err(err))
				}
				if cfg.fatalOnFinalErr {
					s.fail(named)
				}
				return
			}

			wait := jitter(clampDur(backoff, cfg.minBackoff, cfg.maxBackoff))
			if !s.log.IsZero() {
				s.log.Warn("goroutine restarting",
					logx.String("name", name),
					logx.Duration("backoff", wait),
					logx.Err(err))
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			backoff *= 2
			if backoff > cfg.maxBackoff {
				backoff = cfg.maxBackoff
			}
		}
	})
}

// GoRestart0 is GoRestart for functions with no error to return. Such a
// function restarts on panic, or on clean exit when WithStopOnCleanExit(false)
// is set.
func (s *Supervisor) GoRestart0(name string, fn func(ctx context.Context), opts ...RestartOption) {
	if fn == nil {
		return
	}
	s.GoRestart(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	}, opts...)
}

// runRecovered invokes fn, converting a panic into an error after reporting it.
func runRecovered(ctx context.Context, fn func(ctx context.Context) error, onPanic func(p any, stack string)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			onPanic(r, string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func clampDur(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// jitter adds up to 20% on top of d to avoid synchronized restart storms.
func jitter(d time.Duration) time.Duration {
	span := int64(d) / 5
	if span <= 0 {
		return d
	}
	return d + time.Duration(time.Now().UnixNano()%(span+1))
}

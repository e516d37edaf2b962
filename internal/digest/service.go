package digest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"planbot/internal/eventbus"
	"planbot/internal/schedule"
	"planbot/internal/storage"
	logx "planbot/pkg/logx"
)

func newParser() cron.Parser {
	// SecondOptional allows both 5-field and 6-field (with seconds) specs.
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// ValidateSpec reports whether spec is an acceptable cron expression.
// Empty means "use the default" and is accepted.
func ValidateSpec(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	_, err := newParser().Parse(spec)
	return err
}

func New(cfg Config, plans PlanSource, sender Sender, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		log:     log,
		bus:     bus,
		store:   store,
		plans:   plans,
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		loc:     loadLocation(cfg.Timezone, log),
		parser:  newParser(),
		subs:    map[int64]storage.Subscription{},
		queue:   make(chan job, cfg.QueueSize),
		dedup:   map[string]int64{},
	}
}

// Enabled reports the current config flag. Apply() may run concurrently.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config at runtime. The cron is rebuilt when the schedule
// surface (enabled flag, spec, timezone) changed; the limiter always follows
// the new rate.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.loc = loadLocation(cfg.Timezone, s.log)

	if s.runCtx == nil {
		// Not started; Start() will build from the new config.
		return
	}
	if old.Enabled != cfg.Enabled || old.Cron != cfg.Cron || old.Timezone != cfg.Timezone {
		s.rebuildCronLocked()
	}
}

// Start hydrates subscriptions, launches the worker pool, and (when enabled)
// builds the cron. Safe to call while a previous Stop is still draining.
func (s *Service) Start(ctx context.Context) {
	// Wait out an in-progress Stop so worker pools never double up.
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			s.mu.Unlock()
			return // already running
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.hydrateSubsLocked(ctx)

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	workers := s.cfg.Workers
	queue := s.queue
	stopCh := s.stopCh
	runCtx := s.runCtx

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			s.log.Debug("worker started", logx.Int("worker", idx))
			s.worker(runCtx, stopCh, queue, idx)
			s.log.Debug("worker stopped", logx.Int("worker", idx))
		}()
	}

	s.rebuildCronLocked()
	s.log.Info("service started",
		logx.Bool("enabled", s.cfg.Enabled),
		logx.String("cron", s.cfg.Cron),
		logx.String("tz", s.loc.String()),
		logx.Int("workers", workers),
		logx.Int("subscribers", len(s.subs)))
}

// Stop halts the cron, then drains the worker pool. Returns when workers are
// done or ctx expires; in the latter case draining continues in background.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	s.runCancel = nil
	c := s.c
	s.c = nil
	s.mu.Unlock()

	// Cron first so no new jobs arrive while workers drain.
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Subscribe enrolls a chat. at is an optional "HH:MM" override of the global
// schedule; a malformed value surfaces the schedule format error so handlers
// can show the canonical message.
func (s *Service) Subscribe(ctx context.Context, chatID int64, threadID int, at string) error {
	at = strings.TrimSpace(at)
	if at != "" {
		if _, err := schedule.ParseTime(at); err != nil {
			return err
		}
	}
	sub := storage.Subscription{ChatID: chatID, ThreadID: threadID, At: at, CreatedAt: time.Now()}
	if s.store != nil {
		if err := s.store.PutSubscription(ctx, sub); err != nil {
			return fmt.Errorf("persist subscription: %w", err)
		}
	}

	s.mu.Lock()
	prev, existed := s.subs[chatID]
	s.subs[chatID] = sub
	// Custom fire times become cron entries; rebuild only when that set
	// could have changed.
	if s.runCtx != nil && (!existed || prev.At != at) {
		s.rebuildCronLocked()
	}
	s.mu.Unlock()

	s.log.Info("digest subscribed", logx.Int64("chat_id", chatID), logx.String("at", at))
	return nil
}

// Unsubscribe removes a chat's enrollment.
func (s *Service) Unsubscribe(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	sub, ok := s.subs[chatID]
	s.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}
	if s.store != nil {
		if err := s.store.DeleteSubscription(ctx, chatID); err != nil {
			return fmt.Errorf("remove subscription: %w", err)
		}
	}

	s.mu.Lock()
	delete(s.subs, chatID)
	if s.runCtx != nil && strings.TrimSpace(sub.At) != "" {
		s.rebuildCronLocked()
	}
	s.mu.Unlock()

	s.log.Info("digest unsubscribed", logx.Int64("chat_id", chatID))
	return nil
}

// Subscribed reports whether the chat is enrolled.
func (s *Service) Subscribed(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[chatID]
	return ok
}

// Subscriptions returns the enrollment list ordered by chat id.
func (s *Service) Subscriptions() []storage.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// RunNow enqueues an immediate run, bypassing the dedup window. chatID 0
// means every subscriber.
func (s *Service) RunNow(ctx context.Context, chatID int64) error {
	_ = ctx
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if s.runCtx == nil {
		s.mu.Unlock()
		return ErrDisabled
	}
	var targets []storage.Subscription
	if chatID == 0 {
		targets = make([]storage.Subscription, 0, len(s.subs))
		for _, sub := range s.subs {
			targets = append(targets, sub)
		}
	} else {
		sub, ok := s.subs[chatID]
		if !ok {
			s.mu.Unlock()
			return ErrNotSubscribed
		}
		targets = []storage.Subscription{sub}
	}
	s.mu.Unlock()

	return s.enqueue(job{targets: targets, reason: "manual", force: true})
}

// Stats returns a live snapshot for status surfaces.
func (s *Service) Stats() Stats {
	s.statsMu.Lock()
	st := s.stats
	s.statsMu.Unlock()

	s.mu.Lock()
	st.Enabled = s.cfg.Enabled
	st.Subscribers = len(s.subs)
	if s.c != nil {
		var next time.Time
		for _, e := range s.c.Entries() {
			if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
				next = e.Next
			}
		}
		st.NextRunAt = next
	}
	s.mu.Unlock()
	return st
}

func (s *Service) hydrateSubsLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	lctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	list, err := s.store.ListSubscriptions(lctx)
	if err != nil {
		s.log.Warn("subscription hydrate failed", logx.Err(err))
		return
	}
	for _, sub := range list {
		if sub.ChatID != 0 {
			s.subs[sub.ChatID] = sub
		}
	}
	if len(list) > 0 {
		s.log.Info("subscriptions restored", logx.Int("count", len(list)))
	}
}

// rebuildCronLocked swaps the cron instance to match the current config and
// subscription set. Callers hold s.mu.
func (s *Service) rebuildCronLocked() {
	if s.c != nil {
		old := s.c
		s.c = nil
		// Let in-flight fire callbacks finish without holding the lock.
		go func() { <-old.Stop().Done() }()
	}
	if !s.cfg.Enabled {
		return
	}

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.cfg.Cron, func() { s.fire("") }); err != nil {
		s.log.Error("invalid digest cron spec", logx.String("cron", s.cfg.Cron), logx.Err(err))
	}

	// One extra entry per distinct per-chat fire time.
	seen := map[string]struct{}{}
	for _, sub := range s.subs {
		at := strings.TrimSpace(sub.At)
		if at == "" {
			continue
		}
		if _, dup := seen[at]; dup {
			continue
		}
		seen[at] = struct{}{}
		spec, err := atToSpec(at)
		if err != nil {
			s.log.Warn("skipping bad subscription time", logx.String("at", at), logx.Err(err))
			continue
		}
		if _, err := c.AddFunc(spec, func() { s.fire(at) }); err != nil {
			s.log.Warn("cron entry rejected", logx.String("at", at), logx.Err(err))
		}
	}

	c.Start()
	s.c = c
}

// fire collects the chats bound to the given fire time ("" means the global
// schedule) and enqueues one fan-out job.
func (s *Service) fire(at string) {
	s.mu.Lock()
	targets := make([]storage.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if strings.TrimSpace(sub.At) == at {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	if err := s.enqueue(job{targets: targets, reason: "cron"}); err != nil {
		s.log.Warn("digest run dropped", logx.String("at", at), logx.Err(err))
	}
}

func (s *Service) enqueue(j job) error {
	if len(j.targets) == 0 {
		return nil
	}
	select {
	case s.queue <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) publish(typ string, ev DigestEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

// atToSpec converts "HH:MM" to a daily five-field cron spec.
func atToSpec(at string) (string, error) {
	if _, err := schedule.ParseTime(at); err != nil {
		return "", err
	}
	parts := strings.SplitN(at, ":", 2)
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		if !log.IsZero() {
			log.Warn("invalid timezone, using host local", logx.String("tz", tz), logx.Err(err))
		}
		return time.Local
	}
	return loc
}

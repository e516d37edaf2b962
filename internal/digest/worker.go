package digest

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"planbot/internal/storage"
	kit "planbot/internal/transport"
	logx "planbot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job, idx int) {
	for {
		// Fast exit when stopping, even with a backlog.
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case j := <-queue:
			s.execJob(ctx, j)
		}
	}
}

// execJob fans one run out to its target chats. Chats with nothing planned
// today are skipped; scheduled runs also skip chats already served inside the
// dedup window. One summary event is published per run, one failure event per
// chat that exhausted its retries.
func (s *Service) execJob(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("digest run panicked", logx.Any("panic", r))
		}
	}()

	start := time.Now()
	s.mu.Lock()
	loc := s.loc
	window := s.cfg.DedupWindow
	s.mu.Unlock()

	now := time.Now().In(loc)
	day := weekdayOf(now)

	var sent, failed, deduped, skipped int
	for _, sub := range j.targets {
		if ctx.Err() != nil {
			break
		}
		items := itemsForDay(s.plans.Plan(sub.ChatID), day)
		if len(items) == 0 {
			skipped++
			continue
		}
		text, opt := renderDigest(now, day, items)
		key := dedupKey(sub.ChatID, now, text)
		if !j.force && s.seenRecently(ctx, key, now) {
			deduped++
			continue
		}
		if err := s.sendOne(ctx, sub, text, opt); err != nil {
			failed++
			s.log.Warn("digest send failed", logx.Int64("chat_id", sub.ChatID), logx.Err(err))
			s.publish("digest.failed", DigestEvent{ChatID: sub.ChatID, Reason: j.reason, Error: err.Error()})
			continue
		}
		sent++
		s.remember(ctx, key, now.Add(window))
	}

	took := time.Since(start)
	s.statsMu.Lock()
	s.stats.Runs++
	s.stats.LastRunAt = now
	s.stats.LastSent = sent
	s.stats.LastFailed = failed
	s.stats.LastDeduped = deduped
	s.stats.LastSkipped = skipped
	s.statsMu.Unlock()

	s.publish("digest.sent", DigestEvent{
		Reason:  j.reason,
		Chats:   len(j.targets),
		Sent:    sent,
		Failed:  failed,
		Deduped: deduped,
		Skipped: skipped,
		TookMS:  took.Milliseconds(),
	})
	s.log.Info("digest run finished",
		logx.String("reason", j.reason),
		logx.Int("chats", len(j.targets)),
		logx.Int("sent", sent),
		logx.Int("failed", failed),
		logx.Int("deduped", deduped),
		logx.Int("skipped", skipped),
		logx.Duration("took", took))
}

// sendOne delivers one digest with rate limiting and exponential backoff.
func (s *Service) sendOne(ctx context.Context, sub storage.Subscription, text string, opt *kit.SendOptions) error {
	s.mu.Lock()
	limiter := s.limiter
	retryMax := s.cfg.RetryMax
	base := s.cfg.RetryBase
	maxDelay := s.cfg.RetryMaxDelay
	s.mu.Unlock()

	to := kit.ChatTarget{ChatID: sub.ChatID, ThreadID: sub.ThreadID}
	var lastErr error
	for attempt := 0; attempt <= retryMax; attempt++ {
		if attempt > 0 {
			delay := base * time.Duration(1<<uint(attempt-1))
			if delay > maxDelay || delay <= 0 {
				delay = maxDelay
			}
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := s.sender.SendText(ctx, to, text, opt); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", retryMax+1, lastErr)
}

// dedupKey ties a delivery to (chat, calendar day, content). A new class added
// mid-morning changes the content hash, so a manual rerun still goes out.
func dedupKey(chatID int64, now time.Time, text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("digest:%d:%s:%x", chatID, now.Format("2006-01-02"), h.Sum64())
}

// seenRecently consults the in-memory window first, then the store so dedup
// survives restarts.
func (s *Service) seenRecently(ctx context.Context, key string, now time.Time) bool {
	s.dedupMu.Lock()
	until, ok := s.dedup[key]
	s.dedupMu.Unlock()
	if ok && now.Unix() < until {
		return true
	}
	if s.store == nil {
		return false
	}
	lctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	storedUntil, ok, err := s.store.GetDedup(lctx, key)
	if err != nil {
		s.log.Warn("dedup lookup failed", logx.Err(err))
		return false
	}
	return ok && now.Before(storedUntil)
}

func (s *Service) remember(ctx context.Context, key string, until time.Time) {
	s.mu.Lock()
	max := s.cfg.DedupMaxEntries
	s.mu.Unlock()

	s.dedupMu.Lock()
	s.dedup[key] = until.Unix()
	if len(s.dedup) > max {
		s.pruneDedupLocked(time.Now().Unix(), max)
	}
	s.dedupMu.Unlock()

	if s.store == nil {
		return
	}
	lctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.store.PutDedup(lctx, key, until); err != nil {
		s.log.Warn("dedup persist failed", logx.Err(err))
	}
}

func (s *Service) pruneDedupLocked(now int64, max int) {
	for k, until := range s.dedup {
		if until <= now {
			delete(s.dedup, k)
		}
	}
	if len(s.dedup) <= max {
		return
	}
	// Still over the cap: map order is as good an eviction order as any.
	for k := range s.dedup {
		delete(s.dedup, k)
		if len(s.dedup) <= max {
			return
		}
	}
}

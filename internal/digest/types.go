// Package digest sends each subscribed chat its plan for the day: a
// cron-triggered render of the non-overlapping selection, fanned out through
// a bounded worker pool with rate limiting, retries and a dedup window.
package digest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"planbot/internal/eventbus"
	"planbot/internal/schedule"
	"planbot/internal/storage"
	kit "planbot/internal/transport"
	logx "planbot/pkg/logx"
)

var (
	ErrDisabled      = errors.New("digest disabled")
	ErrQueueFull     = errors.New("digest queue full")
	ErrNotSubscribed = errors.New("chat is not subscribed")
)

// Config carries parsed values; the app layer converts duration strings.
type Config struct {
	Enabled  bool
	Cron     string // default "0 7 * * *"
	Timezone string // IANA name, default host local

	Workers    int // default 2
	QueueSize  int // default 64
	RatePerSec int // default 3

	RetryMax      int           // attempts after the first; 0 disables retries
	RetryBase     time.Duration // default 500ms
	RetryMaxDelay time.Duration // default 10s

	DedupWindow     time.Duration // default 20h
	DedupMaxEntries int           // default 4096
}

const defaultCronSpec = "0 7 * * *"

func (c Config) withDefaults() Config {
	if c.Cron == "" {
		c.Cron = defaultCronSpec
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 20 * time.Hour
	}
	if c.DedupMaxEntries <= 0 {
		c.DedupMaxEntries = 4096
	}
	return c
}

// PlanSource yields a chat's current selection. Satisfied by planner.Registry.
type PlanSource interface {
	Plan(chatID int64) []schedule.Selected
}

// Sender is the slice of the adapter the digest needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// DigestEvent is the Data payload for digest.* bus events.
type DigestEvent struct {
	ChatID  int64  `json:"chat_id,omitempty"` // digest.failed only
	Reason  string `json:"reason"`            // "cron" or "manual"
	Chats   int    `json:"chats"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Deduped int    `json:"deduped"`
	Skipped int    `json:"skipped"` // chats with nothing planned today
	Error   string `json:"error,omitempty"`
	TookMS  int64  `json:"took_ms,omitempty"`
}

// Stats is a point-in-time view for /status and /statusz.
type Stats struct {
	Enabled     bool      `json:"enabled"`
	Subscribers int       `json:"subscribers"`
	Runs        uint64    `json:"runs"`
	LastRunAt   time.Time `json:"last_run_at"`
	LastSent    int       `json:"last_sent"`
	LastFailed  int       `json:"last_failed"`
	LastDeduped int       `json:"last_deduped"`
	LastSkipped int       `json:"last_skipped"`
	NextRunAt   time.Time `json:"next_run_at"`
}

// job is one fan-out: render and deliver for every target chat.
type job struct {
	targets []storage.Subscription
	reason  string // "cron" or "manual"
	force   bool   // manual runs bypass the dedup check
}

type Service struct {
	log    logx.Logger
	bus    eventbus.Bus
	store  storage.Store // may be nil; subscriptions then live in memory only
	plans  PlanSource
	sender Sender

	// mu guards cfg, limiter, cron state and the subscription mirror.
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	c       *cron.Cron
	loc     *time.Location
	parser  cron.Parser
	subs    map[int64]storage.Subscription

	queue     chan job
	stopCh    chan struct{}
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// In-memory dedup mirror; the store (when present) makes it survive
	// restarts.
	dedupMu sync.Mutex
	dedup   map[string]int64 // unix seconds

	statsMu sync.Mutex
	stats   Stats
}

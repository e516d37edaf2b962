package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditRecord is one operational event: an entry added, a conflict rejected,
// a chat cleared, a digest delivered. Keep it compact and schema-stable.
type AuditRecord struct {
	At      time.Time
	ChatID  int64
	ActorID int64
	Action  string // "add", "conflict", "clear", "digest.sent", "digest.failed"
	Target  string // entry name or digest label
	Detail  string // error text or extra context
	OK      int    // digest: chats delivered
	Fail    int    // digest: chats failed
	TookMS  int64
}

// Subscription enrolls a chat in the daily digest. At is an optional "HH:MM"
// override; empty means the chat follows the global digest schedule.
type Subscription struct {
	ChatID    int64     `json:"chat_id"`
	ThreadID  int       `json:"thread_id,omitempty"`
	At        string    `json:"at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

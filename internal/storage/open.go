package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "planbot/pkg/logx"
)

// Store is the persistence API the host uses. Schedule entries themselves are
// never stored; only operational state lives here.
type Store interface {
	AppendAudit(ctx context.Context, rec AuditRecord) error

	PutSubscription(ctx context.Context, sub Subscription) error
	DeleteSubscription(ctx context.Context, chatID int64) error
	ListSubscriptions(ctx context.Context) ([]Subscription, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

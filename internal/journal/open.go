package journal

import (
	"context"
	"errors"
	"strings"

	logx "schedkit/pkg/logx"
)

// Store is the persistence API behind the journal service.
type Store interface {
	Append(ctx context.Context, e Entry) error

	// Recent returns up to limit of the newest entries in chronological
	// order (oldest of the window first). limit <= 0 means all retained.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if the journal is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory":
		return openMemory(cfg)
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown journal driver: " + driver)
	}
}

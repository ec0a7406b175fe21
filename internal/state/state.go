package state

import (
	"context"
	"errors"
	"strings"
	"time"

	"tapwatch/pkg/logx"
)

var ErrDisabled = errors.New("state persistence disabled")

// Contributor is one row of the bonus-pool contributor table, in page order.
type Contributor struct {
	Name   string `json:"name"`
	Amount int    `json:"amount"`
}

// Record is the durable page state. On disk it always reflects the last
// successfully processed snapshot; it is written only after all notification
// attempts for the cycle have been dispatched.
type Record struct {
	EventActive  bool          `json:"event_active"`
	Counter      int           `json:"counter"`
	Contributors []Contributor `json:"contributors"`
	UpdatedAt    time.Time     `json:"updated_at,omitzero"`
}

// Default returns the documented zero record: event inactive, counter at the
// unparsed sentinel, no contributors.
func Default() Record {
	return Record{EventActive: false, Counter: -1, Contributors: nil}
}

// Config configures state persistence.
//
// Driver values:
//   - "file": JSON document with atomic replace
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty it defaults to "file"; "none" disables persistence.
type Config struct {
	Driver string
	Path   string
}

// Store is the persistence API used by the poll loop.
type Store interface {
	// Load never fails on a missing or corrupt record; it returns Default().
	Load(ctx context.Context) (Record, error)
	// Save atomically replaces the record.
	Save(ctx context.Context, r Record) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if persistence is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "file"
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "none":
		return nil, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown state driver: " + driver)
	}
}

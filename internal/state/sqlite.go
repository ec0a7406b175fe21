//go:build sqlite
// +build sqlite

package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tapwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("state.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Load(ctx context.Context) (Record, error) {
	var (
		active   int
		counter  int
		contribs string
		updated  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT event_active, counter, contributors_json, updated_at FROM page_state WHERE id = 1`,
	).Scan(&active, &counter, &contribs, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Default(), nil
	}
	if err != nil {
		s.log.Warn("state row unreadable; using defaults", logx.Err(err))
		return Default(), nil
	}

	r := Record{EventActive: active != 0, Counter: counter}
	if err := json.Unmarshal([]byte(contribs), &r.Contributors); err != nil {
		s.log.Warn("state contributors corrupt; using defaults", logx.Err(err))
		return Default(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		r.UpdatedAt = t
	}
	return r, nil
}

func (s *sqliteStore) Save(ctx context.Context, r Record) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	contribs, err := json.Marshal(r.Contributors)
	if err != nil {
		return err
	}
	active := 0
	if r.EventActive {
		active = 1
	}
	// Single-row upsert keeps replacement atomic at the statement level.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO page_state(id, event_active, counter, contributors_json, updated_at)
		 VALUES(1,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   event_active=excluded.event_active,
		   counter=excluded.counter,
		   contributors_json=excluded.contributors_json,
		   updated_at=excluded.updated_at`,
		active, r.Counter, string(contribs), r.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

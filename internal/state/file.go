package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tapwatch/pkg/logx"
)

// fileStore keeps the record as a single JSON document.
//
// Save writes <path>.tmp and renames it over the target so a concurrent Load
// (or a crash mid-write) never sees a partial record.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("state.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Load(ctx context.Context) (Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("state record unreadable; using defaults", logx.Err(err))
		}
		return Default(), nil
	}

	r := Default()
	if err := json.Unmarshal(b, &r); err != nil {
		s.log.Warn("state record corrupt; using defaults", logx.Err(err))
		return Default(), nil
	}
	return r, nil
}

func (s *fileStore) Save(ctx context.Context, r Record) error {
	_ = ctx
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}

	b, err := json.Marshal(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Close() error { return nil }

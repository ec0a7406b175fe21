// Package mirror publishes the latest cycle state to a static frontend build
// artifact. Strictly best-effort: a failed publish is logged by the caller
// and never fails a poll cycle.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tapwatch/internal/state"
)

type Writer struct {
	path string
}

type artifact struct {
	EventActive  bool                `json:"event_active"`
	BonusesLeft  int                 `json:"bonuses_left"`
	Contributors []state.Contributor `json:"contributors"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func New(path string) (*Writer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("mirror path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Writer{path: path}, nil
}

// Publish atomically replaces the artifact with the given record.
func (w *Writer) Publish(ctx context.Context, r state.Record) error {
	_ = ctx
	b, err := json.Marshal(artifact{
		EventActive:  r.EventActive,
		BonusesLeft:  r.Counter,
		Contributors: r.Contributors,
		UpdatedAt:    r.UpdatedAt,
	})
	if err != nil {
		return err
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, w.path)
}

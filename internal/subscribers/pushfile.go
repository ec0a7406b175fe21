package subscribers

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"tapwatch/pkg/logx"
)

// pushFile stores subscriptions as one JSON array, mutated by atomic replace.
// The on-disk shape nests the crypto keys the way browsers serialize a
// PushSubscription, so the file is interchangeable with the frontend's POST
// body format.
type pushFile struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

type pushRecord struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// NewPushFile opens the JSON-array push registry at path.
func NewPushFile(path string, log logx.Logger) (PushRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("push subscriber path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &pushFile{log: log, path: path}, nil
}

func (s *pushFile) List(ctx context.Context) ([]PushRecipient, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	out := make([]PushRecipient, 0, len(recs))
	for _, r := range recs {
		out = append(out, PushRecipient{
			Endpoint:  r.Endpoint,
			AuthKey:   r.Keys.Auth,
			P256dhKey: r.Keys.P256dh,
		})
	}
	return out, nil
}

func (s *pushFile) Add(ctx context.Context, r PushRecipient) error {
	_ = ctx
	if strings.TrimSpace(r.Endpoint) == "" {
		return errors.New("push endpoint is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readLocked()
	if err != nil {
		return err
	}
	var rec pushRecord
	rec.Endpoint = r.Endpoint
	rec.Keys.Auth = r.AuthKey
	rec.Keys.P256dh = r.P256dhKey

	// Browsers re-post the same subscription on every page load; an existing
	// endpoint is updated in place rather than duplicated.
	for i := range recs {
		if recs[i].Endpoint == rec.Endpoint {
			recs[i] = rec
			return s.writeLocked(recs)
		}
	}
	recs = append(recs, rec)
	return s.writeLocked(recs)
}

func (s *pushFile) Remove(ctx context.Context, endpoint string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readLocked()
	if err != nil {
		return err
	}
	kept := recs[:0]
	for _, r := range recs {
		if r.Endpoint != endpoint {
			kept = append(kept, r)
		}
	}
	return s.writeLocked(kept)
}

func (s *pushFile) readLocked() ([]pushRecord, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(string(b)) == "" {
		return nil, nil
	}
	var recs []pushRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		// A corrupt registry is not recoverable automatically; surface it so
		// registration callers can refuse instead of silently wiping the list.
		return nil, err
	}
	return recs, nil
}

func (s *pushFile) writeLocked(recs []pushRecord) error {
	if recs == nil {
		recs = []pushRecord{}
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	return replaceFile(s.path, b)
}

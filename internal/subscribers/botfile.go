package subscribers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"tapwatch/pkg/logx"
)

// botFile stores one chat ID per line. Registration appends; removal rewrites
// the file atomically. Duplicates and garbage lines are tolerated on disk and
// filtered out on read, which keeps Add a cheap O_APPEND write.
type botFile struct {
	log       logx.Logger
	path      string
	auditPath string

	mu sync.Mutex
}

// auditEntry records one registration, append-only JSONL.
type auditEntry struct {
	At        time.Time `json:"at"`
	ChatID    int64     `json:"chat_id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Language  string    `json:"language,omitempty"`
}

// NewBotFile opens the newline chat-ID registry at path. auditPath may be
// empty to disable the registration audit log.
func NewBotFile(path, auditPath string, log logx.Logger) (BotRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("bot subscriber path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &botFile{log: log, path: path, auditPath: strings.TrimSpace(auditPath)}, nil
}

func (s *botFile) List(ctx context.Context) ([]BotRecipient, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	out := make([]BotRecipient, 0, len(ids))
	for _, id := range ids {
		out = append(out, BotRecipient{ChatID: id})
	}
	return out, nil
}

func (s *botFile) Add(ctx context.Context, chatID int64, p Profile) error {
	_ = ctx
	if chatID == 0 {
		return errors.New("chat id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(strconv.FormatInt(chatID, 10) + "\n")
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	if cerr != nil {
		return cerr
	}

	s.appendAuditLocked(auditEntry{
		At:        time.Now(),
		ChatID:    chatID,
		Username:  p.Username,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Language:  p.Language,
	})
	return nil
}

func (s *botFile) Remove(ctx context.Context, chatID int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.readLocked()
	if err != nil {
		return err
	}

	kept := ids[:0]
	for _, id := range ids {
		if id != chatID {
			kept = append(kept, id)
		}
	}

	var b strings.Builder
	for _, id := range kept {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte('\n')
	}
	return replaceFile(s.path, []byte(b.String()))
}

// readLocked returns the deduplicated IDs in first-seen order.
func (s *botFile) readLocked() ([]int64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	seen := map[int64]bool{}
	var ids []int64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil || id == 0 {
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, sc.Err()
}

func (s *botFile) appendAuditLocked(e auditEntry) {
	if s.auditPath == "" {
		return
	}
	f, err := os.OpenFile(s.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.log.Warn("registration audit open failed", logx.Err(err))
		return
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(e); err != nil {
		s.log.Warn("registration audit write failed", logx.Err(err))
	}
}

// replaceFile writes content to path via temp-and-rename.
func replaceFile(path string, content []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

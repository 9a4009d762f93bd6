package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"focusbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.sessions.jsonl      (append-only JSON Lines)
//   - <prefix>.fired.snapshot.json (periodic snapshot)
//   - <prefix>.fired.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	sessionFile *os.File

	firedSnapshotPath string
	firedJournalFile  *os.File
	fired             map[string]int64 // unix milli

	firedWrites int
}

type firedRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	sessionsPath := prefix + ".sessions.jsonl"
	snapPath := prefix + ".fired.snapshot.json"
	journalPath := prefix + ".fired.journal.jsonl"

	sf, err := os.OpenFile(sessionsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load fired set from snapshot + journal.
	fired := map[string]int64{}
	_ = loadFiredSnapshot(snapPath, fired)
	_ = replayFiredJournal(journalPath, fired)
	pruneExpiredFired(fired)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = sf.Close()
		return nil, err
	}

	return &fileStore{
		log:               log,
		sessionFile:       sf,
		firedSnapshotPath: snapPath,
		firedJournalFile:  jf,
		fired:             fired,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.sessionFile != nil {
		err1 = s.sessionFile.Close()
		s.sessionFile = nil
	}
	if s.firedJournalFile != nil {
		err2 = s.firedJournalFile.Close()
		s.firedJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendSession(ctx context.Context, r SessionRecord) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionFile == nil {
		return errors.New("session log closed")
	}
	return json.NewEncoder(s.sessionFile).Encode(r)
}

func (s *fileStore) PutFired(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firedJournalFile == nil {
		return errors.New("fired journal closed")
	}
	if s.fired == nil {
		s.fired = map[string]int64{}
	}
	s.fired[key] = ms

	// Append journal record.
	if err := json.NewEncoder(s.firedJournalFile).Encode(firedRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.firedWrites++
	if s.firedWrites%1000 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("fired compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetFired(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.fired[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) compactLocked() error {
	if s.fired == nil {
		return nil
	}
	pruneExpiredFired(s.fired)

	tmp := s.firedSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.fired); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.firedSnapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.firedJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.firedJournalFile.Seek(0, 2)
	return err
}

func loadFiredSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayFiredJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r firedRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return sc.Err()
}

func pruneExpiredFired(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v < now {
			delete(m, k)
		}
	}
}

package jobstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cronbot/internal/job"
	logx "cronbot/pkg/logx"
)

const fileCompactEvery = 256

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.jobs.snapshot.json (periodic snapshot, jobs in insertion order)
//   - <prefix>.jobs.journal.jsonl (append-only journal of puts/deletes)
//
// The journal is compacted into the snapshot every fileCompactEvery writes and on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	mem          *Memory
	snapshotPath string
	journal      *os.File
	writes       int
}

type journalRecord struct {
	Op  string          `json:"op"`
	ID  string          `json:"id"`
	Job json.RawMessage `json:"job,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".jobs.snapshot.json"
	journalPath := prefix + ".jobs.journal.jsonl"

	mem := NewMemory()
	if err := loadSnapshot(snapPath, mem); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := replayJournal(journalPath, mem, log); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	log.Debug("file store opened", logx.String("snapshot", snapPath), logx.Int("jobs", len(mem.order)))
	return &fileStore{
		log:          log,
		mem:          mem,
		snapshotPath: snapPath,
		journal:      jf,
	}, nil
}

func (s *fileStore) Put(_ context.Context, j job.Job) error {
	b, err := job.Encode(j)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if err := s.appendLocked(journalRecord{Op: "put", ID: j.ID, Job: b}); err != nil {
		return err
	}
	s.mem.mu.Lock()
	s.mem.putLocked(j)
	s.mem.mu.Unlock()
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) Get(ctx context.Context, id string) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return job.Job{}, ErrClosed
	}
	return s.mem.Get(ctx, id)
}

func (s *fileStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return false, ErrClosed
	}
	if _, err := s.mem.Get(ctx, id); errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err := s.appendLocked(journalRecord{Op: "delete", ID: id}); err != nil {
		return false, err
	}
	s.mem.mu.Lock()
	existed := s.mem.deleteLocked(id)
	s.mem.mu.Unlock()
	s.maybeCompactLocked()
	return existed, nil
}

func (s *fileStore) List(ctx context.Context) ([]job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return s.mem.List(ctx)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	cerr := s.compactLocked()
	if cerr != nil {
		s.log.Warn("file store compact on close failed", logx.Any("err", cerr))
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) appendLocked(r journalRecord) error {
	enc := json.NewEncoder(s.journal)
	return enc.Encode(r)
}

func (s *fileStore) maybeCompactLocked() {
	s.writes++
	if s.writes%fileCompactEvery != 0 {
		return
	}
	// Best-effort compact.
	if err := s.compactLocked(); err != nil {
		s.log.Debug("file store compact failed", logx.Any("err", err))
	}
}

func (s *fileStore) compactLocked() error {
	s.mem.mu.Lock()
	jobs := s.mem.listLocked()
	s.mem.mu.Unlock()

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(jobs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, mem *Memory) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return err
	}
	for _, raw := range raws {
		j, err := job.Decode(raw)
		if err != nil {
			return err
		}
		mem.putLocked(j)
	}
	return nil
}

func replayJournal(path string, mem *Memory, log logx.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// A torn last line after a crash is expected; skip it.
			log.Debug("file store journal line skipped", logx.Any("err", err))
			continue
		}
		switch r.Op {
		case "put":
			j, err := job.Decode(r.Job)
			if err != nil {
				log.Debug("file store journal job skipped", logx.String("id", r.ID), logx.Any("err", err))
				continue
			}
			mem.putLocked(j)
		case "delete":
			mem.deleteLocked(r.ID)
		}
	}
	return sc.Err()
}

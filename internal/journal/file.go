package journal

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

	logx "announcerd/pkg/logx"
)

// fileStore is the dependency-free journal backend: one append-only JSON
// Lines file, compacted in place when it grows past twice the retention
// bound.
type fileStore struct {
	log logx.Logger

	mu         sync.Mutex
	path       string
	f          *os.File
	appended   int
	maxRecords int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("journal.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, f: f, maxRecords: cfg.MaxRecords}, nil
}

func (s *fileStore) RecordTick(ctx context.Context, rec TickRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return errors.New("journal closed")
	}
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		return err
	}
	s.appended++
	if s.appended >= s.maxRecords {
		s.appended = 0
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentTicks(ctx context.Context, limit int) ([]TickRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := readRecords(s.path)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// compactLocked rewrites the file keeping only the newest maxRecords entries.
func (s *fileStore) compactLocked() error {
	recs, err := readRecords(s.path)
	if err != nil {
		return err
	}
	if len(recs) <= s.maxRecords {
		return nil
	}
	recs = recs[len(recs)-s.maxRecords:]

	tmp := s.path + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tf)
	for _, r := range recs {
		b, err := json.Marshal(r)
		if err != nil {
			_ = tf.Close()
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			_ = tf.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tf.Close()
		return err
	}
	if err := tf.Close(); err != nil {
		return err
	}

	_ = s.f.Close()
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.f = nil
		return err
	}
	s.f = f
	return nil
}

func readRecords(path string) ([]TickRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var recs []TickRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r TickRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			// Torn final line from a crash mid-append; skip it.
			continue
		}
		recs = append(recs, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

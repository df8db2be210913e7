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

	logx "schedkit/pkg/logx"
)

// fileStore is a dependency-free append-only backend: one JSON Lines file,
// one entry per line. Recent scans the file and keeps the tail; malformed
// lines (a torn write from a crash) are skipped, not fatal.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
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
	return &fileStore{log: log, path: path, f: f}, nil
}

func (s *fileStore) Append(ctx context.Context, e Entry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("journal file closed")
	}
	return json.NewEncoder(s.f).Encode(e)
}

func (s *fileStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	_ = ctx
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Entry
	var malformed int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			malformed++
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) > limit {
			out = out[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if malformed > 0 && !s.log.IsZero() {
		s.log.Warn("skipped malformed journal lines",
			logx.String("path", path), logx.Int("lines", malformed))
	}
	return out, nil
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

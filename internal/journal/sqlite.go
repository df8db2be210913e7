//go:build sqlite
// +build sqlite

package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "schedkit/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	capacity   int
	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("journal.path is required for sqlite driver")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, capacity: cfg.Capacity, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

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

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Append(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal(at, type, task_id, kind, label, due_us, elapsed_us, err)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Type, e.TaskID, e.Kind,
		nullStr(e.Label), e.DueMicros, e.ElapsedMicros, nullStr(e.Err),
	)
	if err == nil && s.capacity > 0 && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		if perr := s.prune(pctx); perr != nil {
			s.log.Debug("journal prune failed", logx.Any("err", perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = s.capacity
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT at, type, task_id, kind, label, due_us, elapsed_us, err
		 FROM journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		var label, errStr sql.NullString
		if err := rows.Scan(&at, &e.Type, &e.TaskID, &e.Kind, &label, &e.DueMicros, &e.ElapsedMicros, &errStr); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			e.At = t
		}
		e.Label = label.String
		e.Err = errStr.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query walks newest-first; callers get chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *sqliteStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM journal WHERE id < (
		   SELECT COALESCE(MIN(id), 0) FROM (
		     SELECT id FROM journal ORDER BY id DESC LIMIT ?
		   )
		 )`, s.capacity)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

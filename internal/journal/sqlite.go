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

	logx "announcerd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	maxRecords int
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

	st := &sqliteStore{db: db, log: log, maxRecords: cfg.MaxRecords, pruneEvery: 500}

	// Basic pragmas.
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

func (s *sqliteStore) RecordTick(ctx context.Context, rec TickRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ticks (at, pending, eligible, recipients, submitted, marked, mark_failed, stage, error, took_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.At.UnixMilli(), rec.Pending, rec.Eligible, rec.Recipients,
		rec.Submitted, rec.Marked, rec.MarkFailed, rec.Stage, rec.Error, rec.TookMS,
	)
	if err != nil {
		return err
	}

	if n := s.opCount.Add(1); n%s.pruneEvery == 0 {
		if perr := s.prune(ctx); perr != nil {
			s.log.Warn("journal prune failed", logx.Err(perr))
		}
	}
	return nil
}

func (s *sqliteStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM ticks WHERE id NOT IN (
			SELECT id FROM ticks ORDER BY id DESC LIMIT ?
		)`, s.maxRecords)
	return err
}

func (s *sqliteStore) RecentTicks(ctx context.Context, limit int) ([]TickRecord, error) {
	if limit <= 0 {
		limit = s.maxRecords
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT at, pending, eligible, recipients, submitted, marked, mark_failed, stage, error, took_ms
		FROM ticks ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var recs []TickRecord
	for rows.Next() {
		var r TickRecord
		var atMilli int64
		if err := rows.Scan(&atMilli, &r.Pending, &r.Eligible, &r.Recipients,
			&r.Submitted, &r.Marked, &r.MarkFailed, &r.Stage, &r.Error, &r.TookMS); err != nil {
			return nil, err
		}
		r.At = time.UnixMilli(atMilli)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order to match the file backend.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

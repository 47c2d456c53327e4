package sqlite

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// RunRecord is one row of the daily auto-trade run log.
type RunRecord struct {
	RunDate   string
	Action    string
	Quantity  int
	RiskIndex float64
	Reason    string
	CreatedAt string
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return err
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS run_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_date TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		risk_index REAL NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// RecordRun appends one entry to the auto-trade run log.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (run_date, action, quantity, risk_index, reason) VALUES (?, ?, ?, ?, ?)`,
		rec.RunDate, rec.Action, rec.Quantity, rec.RiskIndex, rec.Reason)
	return err
}

// LastRun returns the most recent run log entry, if any.
func (s *Store) LastRun(ctx context.Context) (RunRecord, bool, error) {
	var rec RunRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT run_date, action, quantity, risk_index, reason, created_at FROM run_log ORDER BY id DESC LIMIT 1`).
		Scan(&rec.RunDate, &rec.Action, &rec.Quantity, &rec.RiskIndex, &rec.Reason, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

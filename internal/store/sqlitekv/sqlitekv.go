// Package sqlitekv is the SQLite backend of the state store. Besides the
// key-value table it keeps an append-only log of committed actions.
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"charognard/internal/model"
)

type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
	  key TEXT PRIMARY KEY,
	  value BLOB NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS action_log (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  ts INTEGER NOT NULL,
	  account_id TEXT NOT NULL,
	  action TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_action_log_ts ON action_log(account_id, ts);
	`)
	return err
}

// Get returns the value stored under key.
func (d *DB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := d.sql.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put upserts value under key.
func (d *DB) Put(ctx context.Context, key string, value []byte) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO kv(key, value, updated_at) VALUES(?,?,?)
	ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// PutAction appends a committed action.
func (d *DB) PutAction(ctx context.Context, rec model.ActionRecord) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO action_log(ts, account_id, action) VALUES(?,?,?)`,
		rec.At.UnixMilli(), rec.AccountID, string(rec.Action))
	return err
}

// CountActionsWithin counts the account's actions of one type in [start, end).
func (d *DB) CountActionsWithin(ctx context.Context, accountID string, start, end time.Time, action model.ActionType) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM action_log WHERE account_id=? AND ts>=? AND ts<? AND action=?`,
		accountID, start.UnixMilli(), end.UnixMilli(), string(action)).Scan(&n)
	return n, err
}

// LoadActions returns the account's actions in [start, end), oldest first.
func (d *DB) LoadActions(ctx context.Context, accountID string, start, end time.Time) ([]model.ActionRecord, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT ts, action FROM action_log WHERE account_id=? AND ts>=? AND ts<? ORDER BY ts, id`,
		accountID, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ActionRecord
	for rows.Next() {
		var ts int64
		var action string
		if err := rows.Scan(&ts, &action); err != nil {
			return nil, err
		}
		out = append(out, model.ActionRecord{At: time.UnixMilli(ts).UTC(), AccountID: accountID, Action: model.ActionType(action)})
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// CursorLastTick records the wall time of the last completed poll tick.
const CursorLastTick = "relay:last_tick"

// DB is the sqlite relay journal: replies we sent and poll cursors.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
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
	CREATE TABLE IF NOT EXISTS relays (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  ts INTEGER NOT NULL,
	  talker_id INTEGER NOT NULL,
	  user_name TEXT,
	  query TEXT,
	  intent TEXT,
	  reply TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_relays_ts ON relays(ts);
	CREATE TABLE IF NOT EXISTS cursors (
	  key TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);
	`)
	return err
}

// RelayRecord is one forwarded message and the reply sent back for it.
type RelayRecord struct {
	Time     time.Time
	TalkerID int64
	UserName string
	Query    string
	Intent   string
	Reply    string
}

// PutRelay appends a record to the journal.
func (d *DB) PutRelay(ctx context.Context, r RelayRecord) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO relays(ts, talker_id, user_name, query, intent, reply) VALUES(?,?,?,?,?,?)`,
		r.Time.Unix(), r.TalkerID, r.UserName, r.Query, r.Intent, r.Reply)
	return err
}

// RecentRelays returns the newest limit records, newest first.
func (d *DB) RecentRelays(ctx context.Context, limit int) ([]RelayRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.sql.QueryContext(ctx,
		`SELECT ts, talker_id, user_name, query, intent, reply FROM relays ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RelayRecord
	for rows.Next() {
		var ts int64
		var r RelayRecord
		if err := rows.Scan(&ts, &r.TalkerID, &r.UserName, &r.Query, &r.Intent, &r.Reply); err != nil {
			return nil, err
		}
		r.Time = time.Unix(ts, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveCursor upserts a named cursor value.
func (d *DB) SaveCursor(ctx context.Context, key, value string) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO cursors(key, value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

// LoadCursor returns a cursor value, or "" when absent.
func (d *DB) LoadCursor(ctx context.Context, key string) (string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE key=?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB is the SQLite snapshot store.
type DB struct {
	sqlStore
}

var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// WAL lets the pruner delete while handlers read.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	db := &DB{sqlStore{conn: conn}}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		url TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		channel_id TEXT NOT NULL DEFAULT '',
		fetched_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS snapshot_items (
		feed_url TEXT NOT NULL,
		item_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		pub_date TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		is_video INTEGER NOT NULL DEFAULT 0,
		video_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (feed_url, item_id)
	);
	CREATE INDEX IF NOT EXISTS idx_snapshot_items_position ON snapshot_items(feed_url, position);
	CREATE INDEX IF NOT EXISTS idx_snapshots_fetched_at ON snapshots(fetched_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

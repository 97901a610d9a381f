// Package database stores snapshots of served feeds so articles can be
// resolved by stable item ID.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-buckman/termread/internal/model"
)

// ErrNotFound is returned for unknown feeds and items.
var ErrNotFound = errors.New("not found")

// Store defines the snapshot operations shared by every backend.
type Store interface {
	Close() error

	// DatabaseType returns the name of the backend ("SQLite", "PostgreSQL" or "Redis").
	DatabaseType() string

	// SaveSnapshot replaces the stored copy of feed.
	SaveSnapshot(ctx context.Context, feed *model.Feed, fetchedAt time.Time) error
	// Snapshot returns the stored copy of the feed at url.
	Snapshot(ctx context.Context, url string) (*model.Feed, error)
	// Item resolves ref as a stable item ID, then as a positional index.
	Item(ctx context.Context, url, ref string) (*model.FeedItem, error)
	// PruneSnapshots drops snapshots fetched before the cutoff.
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)
}

// sqlStore holds the queries shared by SQLite and PostgreSQL. Queries are
// written with ? placeholders and rewritten by bind.
type sqlStore struct {
	conn *sql.DB
	bind func(string) string
}

func (s *sqlStore) q(query string) string {
	if s.bind == nil {
		return query
	}
	return s.bind(query)
}

// dollarPlaceholders rewrites ? placeholders as $1, $2, ...
func dollarPlaceholders(query string) string {
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *sqlStore) SaveSnapshot(ctx context.Context, feed *model.Feed, fetchedAt time.Time) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO snapshots (url, title, description, channel_id, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			channel_id = excluded.channel_id,
			fetched_at = excluded.fetched_at`),
		feed.URL, feed.Title, feed.Description, feed.ChannelID, fetchedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q("DELETE FROM snapshot_items WHERE feed_url = ?"), feed.URL); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.q(`
		INSERT INTO snapshot_items
			(feed_url, item_id, position, title, link, pub_date, author, description, content, is_video, video_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare items: %w", err)
	}
	defer stmt.Close()
	for _, it := range feed.Items {
		if _, err := stmt.ExecContext(ctx, feed.URL, it.ID, it.Index, it.Title, it.Link, it.PubDate,
			it.Author, it.Description, it.Content, it.IsVideo, it.VideoID); err != nil {
			return fmt.Errorf("insert item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

const itemColumns = "item_id, position, title, link, pub_date, author, description, content, is_video, video_id"

func scanItem(row interface{ Scan(...any) error }) (model.FeedItem, error) {
	var it model.FeedItem
	err := row.Scan(&it.ID, &it.Index, &it.Title, &it.Link, &it.PubDate, &it.Author,
		&it.Description, &it.Content, &it.IsVideo, &it.VideoID)
	return it, err
}

func (s *sqlStore) Snapshot(ctx context.Context, url string) (*model.Feed, error) {
	feed := &model.Feed{URL: url, Items: []model.FeedItem{}}
	err := s.conn.QueryRowContext(ctx, s.q("SELECT title, description, channel_id FROM snapshots WHERE url = ?"), url).
		Scan(&feed.Title, &feed.Description, &feed.ChannelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx,
		s.q("SELECT "+itemColumns+" FROM snapshot_items WHERE feed_url = ? ORDER BY position"), url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		feed.Items = append(feed.Items, it)
	}
	return feed, rows.Err()
}

func (s *sqlStore) Item(ctx context.Context, url, ref string) (*model.FeedItem, error) {
	ref = strings.TrimSpace(ref)
	it, err := scanItem(s.conn.QueryRowContext(ctx,
		s.q("SELECT "+itemColumns+" FROM snapshot_items WHERE feed_url = ? AND item_id = ?"), url, ref))
	if err == nil {
		return &it, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	idx, convErr := strconv.Atoi(ref)
	if convErr != nil || idx < 0 {
		return nil, ErrNotFound
	}
	it, err = scanItem(s.conn.QueryRowContext(ctx,
		s.q("SELECT "+itemColumns+" FROM snapshot_items WHERE feed_url = ? AND position = ?"), url, idx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *sqlStore) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff := before.UnixMilli()
	if _, err := tx.ExecContext(ctx, s.q(
		"DELETE FROM snapshot_items WHERE feed_url IN (SELECT url FROM snapshots WHERE fetched_at < ?)"), cutoff); err != nil {
		return 0, fmt.Errorf("prune items: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.q("DELETE FROM snapshots WHERE fetched_at < ?"), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (s *sqlStore) Close() error {
	return s.conn.Close()
}

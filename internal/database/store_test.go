package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bryan-buckman/termread/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFeed(url string) *model.Feed {
	feed := &model.Feed{
		URL:         url,
		Title:       "Example",
		Description: "desc",
		Items: []model.FeedItem{
			{Title: "Second", Link: "https://example.com/2", PubDate: "2024-01-02T00:00:00Z", Content: "<p>2</p>"},
			{Title: "First", Link: "https://example.com/1", PubDate: "2024-01-01T00:00:00Z", Author: "Ada"},
			{Title: "Video", Link: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", IsVideo: true, VideoID: "dQw4w9WgXcQ"},
		},
	}
	model.AssignIDs(feed.Items)
	return feed
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Now()

	_, err := s.Snapshot(ctx, "https://missing.example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	feed := sampleFeed("https://example.com/rss")
	require.NoError(t, s.SaveSnapshot(ctx, feed, now))

	got, err := s.Snapshot(ctx, feed.URL)
	require.NoError(t, err)
	assert.Equal(t, feed.Title, got.Title)
	assert.Equal(t, feed.Items, got.Items)

	t.Run("item by id", func(t *testing.T) {
		it, err := s.Item(ctx, feed.URL, feed.Items[1].ID)
		require.NoError(t, err)
		assert.Equal(t, "First", it.Title)
		assert.Equal(t, "Ada", it.Author)
	})

	t.Run("item by index", func(t *testing.T) {
		it, err := s.Item(ctx, feed.URL, "2")
		require.NoError(t, err)
		assert.True(t, it.IsVideo)
		assert.Equal(t, "dQw4w9WgXcQ", it.VideoID)
	})

	t.Run("unknown item", func(t *testing.T) {
		for _, ref := range []string{"nope", "99", "-1", ""} {
			_, err := s.Item(ctx, feed.URL, ref)
			assert.ErrorIs(t, err, ErrNotFound, ref)
		}
	})

	t.Run("replace keeps ids stable", func(t *testing.T) {
		reordered := sampleFeed(feed.URL)
		reordered.Items = []model.FeedItem{feed.Items[2], feed.Items[0], feed.Items[1]}
		model.AssignIDs(reordered.Items)
		require.NoError(t, s.SaveSnapshot(ctx, reordered, now))

		it, err := s.Item(ctx, feed.URL, feed.Items[1].ID)
		require.NoError(t, err)
		assert.Equal(t, "First", it.Title)
		assert.Equal(t, 2, it.Index)

		got, err := s.Snapshot(ctx, feed.URL)
		require.NoError(t, err)
		assert.Len(t, got.Items, 3)
		assert.Equal(t, "Video", got.Items[0].Title)
	})

	t.Run("empty feed", func(t *testing.T) {
		empty := &model.Feed{URL: "https://example.com/empty", Title: "Empty", Items: []model.FeedItem{}}
		require.NoError(t, s.SaveSnapshot(ctx, empty, now))
		got, err := s.Snapshot(ctx, empty.URL)
		require.NoError(t, err)
		assert.NotNil(t, got.Items)
		assert.Empty(t, got.Items)
	})

	t.Run("prune", func(t *testing.T) {
		old := sampleFeed("https://old.example.com/rss")
		require.NoError(t, s.SaveSnapshot(ctx, old, now.Add(-48*time.Hour)))

		n, err := s.PruneSnapshots(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = s.Snapshot(ctx, old.URL)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Item(ctx, old.URL, "0")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Snapshot(ctx, feed.URL)
		assert.NoError(t, err)
	})
}

func TestSQLiteStore(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "SQLite", db.DatabaseType())
	exerciseStore(t, db)
}

func TestSQLiteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := New(path)
	require.NoError(t, err)
	feed := sampleFeed("https://example.com/rss")
	require.NoError(t, db.SaveSnapshot(context.Background(), feed, time.Now()))
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Snapshot(context.Background(), feed.URL)
	require.NoError(t, err)
	assert.Len(t, got.Items, 3)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedis(context.Background(), "redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "Redis", s.DatabaseType())
	exerciseStore(t, s)
}

func TestRedisStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedis(context.Background(), "redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	defer s.Close()

	feed := sampleFeed("https://example.com/rss")
	require.NoError(t, s.SaveSnapshot(context.Background(), feed, time.Now()))
	mr.FastForward(2 * time.Minute)

	_, err = s.Snapshot(context.Background(), feed.URL)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisUnreachable(t *testing.T) {
	_, err := NewRedis(context.Background(), "redis://127.0.0.1:1", time.Minute)
	assert.Error(t, err)
	_, err = NewRedis(context.Background(), "not a url", time.Minute)
	assert.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TERMREAD_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("TERMREAD_TEST_POSTGRES not set")
	}
	db, err := NewPostgres(dsn)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.conn.Exec("TRUNCATE snapshots, snapshot_items")
	require.NoError(t, err)

	assert.Equal(t, "PostgreSQL", db.DatabaseType())
	exerciseStore(t, db)
}

func TestDollarPlaceholders(t *testing.T) {
	assert.Equal(t,
		"SELECT a FROM t WHERE x = $1 AND y IN (SELECT z FROM u WHERE w < $2)",
		dollarPlaceholders("SELECT a FROM t WHERE x = ? AND y IN (SELECT z FROM u WHERE w < ?)"))
}

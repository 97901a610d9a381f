package rss

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryan-buckman/termread/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverRoutesAndKeepsOrder(t *testing.T) {
	r := &Resolver{
		Feeds: func(ctx context.Context, url string) (*model.Feed, error) {
			if strings.Contains(url, "broken") {
				return nil, errors.New("failed to fetch RSS feed")
			}
			return &model.Feed{Title: "Feed " + url, Description: "d"}, nil
		},
		Channels: func(ctx context.Context, url string) (*model.Feed, error) {
			return &model.Feed{Title: "Channel", Description: "UC123"}, nil
		},
		IsChannel:   func(url string) bool { return strings.Contains(url, "youtube.com") },
		Concurrency: 2,
	}

	got := r.Resolve(context.Background(), []string{
		" https://example.com/rss ",
		"https://www.youtube.com/@someone",
		"https://broken.example.com/rss",
	})
	require.Len(t, got, 3)

	assert.Equal(t, "https://example.com/rss", got[0].URL)
	require.NotNil(t, got[0].Source)
	assert.Equal(t, model.KindRSS, got[0].Source.Type)
	assert.Equal(t, "Feed https://example.com/rss", got[0].Source.Title)

	require.NotNil(t, got[1].Source)
	assert.Equal(t, model.KindYouTube, got[1].Source.Type)
	assert.Equal(t, "UC123", got[1].Source.Description)

	assert.Nil(t, got[2].Source)
	assert.Equal(t, "failed to fetch RSS feed", got[2].Error)
}

func TestResolverTitleFallsBackToURL(t *testing.T) {
	r := &Resolver{Feeds: func(ctx context.Context, url string) (*model.Feed, error) {
		return &model.Feed{}, nil
	}}
	got := r.Resolve(context.Background(), []string{"https://example.com/rss"})
	assert.Equal(t, "https://example.com/rss", got[0].Source.Title)
}

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (f *fakePruner) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return 1, nil
}

func TestPrunerUsesTTL(t *testing.T) {
	store := &fakePruner{}
	p := NewPruner(store, time.Hour, time.Hour)
	p.PruneOnce()

	require.Len(t, store.cutoffs, 1)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), store.cutoffs[0], 5*time.Second)
}

func TestPrunerStartStop(t *testing.T) {
	store := &fakePruner{}
	p := NewPruner(store, time.Hour, 10*time.Millisecond)
	p.Start()
	time.Sleep(35 * time.Millisecond)
	p.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.GreaterOrEqual(t, len(store.cutoffs), 2)
}

package rss

import (
	"context"
	"strings"

	"github.com/bryan-buckman/termread/internal/model"
	"golang.org/x/sync/errgroup"
)

// SourceFunc loads a feed-like document for a URL.
type SourceFunc func(ctx context.Context, url string) (*model.Feed, error)

// Resolver turns user-submitted URLs into FeedSources, routing channel URLs
// to a separate loader.
type Resolver struct {
	Feeds       SourceFunc
	Channels    SourceFunc
	IsChannel   func(url string) bool
	Concurrency int
}

// Resolution is the outcome for one submitted URL.
type Resolution struct {
	URL    string            `json:"url"`
	Source *model.FeedSource `json:"source,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Resolve loads every URL with bounded concurrency. Results keep input
// order; a failing URL never aborts the others.
func (r *Resolver) Resolve(ctx context.Context, urls []string) []Resolution {
	out := make([]Resolution, len(urls))
	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, raw := range urls {
		out[i].URL = strings.TrimSpace(raw)
		g.Go(func() error {
			src, err := r.resolveOne(gctx, out[i].URL)
			if err != nil {
				out[i].Error = err.Error()
				return nil
			}
			out[i].Source = src
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Resolver) resolveOne(ctx context.Context, url string) (*model.FeedSource, error) {
	load, kind := r.Feeds, model.KindRSS
	if r.IsChannel != nil && r.IsChannel(url) && r.Channels != nil {
		load, kind = r.Channels, model.KindYouTube
	}
	feed, err := load(ctx, url)
	if err != nil {
		return nil, err
	}
	title := feed.Title
	if title == "" {
		title = url
	}
	return &model.FeedSource{
		URL:         url,
		Title:       title,
		Description: feed.Description,
		Type:        kind,
	}, nil
}

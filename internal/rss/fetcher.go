// Package rss provides feed fetching and parsing.
package rss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bryan-buckman/termread/internal/fetch"
	"github.com/bryan-buckman/termread/internal/metrics"
	"github.com/bryan-buckman/termread/internal/model"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/singleflight"
)

// ErrFeedUnavailable wraps every failure to load or parse a feed.
var ErrFeedUnavailable = errors.New("failed to fetch RSS feed")

const feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.8"

// Fetcher loads syndication documents and normalizes them into model.Feed.
type Fetcher struct {
	client  *fetch.Client
	timeout time.Duration
	group   singleflight.Group
}

// NewFetcher creates a fetcher. timeout bounds one fetch including parsing.
func NewFetcher(client *fetch.Client, timeout time.Duration) *Fetcher {
	return &Fetcher{client: client, timeout: timeout}
}

// FetchFeed fetches and parses the feed at feedURL in a single attempt.
// Concurrent calls for the same URL share one upstream request; the caller
// may abandon the wait through ctx.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string) (*model.Feed, error) {
	ch := f.group.DoChan(feedURL, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		return f.fetch(fctx, feedURL)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneFeed(res.Val.(*model.Feed)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Fetcher) fetch(ctx context.Context, feedURL string) (feed *model.Feed, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.KindFeed, start, err) }()

	resp, err := f.client.Get(ctx, feedURL, feedAccept)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFeedUnavailable, feedURL, err)
	}
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrFeedUnavailable, feedURL, err)
	}

	feed = Normalize(feedURL, parsed)
	slog.Debug("feed fetched",
		slog.String("url", feedURL),
		slog.Int("items", len(feed.Items)),
		slog.Duration("took", time.Since(start)))
	return feed, nil
}

// Normalize converts a parsed gofeed document, keeping document order.
func Normalize(feedURL string, parsed *gofeed.Feed) *model.Feed {
	feed := &model.Feed{
		URL:         feedURL,
		Title:       strings.TrimSpace(parsed.Title),
		Description: strings.TrimSpace(parsed.Description),
		Items:       make([]model.FeedItem, 0, len(parsed.Items)),
	}
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		it := model.FeedItem{
			Title:       strings.TrimSpace(item.Title),
			Link:        itemLink(item),
			PubDate:     pubDate(item),
			Author:      author(item),
			Description: item.Description,
			Content:     item.Content,
		}
		if it.Description == "" {
			it.Description = mediaDescription(item)
		}
		if it.Content == "" {
			it.Content = it.Description
		}
		feed.Items = append(feed.Items, it)
	}
	model.AssignIDs(feed.Items)
	return feed
}

func itemLink(item *gofeed.Item) string {
	if item.Link != "" {
		return strings.TrimSpace(item.Link)
	}
	if len(item.Links) > 0 {
		return strings.TrimSpace(item.Links[0])
	}
	return ""
}

func pubDate(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC().Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC().Format(time.RFC3339)
	case item.Published != "":
		return item.Published
	default:
		return item.Updated
	}
}

func author(item *gofeed.Item) string {
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

// mediaDescription reads media:group/media:description, which is where
// YouTube and other MRSS feeds put the item text.
func mediaDescription(item *gofeed.Item) string {
	groups := item.Extensions["media"]["group"]
	if len(groups) == 0 {
		return ""
	}
	for _, d := range groups[0].Children["description"] {
		if v := strings.TrimSpace(d.Value); v != "" {
			return v
		}
	}
	return ""
}

func cloneFeed(f *model.Feed) *model.Feed {
	out := *f
	out.Items = append([]model.FeedItem(nil), f.Items...)
	if out.Items == nil {
		out.Items = []model.FeedItem{}
	}
	return &out
}

package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bryan-buckman/termread/internal/fetch"
	"github.com/bryan-buckman/termread/internal/metrics"
	"github.com/bryan-buckman/termread/internal/model"
)

const (
	// DefaultFeedBase is YouTube's per-channel video feed endpoint.
	DefaultFeedBase = "https://www.youtube.com/feeds/videos.xml"
	// DefaultPageBase is where handles and channel pages are looked up.
	DefaultPageBase = "https://www.youtube.com"
)

var (
	// ErrInvalidChannelURL means no channel identifier could be resolved.
	ErrInvalidChannelURL = errors.New("invalid YouTube channel URL")
	// ErrChannelUnavailable wraps upstream failures while loading a channel.
	ErrChannelUnavailable = errors.New("failed to fetch YouTube channel")
)

var embeddedChannelRE = regexp.MustCompile(`"(?:externalId|channelId|browseId)":"(UC[0-9A-Za-z_-]{22})"`)

// FeedFetcher loads a syndication feed.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, url string) (*model.Feed, error)
}

// Adapter turns channel URLs into feeds of videos.
type Adapter struct {
	feeds    FeedFetcher
	client   *fetch.Client
	FeedBase string
	// PageBase is accepted alongside the YouTube hosts when resolving
	// channel URLs.
	PageBase string
}

// NewAdapter creates a channel adapter. client is used to load channel pages
// when the identifier is not part of the URL.
func NewAdapter(feeds FeedFetcher, client *fetch.Client) *Adapter {
	return &Adapter{feeds: feeds, client: client, FeedBase: DefaultFeedBase, PageBase: DefaultPageBase}
}

// FetchChannel resolves channelURL, loads the channel's video feed and tags
// every item whose link carries a video identifier.
func (a *Adapter) FetchChannel(ctx context.Context, channelURL string) (feed *model.Feed, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.KindChannel, start, err) }()

	channelID, err := a.ResolveChannelID(ctx, channelURL)
	if err != nil {
		return nil, err
	}
	feed, err = a.feeds.FetchFeed(ctx, ChannelFeedURL(a.FeedBase, channelID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}

	feed.URL = channelURL
	feed.ChannelID = channelID
	feed.Description = channelID
	for i := range feed.Items {
		if id, ok := ExtractVideoID(feed.Items[i].Link); ok {
			feed.Items[i].VideoID = id
			feed.Items[i].IsVideo = true
		}
	}
	return feed, nil
}

// ResolveChannelID maps a channel, handle, custom or legacy user URL to the
// canonical UC… identifier. URLs carrying the id are resolved offline;
// everything else is looked up on the channel page. Hosts other than
// YouTube and PageBase are rejected before anything is fetched.
func (a *Adapter) ResolveChannelID(ctx context.Context, channelURL string) (string, error) {
	raw := strings.TrimSpace(channelURL)
	if IsChannelID(raw) {
		return raw, nil
	}
	if strings.HasPrefix(raw, "@") {
		raw = strings.TrimRight(a.PageBase, "/") + "/" + raw
	}
	u, err := parseLoose(raw)
	if err != nil || u.Host == "" || !a.allowedHost(u) {
		return "", ErrInvalidChannelURL
	}
	if m := channelPath.FindStringSubmatch(u.Path); m != nil {
		return m[1], nil
	}
	if id := u.Query().Get("channel_id"); IsChannelID(id) {
		return id, nil
	}
	if u.Path == "" || u.Path == "/" {
		return "", ErrInvalidChannelURL
	}

	resp, err := a.client.Get(ctx, u.String(), "text/html")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	if id := channelIDFromPage(resp.Body); id != "" {
		return id, nil
	}
	return "", ErrInvalidChannelURL
}

func (a *Adapter) allowedHost(u *url.URL) bool {
	if IsYouTubeURL(u.String()) {
		return true
	}
	base, err := url.Parse(a.PageBase)
	return err == nil && base.Host != "" && strings.EqualFold(base.Host, u.Host)
}

func channelIDFromPage(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		for _, sel := range []string{`meta[itemprop="identifier"]`, `meta[itemprop="channelId"]`} {
			if v, ok := doc.Find(sel).First().Attr("content"); ok && IsChannelID(v) {
				return v
			}
		}
		for _, sel := range []string{`link[rel="canonical"]`, `meta[property="og:url"]`} {
			s := doc.Find(sel).First()
			v, ok := s.Attr("href")
			if !ok {
				v, ok = s.Attr("content")
			}
			if ok {
				if m := channelPath.FindStringSubmatch(v); m != nil {
					return m[1]
				}
			}
		}
	}
	if m := embeddedChannelRE.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return ""
}

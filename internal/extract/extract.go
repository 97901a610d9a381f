// Package extract pulls the readable article body out of arbitrary web pages.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/bryan-buckman/termread/internal/fetch"
	"github.com/bryan-buckman/termread/internal/metrics"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
)

var (
	// ErrNoArticle means the page parsed but held no readable content.
	ErrNoArticle = errors.New("failed to parse article content")
	// ErrInvalidURL rejects anything but absolute http(s) URLs.
	ErrInvalidURL = errors.New("target URL must be an absolute http(s) URL")
)

// Result mirrors the readability JSON shape.
type Result struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	TextContent   string `json:"textContent"`
	Length        int    `json:"length"`
	Excerpt       string `json:"excerpt"`
	Byline        string `json:"byline"`
	SiteName      string `json:"siteName"`
	Lang          string `json:"lang"`
	PublishedTime string `json:"publishedTime,omitempty"`
	URL           string `json:"url"`
}

// Extractor pulls the readable article out of a web page.
type Extractor struct {
	client  *fetch.Client
	timeout time.Duration
}

// NewExtractor creates an extractor bounded by timeout per page.
func NewExtractor(client *fetch.Client, timeout time.Duration) *Extractor {
	return &Extractor{client: client, timeout: timeout}
}

// Extract downloads targetURL and runs readability over it.
func (e *Extractor) Extract(ctx context.Context, targetURL string) (res *Result, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.KindExtract, start, err) }()

	u, err := ParseTarget(targetURL)
	if err != nil {
		return nil, err
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.client.Get(ctx, u.String(), "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	// Redirects change the base for relative links.
	if final, perr := url.Parse(resp.URL); perr == nil && final.Host != "" {
		u = final
	}
	return FromHTML(bytes.NewReader(resp.Body), resp.ContentType, u)
}

// FromHTML parses an already downloaded page. contentType selects the
// charset decoder; an empty value lets the decoder sniff the document.
func FromHTML(r io.Reader, contentType string, pageURL *url.URL) (*Result, error) {
	utf8, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	article, err := readability.FromReader(utf8, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoArticle, err)
	}
	if strings.TrimSpace(article.Content) == "" || strings.TrimSpace(article.TextContent) == "" {
		return nil, ErrNoArticle
	}

	res := &Result{
		Title:       strings.TrimSpace(article.Title),
		Content:     article.Content,
		TextContent: article.TextContent,
		Length:      article.Length,
		Excerpt:     article.Excerpt,
		Byline:      article.Byline,
		SiteName:    article.SiteName,
		Lang:        article.Language,
		URL:         pageURL.String(),
	}
	if article.PublishedTime != nil {
		res.PublishedTime = article.PublishedTime.UTC().Format(time.RFC3339)
	}
	return res, nil
}

// ParseTarget validates a user supplied article URL.
func ParseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// Package model defines shared data structures.
package model

import (
	"fmt"
	"strings"
	"time"
)

// FeedKind distinguishes plain syndication feeds from YouTube channels.
type FeedKind string

// Feed kinds.
const (
	KindRSS     FeedKind = "rss"
	KindYouTube FeedKind = "youtube"
)

// FeedSource is a feed the user has subscribed to.
type FeedSource struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        FeedKind `json:"type"`
	Category    string   `json:"category,omitempty"`
}

// FeedItem is a single entry of a fetched feed. Items are rebuilt on every
// fetch; ID is derived from content so it survives reordering.
type FeedItem struct {
	ID          string `json:"id"`
	Index       int    `json:"index"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	PubDate     string `json:"pubDate"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description"`
	Content     string `json:"content"`
	IsVideo     bool   `json:"isVideo,omitempty"`
	VideoID     string `json:"videoId,omitempty"`
}

// Feed is a normalized syndication document.
type Feed struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ChannelID   string     `json:"channelId,omitempty"`
	Items       []FeedItem `json:"items"`
}

// Article is the view model of a readable document, built either from a
// FeedItem or from a directly extracted URL.
type Article struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Link    string `json:"link"`
	PubDate string `json:"pubDate"`
	Author  string `json:"author,omitempty"`
}

// ArticleFromItem converts a feed item into an article.
func ArticleFromItem(it FeedItem) Article {
	return Article{
		Title:   it.Title,
		Content: it.Content,
		Link:    it.Link,
		PubDate: it.PubDate,
		Author:  it.Author,
	}
}

// ExternalArticle builds an article for a URL that did not come from a feed.
func ExternalArticle(title, content, link string, now time.Time) Article {
	if strings.TrimSpace(title) == "" {
		title = "External Article"
	}
	return Article{
		Title:   title,
		Content: content,
		Link:    link,
		PubDate: now.UTC().Format(time.RFC3339),
	}
}

// Prompt is a named summarization instruction.
type Prompt struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// DefaultPromptID identifies the built-in prompt, which cannot be deleted.
const DefaultPromptID = "default"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Theme is the terminal color configuration.
type Theme struct {
	Hue        int `json:"hue"`
	Saturation int `json:"saturation"`
	Lightness  int `json:"lightness"`
}

// Valid reports whether the components are in range (hue 0-360, the rest 0-100).
func (t Theme) Valid() bool {
	return t.Hue >= 0 && t.Hue <= 360 &&
		t.Saturation >= 0 && t.Saturation <= 100 &&
		t.Lightness >= 0 && t.Lightness <= 100
}

// CSS renders the theme as a CSS HSL triple ("120 100% 50%").
func (t Theme) CSS() string {
	return fmt.Sprintf("%d %d%% %d%%", t.Hue, t.Saturation, t.Lightness)
}

// DefaultTheme is the classic green terminal.
var DefaultTheme = Theme{Hue: 120, Saturation: 100, Lightness: 50}

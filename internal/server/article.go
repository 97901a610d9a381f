package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bryan-buckman/termread/internal/database"
	"github.com/bryan-buckman/termread/internal/extract"
	"github.com/bryan-buckman/termread/internal/model"
	"github.com/bryan-buckman/termread/internal/render"
	"github.com/bryan-buckman/termread/internal/youtube"
)

var errItemNotFound = errors.New("item not found")

type articleResponse struct {
	model.Article
	ID      string `json:"id"`
	Index   int    `json:"index"`
	IsVideo bool   `json:"isVideo,omitempty"`
	VideoID string `json:"videoId,omitempty"`
}

// handleFullText extracts a page. The openRouterKey parameter is accepted
// and ignored; key checks belong to the summarize and chat endpoints.
func (s *Server) handleFullText(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "Target URL is required")
		return
	}
	res, err := s.deps.Extractor.Extract(r.Context(), target)
	switch {
	case errors.Is(err, extract.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "Invalid target URL")
		return
	case errors.Is(err, extract.ErrNoArticle):
		s.fail(w, r, http.StatusInternalServerError, "Failed to parse article content", err)
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, "Failed to fetch article", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	feedURL := strings.TrimSpace(q.Get("url"))
	ref := strings.TrimSpace(q.Get("id"))
	if feedURL == "" || ref == "" {
		writeError(w, http.StatusBadRequest, "Feed URL and item id are required")
		return
	}

	item, err := s.lookupItem(r.Context(), feedURL, ref)
	switch {
	case errors.Is(err, errItemNotFound):
		writeError(w, http.StatusNotFound, "Article not found")
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, "Failed to load article", err)
		return
	}

	var body string
	if item.IsVideo && item.VideoID != "" {
		if body, err = s.videoBody(r.Context(), item); err != nil {
			s.fail(w, r, http.StatusInternalServerError, "Failed to load article", err)
			return
		}
	} else {
		body = render.Sanitize(item.Content)
	}
	content, err := render.Render(body, render.Options{Font: q.Get("font"), RewriteLinks: true})
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Failed to load article", err)
		return
	}

	article := model.ArticleFromItem(*item)
	article.Content = content
	writeJSON(w, http.StatusOK, articleResponse{
		Article: article,
		ID:      item.ID,
		Index:   item.Index,
		IsVideo: item.IsVideo,
		VideoID: item.VideoID,
	})
}

// lookupItem resolves ref against the stored snapshot and falls back to a
// fresh fetch of the feed.
func (s *Server) lookupItem(ctx context.Context, feedURL, ref string) (*model.FeedItem, error) {
	if s.deps.Store != nil {
		item, err := s.deps.Store.Item(ctx, feedURL, ref)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			slog.Warn("snapshot lookup failed", slog.String("url", feedURL), slog.Any("err", err))
		}
	}

	var (
		feed *model.Feed
		err  error
	)
	if youtube.IsYouTubeURL(feedURL) && s.deps.Channels != nil {
		feed, err = s.deps.Channels.FetchChannel(ctx, feedURL)
	} else {
		feed, err = s.deps.Feeds.FetchFeed(ctx, feedURL)
	}
	if err != nil {
		return nil, err
	}
	s.saveSnapshot(ctx, feed)

	item, ok := feed.Lookup(ref)
	if !ok {
		return nil, errItemNotFound
	}
	return &item, nil
}

// videoBody embeds the player and transcript. A missing transcript falls
// back to the item description unless the request itself has ended.
func (s *Server) videoBody(ctx context.Context, item *model.FeedItem) (string, error) {
	text := item.Description
	if s.deps.Transcripts != nil {
		tr, err := s.deps.Transcripts.Fetch(ctx, item.VideoID)
		switch {
		case err == nil:
			text = tr.Content
		case ctx.Err() != nil:
			return "", ctx.Err()
		default:
			slog.Warn("transcript unavailable", slog.String("video", item.VideoID), slog.Any("err", err))
		}
	}
	return youtube.VideoArticleHTML(item.VideoID, text), nil
}

func (s *Server) handleExternalArticle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := strings.TrimSpace(q.Get("url"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "Target URL is required")
		return
	}
	res, err := s.deps.Extractor.Extract(r.Context(), target)
	switch {
	case errors.Is(err, extract.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "Invalid target URL")
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, "Failed to fetch article", err)
		return
	}
	content, err := render.Render(render.Sanitize(res.Content), render.Options{Font: q.Get("font"), RewriteLinks: true})
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Failed to fetch article", err)
		return
	}
	link := res.URL
	if link == "" {
		link = target
	}
	article := model.ExternalArticle(res.Title, content, link, s.now())
	article.Author = res.Byline
	writeJSON(w, http.StatusOK, article)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HTML         string `json:"html"`
		Font         string `json:"font"`
		RewriteLinks bool   `json:"rewriteLinks"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	out, err := render.Render(render.Sanitize(req.HTML), render.Options{Font: req.Font, RewriteLinks: req.RewriteLinks})
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "Failed to render", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": out, "font": render.NormalizeFont(req.Font)})
}

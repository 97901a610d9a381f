package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bryan-buckman/termread/internal/model"
	"github.com/bryan-buckman/termread/internal/opml"
	"github.com/bryan-buckman/termread/internal/youtube"
)

type feedResponse struct {
	URL         string           `json:"url"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	ChannelID   string           `json:"channelId,omitempty"`
	Items       []model.FeedItem `json:"items"`
	Page        *model.PageInfo  `json:"page,omitempty"`
}

func newFeedResponse(feed *model.Feed, page int) feedResponse {
	resp := feedResponse{
		URL:         feed.URL,
		Title:       feed.Title,
		Description: feed.Description,
		ChannelID:   feed.ChannelID,
		Items:       feed.Items,
	}
	if resp.Items == nil {
		resp.Items = []model.FeedItem{}
	}
	if page > 0 {
		items, info := model.Paginate(resp.Items, page, model.ItemsPerPage)
		resp.Items = items
		resp.Page = &info
	}
	return resp
}

func (s *Server) handleRSS(w http.ResponseWriter, r *http.Request) {
	feedURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if feedURL == "" {
		writeError(w, http.StatusBadRequest, "RSS URL is required")
		return
	}
	feed, err := s.deps.Feeds.FetchFeed(r.Context(), feedURL)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Failed to fetch RSS feed", err)
		return
	}
	s.saveSnapshot(r.Context(), feed)
	writeJSON(w, http.StatusOK, newFeedResponse(feed, pageParam(r)))
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	channelURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if channelURL == "" {
		writeError(w, http.StatusBadRequest, "Channel URL is required")
		return
	}
	feed, err := s.deps.Channels.FetchChannel(r.Context(), channelURL)
	switch {
	case errors.Is(err, youtube.ErrInvalidChannelURL):
		writeError(w, http.StatusBadRequest, "Invalid YouTube channel URL")
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, "Failed to fetch YouTube channel", err)
		return
	}
	s.saveSnapshot(r.Context(), feed)
	writeJSON(w, http.StatusOK, newFeedResponse(feed, pageParam(r)))
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	videoID := strings.TrimSpace(r.URL.Query().Get("videoId"))
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "Video ID is required")
		return
	}
	tr, err := s.deps.Transcripts.Fetch(r.Context(), videoID)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Failed to fetch video transcript: "+err.Error(), err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (s *Server) handleResolveFeeds(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	urls := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		writeError(w, http.StatusBadRequest, "At least one URL is required")
		return
	}

	sources := []model.FeedSource{}
	failures := map[string]string{}
	for _, res := range s.resolver.Resolve(r.Context(), urls) {
		if res.Source != nil {
			sources = append(sources, *res.Source)
		} else {
			failures[res.URL] = res.Error
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources, "errors": failures})
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("opml")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	sources, err := opml.Parse(file)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "Failed to parse OPML", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title   string             `json:"title"`
		Sources []model.FeedSource `json:"sources"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Title == "" {
		req.Title = "Termread Feeds"
	}

	data, err := opml.Export(req.Title, req.Sources)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "Failed to export", err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=termread-feeds.opml")
	_, _ = w.Write(data)
}

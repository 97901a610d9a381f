// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bryan-buckman/termread/internal/database"
	"github.com/bryan-buckman/termread/internal/extract"
	"github.com/bryan-buckman/termread/internal/llm"
	"github.com/bryan-buckman/termread/internal/model"
	"github.com/bryan-buckman/termread/internal/rss"
	"github.com/bryan-buckman/termread/internal/view"
	"github.com/bryan-buckman/termread/internal/youtube"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FeedFetcher loads syndication feeds.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, url string) (*model.Feed, error)
}

// ChannelFetcher loads YouTube channels as feeds.
type ChannelFetcher interface {
	FetchChannel(ctx context.Context, url string) (*model.Feed, error)
}

// TranscriptFetcher loads video captions.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (*youtube.Transcript, error)
}

// ArticleExtractor pulls the readable body out of a web page.
type ArticleExtractor interface {
	Extract(ctx context.Context, url string) (*extract.Result, error)
}

// Assistant is the chat-completion client.
type Assistant interface {
	Summarize(ctx context.Context, req llm.SummarizeRequest) (*llm.Summary, error)
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error)
	Models(ctx context.Context, apiKey string) ([]string, error)
}

// SnapshotStore keeps the last served copy of each feed.
type SnapshotStore interface {
	DatabaseType() string
	SaveSnapshot(ctx context.Context, feed *model.Feed, fetchedAt time.Time) error
	Item(ctx context.Context, url, ref string) (*model.FeedItem, error)
}

// Deps are the collaborators behind the handlers. Store and Pruner may be
// nil, which disables snapshots.
type Deps struct {
	Feeds       FeedFetcher
	Channels    ChannelFetcher
	Transcripts TranscriptFetcher
	Extractor   ArticleExtractor
	LLM         Assistant
	Store       SnapshotStore
	Pruner      *rss.Pruner
}

// Options tune the inbound side of the server.
type Options struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxBodyBytes     int64
	FetchConcurrency int
}

// Server is the main HTTP server.
type Server struct {
	deps       Deps
	opts       Options
	resolver   *rss.Resolver
	tracker    *view.Tracker
	limiter    *rateLimiter
	router     chi.Router
	httpServer *http.Server
	now        func() time.Time
}

// New creates a new server.
func New(deps Deps, opts Options) *Server {
	s := &Server{
		deps:    deps,
		opts:    opts,
		tracker: view.NewTracker(),
		limiter: newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		now:     time.Now,
	}
	s.httpServer = &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.resolver = &rss.Resolver{
		IsChannel:   youtube.IsYouTubeURL,
		Concurrency: opts.FetchConcurrency,
	}
	if deps.Feeds != nil {
		s.resolver.Feeds = deps.Feeds.FetchFeed
	}
	if deps.Channels != nil {
		s.resolver.Channels = deps.Channels.FetchChannel
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(keepPeer)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.middleware)
		r.Use(limitBody(s.opts.MaxBodyBytes))
		r.Use(s.trackView)

		r.Get("/rss", s.handleRSS)
		r.Get("/rss/fullText", s.handleFullText)
		r.Get("/youtube/channel", s.handleChannel)
		r.Get("/youtube/transcript", s.handleTranscript)

		r.Get("/article", s.handleArticle)
		r.Get("/article/external", s.handleExternalArticle)
		r.Post("/render", s.handleRender)

		r.Post("/summarize", s.handleSummarize)
		r.Post("/chat", s.handleChat)
		r.Get("/models", s.handleModels)

		r.Post("/feeds/resolve", s.handleResolveFeeds)
		r.Post("/opml/import", s.handleImportOPML)
		r.Post("/opml/export", s.handleExportOPML)
	})

	s.router = r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the snapshot pruner and serves until Shutdown.
func (s *Server) Start(addr string) error {
	if s.deps.Pruner != nil {
		s.deps.Pruner.Start()
	}
	s.httpServer.Addr = addr
	s.httpServer.Handler = s.router
	slog.Info("server starting", slog.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the pruner.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.deps.Pruner != nil {
		s.deps.Pruner.Stop()
	}
	s.limiter.stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	store := "none"
	if s.deps.Store != nil {
		store = s.deps.Store.DatabaseType()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": store})
}

// saveSnapshot records feed for later item lookups. Failures are logged.
func (s *Server) saveSnapshot(ctx context.Context, feed *model.Feed) {
	if s.deps.Store == nil || feed == nil {
		return
	}
	if err := s.deps.Store.SaveSnapshot(context.WithoutCancel(ctx), feed, s.now()); err != nil {
		slog.Warn("snapshot save failed", slog.String("url", feed.URL), slog.Any("err", err))
	}
}

var _ SnapshotStore = (database.Store)(nil)

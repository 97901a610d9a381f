package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryan-buckman/termread/internal/database"
	"github.com/bryan-buckman/termread/internal/extract"
	"github.com/bryan-buckman/termread/internal/fetch"
	"github.com/bryan-buckman/termread/internal/llm"
	"github.com/bryan-buckman/termread/internal/model"
	"github.com/bryan-buckman/termread/internal/youtube"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeeds struct {
	mu    sync.Mutex
	feeds map[string]*model.Feed
	err   error
	calls int
	// block, when set, makes FetchFeed wait for the context.
	block   bool
	started chan struct{}
}

func (f *fakeFeeds) FetchFeed(ctx context.Context, url string) (*model.Feed, error) {
	f.mu.Lock()
	f.calls++
	block, started := f.block, f.started
	f.mu.Unlock()
	if block {
		if started != nil {
			started <- struct{}{}
		}
		<-ctx.Done()
		return nil, fmt.Errorf("fetch %s: %w", url, ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	feed, ok := f.feeds[url]
	if !ok {
		return nil, errors.New("no such feed")
	}
	cp := *feed
	cp.Items = append([]model.FeedItem(nil), feed.Items...)
	return &cp, nil
}

func (f *fakeFeeds) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeChannels struct {
	feed *model.Feed
	err  error
}

func (f *fakeChannels) FetchChannel(ctx context.Context, url string) (*model.Feed, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.feed
	cp.URL = url
	return &cp, nil
}

type fakeTranscripts struct {
	text string
	err  error
}

func (f *fakeTranscripts) Fetch(ctx context.Context, videoID string) (*youtube.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &youtube.Transcript{Content: f.text, VideoID: videoID}, nil
}

type fakeExtractor struct {
	res *extract.Result
	err error
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (*extract.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeLLM struct {
	summary *llm.Summary
	chat    *llm.ChatResult
	models  []string
	err     error
}

func (f *fakeLLM) Summarize(ctx context.Context, req llm.SummarizeRequest) (*llm.Summary, error) {
	if req.APIKey == "" {
		return nil, llm.ErrMissingAPIKey
	}
	return f.summary, f.err
}

func (f *fakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
	if req.APIKey == "" {
		return nil, llm.ErrMissingAPIKey
	}
	return f.chat, f.err
}

func (f *fakeLLM) Models(ctx context.Context, apiKey string) ([]string, error) {
	return f.models, f.err
}

type memStore struct {
	mu    sync.Mutex
	feeds map[string]*model.Feed
}

func newMemStore() *memStore { return &memStore{feeds: map[string]*model.Feed{}} }

func (m *memStore) DatabaseType() string { return "memory" }

func (m *memStore) SaveSnapshot(ctx context.Context, feed *model.Feed, fetchedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *feed
	m.feeds[feed.URL] = &cp
	return nil
}

func (m *memStore) Item(ctx context.Context, url, ref string) (*model.FeedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	feed, ok := m.feeds[url]
	if !ok {
		return nil, database.ErrNotFound
	}
	it, ok := feed.Lookup(ref)
	if !ok {
		return nil, database.ErrNotFound
	}
	return &it, nil
}

func (m *memStore) has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.feeds[url]
	return ok
}

func sampleFeed(url string, n int) *model.Feed {
	f := &model.Feed{URL: url, Title: "Sample", Description: "A feed"}
	for i := 0; i < n; i++ {
		f.Items = append(f.Items, model.FeedItem{
			Title:   fmt.Sprintf("Item %d", i),
			Link:    fmt.Sprintf("https://example.com/%d", i),
			PubDate: "2026-01-02T15:04:05Z",
			Content: fmt.Sprintf(`<p>Body %d <a href="https://other.example/x">link</a></p>`, i),
		})
	}
	model.AssignIDs(f.Items)
	return f
}

type harness struct {
	srv         *Server
	feeds       *fakeFeeds
	channels    *fakeChannels
	transcripts *fakeTranscripts
	extractor   *fakeExtractor
	llm         *fakeLLM
	store       *memStore
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		feeds:       &fakeFeeds{feeds: map[string]*model.Feed{}},
		channels:    &fakeChannels{},
		transcripts: &fakeTranscripts{text: "hello\nworld"},
		extractor:   &fakeExtractor{},
		llm:         &fakeLLM{},
		store:       newMemStore(),
	}
	h.srv = New(Deps{
		Feeds:       h.feeds,
		Channels:    h.channels,
		Transcripts: h.transcripts,
		Extractor:   h.extractor,
		LLM:         h.llm,
		Store:       h.store,
	}, opts)
	t.Cleanup(func() { _ = h.srv.Shutdown(context.Background()) })
	return h
}

func (h *harness) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}

func TestRSS(t *testing.T) {
	h := newHarness(t, Options{})
	h.feeds.feeds["https://example.com/feed"] = sampleFeed("https://example.com/feed", 3)

	rec := h.do(t, http.MethodGet, "/api/rss?url=https://example.com/feed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[feedResponse](t, rec)
	assert.Equal(t, "Sample", resp.Title)
	assert.Equal(t, "A feed", resp.Description)
	assert.Len(t, resp.Items, 3)
	assert.Nil(t, resp.Page)
	assert.True(t, h.store.has("https://example.com/feed"))
}

func TestRSSPagination(t *testing.T) {
	h := newHarness(t, Options{})
	h.feeds.feeds["https://example.com/feed"] = sampleFeed("https://example.com/feed", 150)

	rec := h.do(t, http.MethodGet, "/api/rss?url=https://example.com/feed&page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[feedResponse](t, rec)
	require.NotNil(t, resp.Page)
	assert.Equal(t, model.PageInfo{Page: 2, TotalPages: 2, PerPage: 100, TotalItems: 150}, *resp.Page)
	require.Len(t, resp.Items, 50)
	assert.Equal(t, 100, resp.Items[0].Index)
}

func TestRSSErrors(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(t, http.MethodGet, "/api/rss", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "RSS URL is required", errorOf(t, rec))

	h.feeds.err = errors.New("boom")
	rec = h.do(t, http.MethodGet, "/api/rss?url=https://example.com/feed", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch RSS feed", errorOf(t, rec))
}

func TestFullText(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		res     *extract.Result
		err     error
		code    int
		wantErr string
	}{
		{name: "missing url", target: "/api/rss/fullText", code: http.StatusBadRequest, wantErr: "Target URL is required"},
		{
			name:   "key is optional",
			target: "/api/rss/fullText?url=https://example.com/a",
			res:    &extract.Result{Title: "A", Content: "<p>x</p>"},
			code:   http.StatusOK,
		},
		{
			name:    "invalid url",
			target:  "/api/rss/fullText?url=ftp://example.com/a&openRouterKey=k",
			err:     extract.ErrInvalidURL,
			code:    http.StatusBadRequest,
			wantErr: "Invalid target URL",
		},
		{
			name:    "no article",
			target:  "/api/rss/fullText?url=https://example.com/a&openRouterKey=k",
			err:     fmt.Errorf("wrap: %w", extract.ErrNoArticle),
			code:    http.StatusInternalServerError,
			wantErr: "Failed to parse article content",
		},
		{
			name:    "upstream failure",
			target:  "/api/rss/fullText?url=https://example.com/a",
			err:     errors.New("dial tcp: refused"),
			code:    http.StatusInternalServerError,
			wantErr: "Failed to fetch article",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.extractor.res, h.extractor.err = tt.res, tt.err
			rec := h.do(t, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.code, rec.Code)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, errorOf(t, rec))
				return
			}
			assert.Equal(t, "A", decode[extract.Result](t, rec).Title)
		})
	}
}

func TestChannel(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(t, http.MethodGet, "/api/youtube/channel", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Channel URL is required", errorOf(t, rec))

	h.channels.err = youtube.ErrInvalidChannelURL
	rec = h.do(t, http.MethodGet, "/api/youtube/channel?url=https://www.youtube.com/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid YouTube channel URL", errorOf(t, rec))

	srv := New(Deps{
		Feeds:    h.feeds,
		Channels: youtube.NewAdapter(h.feeds, fetch.NewClient(time.Second, "test", nil)),
	}, Options{})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/youtube/channel?url=https://example.org/channel/UCabcdefghijklmnopqrstuv", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid YouTube channel URL", errorOf(t, rec))
	assert.Zero(t, h.feeds.callCount())

	h.channels.err = fmt.Errorf("%w: 503", youtube.ErrChannelUnavailable)
	rec = h.do(t, http.MethodGet, "/api/youtube/channel?url=https://www.youtube.com/@x", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch YouTube channel", errorOf(t, rec))

	h.channels.err = nil
	h.channels.feed = &model.Feed{
		Title:       "Chan",
		Description: "UCxxxxxxxxxxxxxxxxxxxxxx",
		Items:       []model.FeedItem{{ID: "v1", Title: "Video", IsVideo: true, VideoID: "dQw4w9WgXcQ"}},
	}
	rec = h.do(t, http.MethodGet, "/api/youtube/channel?url=https://www.youtube.com/@x", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "https://www.youtube.com/@x", resp["url"])
	assert.Equal(t, "Chan", resp["title"])
	assert.Equal(t, "UCxxxxxxxxxxxxxxxxxxxxxx", resp["description"])
	assert.Len(t, resp["items"], 1)
}

func TestTranscript(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(t, http.MethodGet, "/api/youtube/transcript", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Video ID is required", errorOf(t, rec))

	rec = h.do(t, http.MethodGet, "/api/youtube/transcript?videoId=abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, youtube.Transcript{Content: "hello\nworld", VideoID: "abc"}, decode[youtube.Transcript](t, rec))

	h.transcripts.err = fmt.Errorf("%w: no caption tracks", youtube.ErrTranscriptUnavailable)
	rec = h.do(t, http.MethodGet, "/api/youtube/transcript?videoId=abc", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch video transcript: transcript unavailable: no caption tracks", errorOf(t, rec))
}

func TestArticleFromSnapshot(t *testing.T) {
	h := newHarness(t, Options{})
	feed := sampleFeed("https://example.com/feed", 3)
	require.NoError(t, h.store.SaveSnapshot(context.Background(), feed, time.Now()))

	rec := h.do(t, http.MethodGet, "/api/article?url=https://example.com/feed&id="+feed.Items[1].ID+"&font=font-hack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[articleResponse](t, rec)
	assert.Equal(t, "Item 1", resp.Title)
	assert.Equal(t, feed.Items[1].ID, resp.ID)
	assert.Equal(t, 1, resp.Index)
	assert.Contains(t, resp.Content, "font-hack")
	assert.Contains(t, resp.Content, `data-href="https://other.example/x"`)
	assert.Contains(t, resp.Content, "window.handleArticleLink(event)")
	assert.Zero(t, h.feeds.callCount(), "snapshot hit must not refetch")
}

func TestArticleFallsBackToFetch(t *testing.T) {
	h := newHarness(t, Options{})
	h.feeds.feeds["https://example.com/feed"] = sampleFeed("https://example.com/feed", 2)

	rec := h.do(t, http.MethodGet, "/api/article?url=https://example.com/feed&id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Item 1", decode[articleResponse](t, rec).Title)
	assert.Equal(t, 1, h.feeds.callCount())
	assert.True(t, h.store.has("https://example.com/feed"))

	rec = h.do(t, http.MethodGet, "/api/article?url=https://example.com/feed&id=does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Article not found", errorOf(t, rec))

	rec = h.do(t, http.MethodGet, "/api/article?url=https://example.com/feed", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArticleVideo(t *testing.T) {
	h := newHarness(t, Options{})
	h.channels.feed = &model.Feed{Title: "Chan", Items: []model.FeedItem{{
		ID: "v1", Title: "Video", Link: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		IsVideo: true, VideoID: "dQw4w9WgXcQ", Description: "desc",
	}}}

	rec := h.do(t, http.MethodGet, "/api/article?url=https://www.youtube.com/@x&id=v1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[articleResponse](t, rec)
	assert.True(t, resp.IsVideo)
	assert.Contains(t, resp.Content, "https://www.youtube.com/embed/dQw4w9WgXcQ")
	assert.Contains(t, resp.Content, "world")

	h.transcripts.err = youtube.ErrTranscriptUnavailable
	rec = h.do(t, http.MethodGet, "/api/article?url=https://www.youtube.com/@x&id=v1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[articleResponse](t, rec).Content, "desc")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/article?url=https://www.youtube.com/@x&id=v1", nil).WithContext(ctx)
	rec = httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Request superseded", errorOf(t, rec))
}

func TestExternalArticle(t *testing.T) {
	h := newHarness(t, Options{})
	h.extractor.res = &extract.Result{Title: "", Content: "<h2>Hi</h2><script>x()</script>", URL: "https://example.com/final"}

	rec := h.do(t, http.MethodGet, "/api/article/external?url=https://example.com/a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	art := decode[model.Article](t, rec)
	assert.Equal(t, "External Article", art.Title)
	assert.Equal(t, "https://example.com/final", art.Link)
	assert.Contains(t, art.Content, "text-2xl")
	assert.NotContains(t, art.Content, "script")

	h.extractor.err = errors.New("boom")
	rec = h.do(t, http.MethodGet, "/api/article/external?url=https://example.com/a", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch article", errorOf(t, rec))

	h.extractor.err = extract.ErrInvalidURL
	rec = h.do(t, http.MethodGet, "/api/article/external?url=ftp://example.com/a", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid target URL", errorOf(t, rec))
}

func TestRenderEndpoint(t *testing.T) {
	h := newHarness(t, Options{})
	rec := h.do(t, http.MethodPost, "/api/render", map[string]any{
		"html": `<p>x</p><a href="https://example.com">y</a>`, "font": "nope",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]string](t, rec)
	assert.Contains(t, resp["html"], "font-jetbrains")
	assert.Contains(t, resp["html"], `href="https://example.com"`)
	assert.Equal(t, "font-jetbrains", resp["font"])
}

func TestRenderEndpointIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{})
	src := `<ul><li>one</li></ul><table><tr><td>v</td></tr></table>` +
		`<p><a href="https://example.com/x">l</a></p>`

	render := func(in string) string {
		rec := h.do(t, http.MethodPost, "/api/render", map[string]any{
			"html": in, "font": "font-hack", "rewriteLinks": true,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		return decode[map[string]string](t, rec)["html"]
	}
	once := render(src)
	twice := render(once)
	assert.Equal(t, once, twice)
	assert.Equal(t, 1, strings.Count(twice, `data-href="https://example.com/x"`))
	assert.Contains(t, twice, ">l</a>")
	assert.Equal(t, 1, strings.Count(twice, "<table"))
	assert.Equal(t, 1, strings.Count(twice, `class="flex-1"`))
}

func TestSummarize(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(t, http.MethodPost, "/api/summarize", llm.SummarizeRequest{Title: "t", Content: "c"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, llm.MissingKeyMessage, errorOf(t, rec))

	h.llm.summary = &llm.Summary{Markdown: "**ok**", HTML: "<p><strong>ok</strong></p>"}
	rec = h.do(t, http.MethodPost, "/api/summarize", llm.SummarizeRequest{Title: "t", Content: "c", APIKey: "k"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "**ok**", decode[llm.Summary](t, rec).Markdown)

	h.llm.summary, h.llm.err = nil, llm.ErrEmptyResponse
	rec = h.do(t, http.MethodPost, "/api/summarize", llm.SummarizeRequest{APIKey: "k"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to generate summary", errorOf(t, rec))
}

func TestChat(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(t, http.MethodPost, "/api/chat", llm.ChatRequest{Input: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, llm.MissingKeyMessage, errorOf(t, rec))

	h.llm.chat = &llm.ChatResult{Reply: "hello", Display: []model.ChatMessage{{Role: model.RoleUser, Content: "hi"}}}
	rec = h.do(t, http.MethodPost, "/api/chat", llm.ChatRequest{Input: "hi", APIKey: "k"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", decode[map[string]any](t, rec)["reply"])

	h.llm.chat, h.llm.err = nil, errors.New("gateway down")
	rec = h.do(t, http.MethodPost, "/api/chat", llm.ChatRequest{Input: "hi", APIKey: "k"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to get chat response", errorOf(t, rec))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestModels(t *testing.T) {
	h := newHarness(t, Options{})
	h.llm.models = []string{"a/b", "c/d"}

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	req.Header.Set("Authorization", "Bearer k")
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a/b", "c/d"}, decode[map[string][]string](t, rec)["models"])
}

func TestResolveFeeds(t *testing.T) {
	h := newHarness(t, Options{FetchConcurrency: 2})
	h.feeds.feeds["https://example.com/feed"] = sampleFeed("https://example.com/feed", 1)
	h.channels.feed = &model.Feed{Title: "Chan", Description: "UCid"}

	rec := h.do(t, http.MethodPost, "/api/feeds/resolve", map[string]any{
		"urls": []string{"https://example.com/feed", " ", "https://www.youtube.com/@x", "https://example.com/missing"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Sources []model.FeedSource `json:"sources"`
		Errors  map[string]string  `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, model.KindRSS, resp.Sources[0].Type)
	assert.Equal(t, model.KindYouTube, resp.Sources[1].Type)
	assert.Contains(t, resp.Errors, "https://example.com/missing")

	rec = h.do(t, http.MethodPost, "/api/feeds/resolve", map[string]any{"urls": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOPMLRoundTrip(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(t, http.MethodPost, "/api/opml/export", map[string]any{
		"sources": []model.FeedSource{
			{URL: "https://example.com/feed", Title: "Example", Type: model.KindRSS, Category: "Tech"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	doc := rec.Body.Bytes()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("opml", "feeds.opml")
	require.NoError(t, err)
	_, err = part.Write(doc)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/opml/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[map[string][]model.FeedSource](t, rr)
	require.Len(t, resp["sources"], 1)
	assert.Equal(t, "Tech", resp["sources"][0].Category)

	rec = h.do(t, http.MethodPost, "/api/opml/import", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", errorOf(t, rec))
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, Options{RateLimitRPS: 0.5, RateLimitBurst: 1})
	h.feeds.feeds["https://example.com/feed"] = sampleFeed("https://example.com/feed", 1)

	rec := h.do(t, http.MethodGet, "/api/rss?url=https://example.com/feed", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/rss?url=https://example.com/feed", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	// Health checks bypass the limiter.
	rec = h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	h := newHarness(t, Options{RateLimitRPS: 0.5, RateLimitBurst: 1})
	h.feeds.feeds["https://example.com/feed"] = sampleFeed("https://example.com/feed", 1)

	for i, forwarded := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/rss?url=https://example.com/feed", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.srv.Handler().ServeHTTP(rec, req)
		if i == 0 {
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	h := newHarness(t, Options{MaxBodyBytes: 16})
	rec := h.do(t, http.MethodPost, "/api/render", map[string]string{"html": strings.Repeat("x", 64)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSupersededView(t *testing.T) {
	h := newHarness(t, Options{})
	h.feeds.block = true
	h.feeds.started = make(chan struct{}, 1)

	first := httptest.NewRecorder()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		req := httptest.NewRequest(http.MethodGet, "/api/rss?url=https://example.com/feed", nil)
		req.Header.Set(ViewHeader, "pane")
		h.srv.Handler().ServeHTTP(first, req)
	}()
	<-h.feeds.started

	h.feeds.mu.Lock()
	h.feeds.block = false
	h.feeds.mu.Unlock()
	h.feeds.feeds["https://example.com/other"] = sampleFeed("https://example.com/other", 1)

	req := httptest.NewRequest(http.MethodGet, "/api/rss?url=https://example.com/other", nil)
	req.Header.Set(ViewHeader, "pane")
	second := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(second, req)

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("first request was not cancelled")
	}
	assert.Equal(t, http.StatusConflict, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Zero(t, h.srv.tracker.Len())
}

func TestHealth(t *testing.T) {
	h := newHarness(t, Options{})
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "ok", "store": "memory"}, decode[map[string]string](t, rec))
}

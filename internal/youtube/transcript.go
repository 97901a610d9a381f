package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bryan-buckman/termread/internal/fetch"
	"github.com/bryan-buckman/termread/internal/metrics"
)

// ErrTranscriptUnavailable is returned when no caption text could be loaded.
var ErrTranscriptUnavailable = errors.New("transcript unavailable")

const (
	// DefaultBaseURL is the origin watch pages and the player API live on.
	DefaultBaseURL = "https://www.youtube.com"

	androidVersion = "20.10.38"
	androidUA      = "com.google.android.youtube/" + androidVersion + " (Linux; U; Android 11) gzip"

	playerResponseMarker = "ytInitialPlayerResponse = "
)

// Transcript is the flattened caption text of a video.
type Transcript struct {
	Content string `json:"content"`
	VideoID string `json:"videoId"`
}

// Transcripts loads caption tracks for videos.
type Transcripts struct {
	client *fetch.Client
	// BaseURL is the YouTube origin; tests point it at a local server.
	BaseURL string
	// Langs orders the preferred caption languages.
	Langs []string
}

// NewTranscripts creates a transcript loader preferring English captions.
func NewTranscripts(client *fetch.Client) *Transcripts {
	return &Transcripts{client: client, BaseURL: DefaultBaseURL, Langs: []string{"en"}}
}

// Fetch scrapes the watch page for caption tracks and falls back to the
// Innertube ANDROID player endpoint when the page has none.
func (t *Transcripts) Fetch(ctx context.Context, videoID string) (tr *Transcript, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.KindTranscript, start, err) }()

	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, fmt.Errorf("%w: empty video id", ErrTranscriptUnavailable)
	}

	text, scrapeErr := t.viaWatchPage(ctx, videoID)
	if scrapeErr != nil {
		slog.Warn("youtube: watch page scrape failed, trying player",
			slog.String("id", videoID), slog.Any("err", scrapeErr))
		var playerErr error
		text, playerErr = t.viaPlayer(ctx, videoID)
		if playerErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrTranscriptUnavailable, playerErr)
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty transcript", ErrTranscriptUnavailable)
	}
	return &Transcript{Content: text, VideoID: videoID}, nil
}

type playerResponse struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

func (p *playerResponse) tracks() ([]captionTrack, error) {
	if p.Captions == nil || len(p.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks) == 0 {
		if p.PlayabilityStatus != nil && p.PlayabilityStatus.Reason != "" {
			return nil, fmt.Errorf("captions unavailable: %s", p.PlayabilityStatus.Reason)
		}
		return nil, errors.New("no caption tracks")
	}
	return p.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, nil
}

func (t *Transcripts) viaWatchPage(ctx context.Context, videoID string) (string, error) {
	watchURL := strings.TrimRight(t.BaseURL, "/") + "/watch?v=" + url.QueryEscape(videoID)
	resp, err := t.client.Get(ctx, watchURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return "", fmt.Errorf("watch page: %w", err)
	}

	idx := bytes.Index(resp.Body, []byte(playerResponseMarker))
	if idx < 0 {
		return "", errors.New("ytInitialPlayerResponse not found in watch page")
	}
	data := extractJSON(resp.Body[idx+len(playerResponseMarker):])
	if data == nil {
		return "", errors.New("malformed ytInitialPlayerResponse")
	}

	var pr playerResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return "", fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	tracks, err := pr.tracks()
	if err != nil {
		return "", err
	}
	return t.timedText(ctx, pickTrack(tracks, t.Langs))
}

type playerRequest struct {
	VideoID string `json:"videoId"`
	Context struct {
		Client struct {
			ClientName        string `json:"clientName"`
			ClientVersion     string `json:"clientVersion"`
			AndroidSdkVersion int    `json:"androidSdkVersion"`
			Hl                string `json:"hl"`
			Gl                string `json:"gl"`
		} `json:"client"`
	} `json:"context"`
	RacyCheckOk    bool `json:"racyCheckOk"`
	ContentCheckOk bool `json:"contentCheckOk"`
}

func (t *Transcripts) viaPlayer(ctx context.Context, videoID string) (string, error) {
	req := playerRequest{VideoID: videoID, RacyCheckOk: true, ContentCheckOk: true}
	req.Context.Client.ClientName = "ANDROID"
	req.Context.Client.ClientVersion = androidVersion
	req.Context.Client.AndroidSdkVersion = 30
	req.Context.Client.Hl = "en"
	req.Context.Client.Gl = "US"

	endpoint := strings.TrimRight(t.BaseURL, "/") + "/youtubei/v1/player?prettyPrint=false"
	resp, err := t.client.PostJSON(ctx, endpoint, req, map[string]string{
		"User-Agent":               androidUA,
		"X-Youtube-Client-Name":    "3",
		"X-Youtube-Client-Version": androidVersion,
	})
	if err != nil {
		return "", fmt.Errorf("android player: %w", err)
	}

	var pr playerResponse
	if err := json.Unmarshal(resp.Body, &pr); err != nil {
		return "", fmt.Errorf("decode player: %w", err)
	}
	tracks, err := pr.tracks()
	if err != nil {
		return "", err
	}
	return t.timedText(ctx, pickTrack(tracks, t.Langs))
}

// needsPoToken reports whether a track URL only works with a browser
// proof-of-origin token.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickTrack prefers a manual track in a preferred language, then any track
// in a preferred language, then any English track, then the first one.
// Tracks that need a PO token are skipped unless nothing else is offered.
func pickTrack(tracks []captionTrack, langs []string) captionTrack {
	usable := make([]captionTrack, 0, len(tracks))
	for _, tr := range tracks {
		if !needsPoToken(tr.BaseURL) {
			usable = append(usable, tr)
		}
	}
	if len(usable) > 0 {
		tracks = usable
	}
	for _, lang := range langs {
		for _, tr := range tracks {
			if tr.LanguageCode == lang && tr.Kind != "asr" {
				return tr
			}
		}
	}
	for _, lang := range langs {
		for _, tr := range tracks {
			if tr.LanguageCode == lang {
				return tr
			}
		}
	}
	for _, tr := range tracks {
		if strings.HasPrefix(tr.LanguageCode, "en") {
			return tr
		}
	}
	return tracks[0]
}

type timedText struct {
	Lines []struct {
		Text string `xml:",chardata"`
	} `xml:"text"`
	Body struct {
		Paras []struct {
			Text string `xml:",chardata"`
			Segs []struct {
				Text string `xml:",chardata"`
			} `xml:"s"`
		} `xml:"p"`
	} `xml:"body"`
}

func (t *Transcripts) timedText(ctx context.Context, track captionTrack) (string, error) {
	trackURL, err := t.resolve(track.BaseURL)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Get(ctx, trackURL, "")
	if err != nil {
		return "", fmt.Errorf("fetch timedtext: %w", err)
	}
	return parseTimedText(resp.Body)
}

func (t *Transcripts) resolve(ref string) (string, error) {
	base, err := url.Parse(t.BaseURL)
	if err != nil {
		return "", err
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("caption url: %w", err)
	}
	return u.String(), nil
}

func parseTimedText(body []byte) (string, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("parse timedtext XML: %w", err)
	}

	var lines []string
	add := func(s string) {
		s = strings.TrimSpace(html.UnescapeString(s))
		if s != "" {
			lines = append(lines, s)
		}
	}
	for _, l := range tt.Lines {
		add(l.Text)
	}
	for _, p := range tt.Body.Paras {
		if len(p.Segs) == 0 {
			add(p.Text)
			continue
		}
		var sb strings.Builder
		for _, s := range p.Segs {
			sb.WriteString(s.Text)
		}
		add(sb.String())
	}
	return strings.Join(lines, "\n"), nil
}

// extractJSON returns the balanced object at the start of b.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

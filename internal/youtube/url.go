// Package youtube adapts YouTube channels to feeds and fetches transcripts.
package youtube

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
)

var (
	videoIDRE   = regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})(?:\?|&|$)`)
	channelIDRE = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)
	channelPath = regexp.MustCompile(`/channel/(UC[0-9A-Za-z_-]{22})(?:[/?#]|$)`)
)

// IsYouTubeURL reports whether raw points at youtube.com or youtu.be. The
// scheme may be omitted.
func IsYouTubeURL(raw string) bool {
	u, err := parseLoose(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") ||
		host == "youtu.be" || host == "www.youtu.be"
}

// ExtractVideoID returns the 11-character video identifier found after
// "v=" or a path slash and terminated by "?", "&" or the end of the link.
func ExtractVideoID(link string) (string, bool) {
	m := videoIDRE.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsChannelID reports whether s has the shape of a canonical channel id.
func IsChannelID(s string) bool {
	return channelIDRE.MatchString(s)
}

// ChannelFeedURL is the video feed of a channel.
func ChannelFeedURL(base, channelID string) string {
	return strings.TrimRight(base, "/") + "?channel_id=" + url.QueryEscape(channelID)
}

// VideoArticleHTML embeds a video player followed by its transcript.
func VideoArticleHTML(videoID, transcript string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<div class="w-full h-[400px]"><iframe src="https://www.youtube.com/embed/%s" frameborder="0" `+
		`allow="accelerometer; autoplay; clipboard-write; encrypted-media; gyroscope; picture-in-picture" allowfullscreen `+
		`class="rounded-lg shadow-lg w-full h-full"></iframe></div>`, url.PathEscape(videoID))
	sb.WriteString(`<div class="transcript">`)
	for _, line := range strings.Split(transcript, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			sb.WriteString("<p>")
			sb.WriteString(html.EscapeString(line))
			sb.WriteString("</p>")
		}
	}
	sb.WriteString("</div>")
	return sb.String()
}

func parseLoose(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return url.Parse(raw)
}

// Package opml handles importing and exporting OPML files.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bryan-buckman/termread/internal/model"
	"github.com/bryan-buckman/termread/internal/youtube"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (folder or feed).
type Outline struct {
	Text        string    `xml:"text,attr"`
	Title       string    `xml:"title,attr,omitempty"`
	Type        string    `xml:"type,attr,omitempty"`
	Description string    `xml:"description,attr,omitempty"`
	XMLURL      string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL     string    `xml:"htmlUrl,attr,omitempty"`
	Outlines    []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML document and returns its feeds in document order.
// Nested folder names are joined with "/" into the Category.
func Parse(r io.Reader) ([]model.FeedSource, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	sources := []model.FeedSource{}
	seen := make(map[string]bool)
	var walk func(outlines []Outline, path []string)
	walk = func(outlines []Outline, path []string) {
		for _, o := range outlines {
			if u := strings.TrimSpace(o.XMLURL); u != "" {
				if seen[u] {
					continue
				}
				seen[u] = true
				title := o.Title
				if title == "" {
					title = o.Text
				}
				if title == "" {
					title = u
				}
				kind := model.KindRSS
				if strings.EqualFold(o.Type, string(model.KindYouTube)) || youtube.IsYouTubeURL(u) {
					kind = model.KindYouTube
				}
				sources = append(sources, model.FeedSource{
					URL:         u,
					Title:       title,
					Description: o.Description,
					Type:        kind,
					Category:    strings.Join(path, "/"),
				})
			} else if len(o.Outlines) > 0 {
				name := o.Text
				if name == "" {
					name = o.Title
				}
				walk(o.Outlines, append(path[:len(path):len(path)], name))
			}
		}
	}
	walk(doc.Body.Outlines, nil)
	return sources, nil
}

// Export generates an OPML document. Sources without a category sit at the
// top level; the rest are grouped into one folder per category, in order of
// first appearance.
func Export(title string, sources []model.FeedSource) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
	}

	folders := make(map[string]int)
	var root []Outline
	for _, s := range sources {
		o := Outline{
			Text:        s.Title,
			Title:       s.Title,
			Type:        "rss",
			Description: s.Description,
			XMLURL:      s.URL,
		}
		if s.Category == "" {
			root = append(root, o)
			continue
		}
		idx, ok := folders[s.Category]
		if !ok {
			idx = len(root)
			folders[s.Category] = idx
			root = append(root, Outline{Text: s.Category, Title: s.Category})
		}
		root[idx].Outlines = append(root[idx].Outlines, o)
	}
	doc.Body.Outlines = root

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}

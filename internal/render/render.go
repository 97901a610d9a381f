// Package render turns article markup into the reader's terminal styling.
package render

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultFont is used when no or an unknown font is requested.
const DefaultFont = "font-jetbrains"

var fonts = []string{
	"font-jetbrains",
	"font-roboto-mono",
	"font-source-code",
	"font-fira-code",
	"font-ibm-plex",
	"font-space-mono",
	"font-ubuntu-mono",
	"font-anonymous",
	"font-hack",
	"font-inconsolata",
}

// Fonts lists the supported font classes.
func Fonts() []string {
	return slices.Clone(fonts)
}

// NormalizeFont maps unknown fonts to DefaultFont.
func NormalizeFont(font string) string {
	if slices.Contains(fonts, font) {
		return font
	}
	return DefaultFont
}

var tagClasses = map[string]string{
	"h2":         "text-2xl font-bold mt-12 mb-6 text-primary tracking-wider",
	"h3":         "text-xl font-bold mt-8 mb-4 text-primary/90 tracking-wide",
	"p":          "leading-relaxed mb-6 text-primary/70",
	"blockquote": "border-l-4 border-primary pl-6 italic my-8 text-primary/60 bg-primary/5 p-4 rounded",
	"ul":         "space-y-3 my-6 border border-primary/20 rounded-lg p-4 bg-background/50 list-disc pl-6",
	"ol":         "space-y-3 my-6 list-decimal counter-reset-item border border-primary/20 rounded-lg p-4 bg-background/50 pl-6",
	"li":         "flex gap-3 items-start group",
	"img":        "rounded-xl shadow-primary/30 my-10 w-full max-w-full h-auto border border-primary/30 object-cover",
	"pre":        "bg-background/50 border border-primary/30 rounded-lg p-4 my-6 overflow-x-auto whitespace-pre-wrap break-words text-sm text-primary/70",
	"code":       "px-1 py-0.5 bg-primary/10 rounded text-sm font-mono text-primary/80",
	"table":      "w-full border-collapse text-primary/70 table-auto",
	"th":         "p-3 text-left border-b border-primary/30 font-medium text-primary bg-primary/10",
	"td":         "p-3 border-b border-primary/10 text-primary/80",
	"a":          "text-primary hover:underline font-medium",
	"hr":         "my-6 border-primary/20",
}

var fontTags = []string{"h2", "h3", "p", "pre", "table", "th", "td"}

const (
	bulletClass    = "w-2 h-2 rounded-full bg-primary/70 mt-2"
	itemBodyClass  = "flex-1"
	tableWrapClass = "overflow-x-auto max-w-full my-6 border border-primary/30 rounded-lg bg-background/50"
	linkHandler    = "window.handleArticleLink(event)"
)

// Options controls Render.
type Options struct {
	Font string
	// RewriteLinks routes absolute links through the client's link handler.
	RewriteLinks bool
}

// Render applies the terminal classes to an HTML fragment. Rendering its own
// output again yields the same markup.
func Render(src string, opts Options) (string, error) {
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(src), &html.Node{
		Type: html.ElementNode, Data: "body", DataAtom: atom.Body,
	})
	if err != nil {
		return "", fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	doc := goquery.NewDocumentFromNode(root)

	font := NormalizeFont(opts.Font)
	for tag, classes := range tagClasses {
		doc.Find(tag).AddClass(strings.Fields(classes)...)
	}
	for _, tag := range fontTags {
		doc.Find(tag).RemoveClass(fonts...).AddClass(font)
	}

	doc.Find("img").SetAttr("loading", "lazy")
	doc.Find("li").Each(func(_ int, s *goquery.Selection) { wrapListItem(s.Get(0)) })
	doc.Find("table").Each(func(_ int, s *goquery.Selection) { wrapTable(s.Get(0)) })
	if opts.RewriteLinks {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) { rewriteLink(s) })
	}

	return doc.Html()
}

func rewriteLink(s *goquery.Selection) {
	href, _ := s.Attr("href")
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}
	s.SetAttr("data-href", href)
	s.RemoveAttr("href")
	s.SetAttr("onclick", linkHandler)
}

func wrapListItem(li *html.Node) {
	if isWrappedItem(li) {
		return
	}
	body := newElement(atom.Span, itemBodyClass)
	for c := li.FirstChild; c != nil; {
		next := c.NextSibling
		li.RemoveChild(c)
		body.AppendChild(c)
		c = next
	}
	li.AppendChild(newElement(atom.Span, bulletClass))
	li.AppendChild(body)
}

func isWrappedItem(li *html.Node) bool {
	var elems []*html.Node
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			elems = append(elems, c)
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return false
			}
		}
	}
	return len(elems) == 2 &&
		elems[0].DataAtom == atom.Span && classOf(elems[0]) == bulletClass &&
		elems[1].DataAtom == atom.Span && classOf(elems[1]) == itemBodyClass
}

func wrapTable(table *html.Node) {
	parent := table.Parent
	if parent == nil {
		return
	}
	if parent.DataAtom == atom.Div && classOf(parent) == tableWrapClass {
		return
	}
	wrap := newElement(atom.Div, tableWrapClass)
	parent.InsertBefore(wrap, table)
	parent.RemoveChild(table)
	wrap.AppendChild(table)
}

func newElement(a atom.Atom, class string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     a.String(),
		DataAtom: a,
		Attr:     []html.Attribute{{Key: "class", Val: class}},
	}
}

func classOf(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "class" {
			return a.Val
		}
	}
	return ""
}

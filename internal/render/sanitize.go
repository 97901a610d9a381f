package render

import (
	"regexp"
	"slices"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("article", "section", "header", "footer", "figure", "figcaption",
		"div", "span", "p", "br", "hr", "h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "blockquote", "pre", "code", "b", "strong", "i", "em", "u",
		"table", "thead", "tbody", "tr", "th", "td", "a", "img")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.RequireNoFollowOnLinks(true)

	// Rendered output passes through again unchanged.
	p.AllowAttrs("class").Matching(renderedClasses()).Globally()
	p.AllowAttrs("rel").Matching(regexp.MustCompile(`^nofollow$`)).OnElements("a")
	p.AllowAttrs("data-href").Matching(regexp.MustCompile(`^https?://`)).OnElements("a")
	p.AllowAttrs("onclick").Matching(regexp.MustCompile(`^` + regexp.QuoteMeta(linkHandler) + `$`)).OnElements("a")
	p.AllowAttrs("loading").Matching(regexp.MustCompile(`^lazy$`)).OnElements("img")
	return p
}

// renderedClasses matches class attributes made only of tokens Render emits.
func renderedClasses() *regexp.Regexp {
	seen := make(map[string]bool)
	var tokens []string
	add := func(classes string) {
		for _, c := range strings.Fields(classes) {
			if !seen[c] {
				seen[c] = true
				tokens = append(tokens, regexp.QuoteMeta(c))
			}
		}
	}
	for _, classes := range tagClasses {
		add(classes)
	}
	add(strings.Join(fonts, " "))
	add(bulletClass)
	add(itemBodyClass)
	add(tableWrapClass)
	slices.Sort(tokens)
	alt := strings.Join(tokens, "|")
	return regexp.MustCompile(`^\s*(?:` + alt + `)(?:\s+(?:` + alt + `))*\s*$`)
}

// Sanitize strips scripts, frames, event handlers and foreign styling from
// untrusted markup while keeping its structure.
func Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return policy.Sanitize(raw)
}

// Markdown converts model output to sanitized HTML.
func Markdown(md string) string {
	return Sanitize(string(blackfriday.Run([]byte(md))))
}

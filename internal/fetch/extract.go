package fetch

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/blogforge/blogforge/internal/helpers"
)

// noiseTags are structural elements dropped before text extraction.
var noiseTags = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"footer": true,
	"header": true,
}

// PlainText strips markup from an HTML fragment and returns the text
// normalized to non-empty trimmed lines. Feed entries carry their bodies as
// HTML fragments, so the crawler runs them through here.
func PlainText(fragment string) string {
	_, content := textFromHTML(fragment)
	return content
}

// textFromHTML walks the DOM, skips structural noise and returns the page
// title plus the remaining text normalized to non-empty trimmed lines.
func textFromHTML(rawHTML string) (title, content string) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", ""
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if noiseTags[n.Data] {
				return
			}
			if n.Data == "title" {
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return title, helpers.NormalizeLines(sb.String())
}

package linkhub

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/zombar/linkhub/models"
)

// bodyExcerptLimit is the hard character cap on the body text handed to the
// prompt. The cut is positional, not word-boundary aware.
const bodyExcerptLimit = 1000

// Extract pulls title, meta description/keywords, a bounded body excerpt and
// the og:image URL out of a fetched page. It never fails: missing elements
// yield empty strings.
func Extract(page *Page) models.PageMetadata {
	meta := models.PageMetadata{
		Title:       extractTitle(page.Doc),
		Description: metaContent(page.Doc, "description"),
		Keywords:    metaContent(page.Doc, "keywords"),
		BodyExcerpt: truncate(extractBodyText(page.Doc), bodyExcerptLimit),
	}

	if og := metaProperty(page.Doc, "og:image"); og != "" {
		if resolved, err := resolveURL(page.URL, og); err == nil {
			meta.ThumbnailURL = resolved
		}
	}

	return meta
}

// extractTitle returns the text of the document's <title> element.
func extractTitle(n *html.Node) string {
	var title string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = n.FirstChild.Data
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.TrimSpace(title)
}

// metaContent returns the content of the first <meta name=...> tag matching
// name (case-insensitive), or "".
func metaContent(n *html.Node, name string) string {
	return findMeta(n, "name", name)
}

// metaProperty returns the content of the first <meta property=...> tag
// matching property (case-insensitive), or "".
func metaProperty(n *html.Node, property string) string {
	return findMeta(n, "property", property)
}

func findMeta(n *html.Node, attrKey, attrVal string) string {
	var content string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if content != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			var key, val string
			for _, attr := range n.Attr {
				switch attr.Key {
				case attrKey:
					key = strings.ToLower(attr.Val)
				case "content":
					val = attr.Val
				}
			}
			if key == attrVal && val != "" {
				content = val
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return content
}

// extractBodyText returns the visible text of the document body with
// whitespace collapsed to single spaces. Script and style contents are
// skipped.
func extractBodyText(n *html.Node) string {
	body := findElement(n, "body")
	if body == nil {
		return ""
	}

	var buf strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				if buf.Len() > 0 {
					buf.WriteString(" ")
				}
				buf.WriteString(text)
			}
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(body)
	return buf.String()
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

// truncate cuts s to at most limit characters.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// resolveURL resolves a potentially relative URL against a base URL.
func resolveURL(base *url.URL, href string) (string, error) {
	parsed, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(parsed).String(), nil
}

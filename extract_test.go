package linkhub

import (
	"net/url"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func parsePage(t *testing.T, rawHTML, pageURL string) *Page {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		t.Fatalf("failed to parse test HTML: %v", err)
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		t.Fatalf("failed to parse test URL: %v", err)
	}
	return &Page{URL: u, Doc: doc}
}

func TestExtractFullPage(t *testing.T) {
	page := parsePage(t, `<html>
<head>
	<title>  Example Page  </title>
	<meta name="description" content="A page about examples">
	<meta name="keywords" content="example, test">
	<meta property="og:image" content="/images/cover.png">
</head>
<body>
	<h1>Hello</h1>
	<script>var ignored = true;</script>
	<style>.ignored { color: red; }</style>
	<p>Some   body
	text.</p>
</body>
</html>`, "https://example.com/articles/1")

	meta := Extract(page)

	if meta.Title != "Example Page" {
		t.Errorf("expected title 'Example Page', got %q", meta.Title)
	}
	if meta.Description != "A page about examples" {
		t.Errorf("unexpected description: %q", meta.Description)
	}
	if meta.Keywords != "example, test" {
		t.Errorf("unexpected keywords: %q", meta.Keywords)
	}
	if meta.BodyExcerpt != "Hello Some body text." {
		t.Errorf("unexpected body excerpt: %q", meta.BodyExcerpt)
	}
	if meta.ThumbnailURL != "https://example.com/images/cover.png" {
		t.Errorf("og:image not resolved against page URL: %q", meta.ThumbnailURL)
	}
}

func TestExtractMissingElementsYieldEmptyStrings(t *testing.T) {
	page := parsePage(t, `<html><body><p>just text</p></body></html>`, "https://example.com/")

	meta := Extract(page)

	if meta.Title != "" {
		t.Errorf("expected empty title, got %q", meta.Title)
	}
	if meta.Description != "" {
		t.Errorf("expected empty description, got %q", meta.Description)
	}
	if meta.Keywords != "" {
		t.Errorf("expected empty keywords, got %q", meta.Keywords)
	}
	if meta.ThumbnailURL != "" {
		t.Errorf("expected no thumbnail URL, got %q", meta.ThumbnailURL)
	}
}

func TestExtractBodyExcerptHardTruncation(t *testing.T) {
	longWord := strings.Repeat("a", 1500)
	page := parsePage(t, "<html><body><p>"+longWord+"</p></body></html>", "https://example.com/")

	meta := Extract(page)

	if len(meta.BodyExcerpt) != 1000 {
		t.Fatalf("expected excerpt of exactly 1000 characters, got %d", len(meta.BodyExcerpt))
	}
	// Positional cut, no word-boundary adjustment.
	if meta.BodyExcerpt != longWord[:1000] {
		t.Error("excerpt is not the first 1000 characters of the body text")
	}
}

func TestExtractMetaNameCaseInsensitive(t *testing.T) {
	page := parsePage(t, `<html><head>
	<meta name="Description" content="mixed case name">
</head><body></body></html>`, "https://example.com/")

	meta := Extract(page)

	if meta.Description != "mixed case name" {
		t.Errorf("expected case-insensitive meta name match, got %q", meta.Description)
	}
}

func TestExtractAbsoluteOgImageKeptAsIs(t *testing.T) {
	page := parsePage(t, `<html><head>
	<meta property="og:image" content="https://cdn.example.net/cover.jpg">
</head><body></body></html>`, "https://example.com/post")

	meta := Extract(page)

	if meta.ThumbnailURL != "https://cdn.example.net/cover.jpg" {
		t.Errorf("absolute og:image was altered: %q", meta.ThumbnailURL)
	}
}

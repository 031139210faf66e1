package linkhub

import (
	"strings"
	"testing"

	"github.com/zombar/linkhub/models"
)

func TestBuildPromptContainsMetadataAndCategories(t *testing.T) {
	meta := models.PageMetadata{
		Title:       "Go Blog",
		Description: "The official Go blog",
		Keywords:    "go, programming",
		BodyExcerpt: "Recent posts about Go",
	}
	categories := []models.Category{
		{ID: 1, Name: "Go"},
		{ID: 2, Name: "News"},
	}

	prompt := BuildPrompt(meta, "https://go.dev/blog", categories)

	for _, want := range []string{
		"Title: Go Blog",
		"Description: The official Go blog",
		"Keywords: go, programming",
		"Content: Recent posts about Go",
		"URL: https://go.dev/blog",
		"1: Go, 2: News",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptDemandsJSONShape(t *testing.T) {
	prompt := BuildPrompt(models.PageMetadata{}, "https://example.com", nil)

	for _, key := range []string{`"title"`, `"description"`, `"tags"`, `"suggestedCategory"`} {
		if !strings.Contains(prompt, key) {
			t.Errorf("prompt does not demand key %s", key)
		}
	}
	if !strings.Contains(prompt, "JSON object only") {
		t.Error("prompt does not forbid prose around the JSON")
	}
}

func TestFormatCategoriesOrder(t *testing.T) {
	got := formatCategories([]models.Category{
		{ID: 3, Name: "Tools"},
		{ID: 1, Name: "Go"},
	})
	// Catalog order is preserved, not re-sorted.
	if got != "3: Tools, 1: Go" {
		t.Errorf("unexpected serialization: %q", got)
	}
}

func TestFormatCategoriesEmpty(t *testing.T) {
	if got := formatCategories(nil); got != "" {
		t.Errorf("expected empty string for empty catalog, got %q", got)
	}
}

package models

import "time"

// AnalysisResult is the structured proposal produced by analyzing a URL.
// Every field is a suggestion: callers may override any of them before the
// result is persisted, and it is discarded after a single merge.
type AnalysisResult struct {
	Title             string   `json:"title,omitempty"`
	Description       string   `json:"description,omitempty"`
	Tags              []string `json:"tags"`
	SuggestedCategory *int64   `json:"suggestedCategory,omitempty"`
	ThumbnailURL      string   `json:"thumbnailUrl,omitempty"` // captured og:image, if any
}

// PageMetadata is the bundle extracted from a fetched page. Missing tags
// yield empty strings; it lives only for the duration of one analysis.
type PageMetadata struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Keywords     string `json:"keywords"`
	BodyExcerpt  string `json:"body_excerpt"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"` // resolved og:image URL
}

// Category is an entry in the category catalog.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Tag is a reusable label attached to bookmarks by exact name.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Bookmark is a stored link with its curated metadata.
type Bookmark struct {
	ID           int64     `json:"id"`
	CategoryID   int64     `json:"category_id"`
	URL          string    `json:"url"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Tags         []Tag     `json:"tags"`
}

// TagOutcome reports what happened to a single suggested tag during merge.
type TagOutcome string

const (
	TagAttached TagOutcome = "attached"
	TagSkipped  TagOutcome = "skipped"
)

// TagAttachment is the per-tag result of applying AI tag suggestions to a
// bookmark. Skipped entries carry the reason; none of them abort the merge.
type TagAttachment struct {
	Name    string     `json:"name"`
	Outcome TagOutcome `json:"outcome"`
	Reason  string     `json:"reason,omitempty"`
}

// Package linkhub implements the URL analysis pipeline: fetch a page, extract
// its metadata, ask the model to summarize/tag/categorize it, parse the reply
// and merge the proposal with caller-supplied bookmark fields.
package linkhub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/linkhub/gemini"
	"github.com/zombar/linkhub/models"
	"github.com/zombar/linkhub/slug"
)

// Config contains analysis pipeline configuration.
type Config struct {
	FetchTimeout      time.Duration
	GeminiBaseURL     string
	GeminiModel       string
	GeminiAPIKey      string
	GeminiTimeout     time.Duration
	MaxThumbnailBytes int64         // maximum og:image size to download
	ThumbnailTimeout  time.Duration // timeout for downloading the og:image
}

// DefaultConfig returns default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:      10 * time.Second,
		GeminiModel:       gemini.DefaultModel,
		GeminiTimeout:     60 * time.Second,
		MaxThumbnailBytes: 5 * 1024 * 1024,
		ThumbnailTimeout:  15 * time.Second,
	}
}

// CategoryCatalog is the read-only catalog the prompt is grounded on. The
// full catalog is read on every analysis so the model only suggests ids that
// existed at call time.
type CategoryCatalog interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
}

// TagStore upserts tags by exact name and links them to bookmarks.
// AttachTag fails when the pair already exists.
type TagStore interface {
	FindOrCreateTag(ctx context.Context, name string) (models.Tag, error)
	AttachTag(ctx context.Context, bookmarkID, tagID int64) error
}

// ThumbnailStore persists captured thumbnail bytes and returns a location.
type ThumbnailStore interface {
	SaveThumbnail(data []byte, key, contentType string) (string, error)
}

// Analyzer sequences the pipeline stages and owns the merge policy. It is
// stateless per call and safe for concurrent use.
type Analyzer struct {
	config  Config
	fetcher *Fetcher
	llm     *gemini.Client
	catalog CategoryCatalog
	tags    TagStore
	thumbs  ThumbnailStore // nil disables thumbnail capture
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates an Analyzer. thumbs may be nil if thumbnail capture is not
// wanted.
func New(config Config, catalog CategoryCatalog, tags TagStore, thumbs ThumbnailStore, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		config:  config,
		fetcher: NewFetcher(config.FetchTimeout),
		llm:     gemini.NewClient(config.GeminiBaseURL, config.GeminiModel, config.GeminiAPIKey, config.GeminiTimeout),
		catalog: catalog,
		tags:    tags,
		thumbs:  thumbs,
		logger:  logger,
		tracer:  otel.Tracer("linkhub/analyzer"),
	}
}

// Analyze runs fetch -> extract -> prompt -> generate -> parse for targetURL.
// The first failure is wrapped in a *StageError naming the stage; no partial
// result is ever returned.
func (a *Analyzer) Analyze(ctx context.Context, targetURL string) (*models.AnalysisResult, error) {
	analysisID := uuid.New().String()
	ctx, span := a.tracer.Start(ctx, "analyze",
		trace.WithAttributes(attribute.String("url", targetURL)))
	defer span.End()

	log := a.logger.With("analysis_id", analysisID, "url", targetURL)
	log.Info("analysis started")

	page, err := a.fetcher.Fetch(ctx, targetURL)
	if err != nil {
		return nil, &StageError{Stage: StageFetch, Err: err}
	}

	meta := Extract(page)

	categories, err := a.catalog.ListCategories(ctx)
	if err != nil {
		return nil, &StageError{Stage: StagePrompt, Err: fmt.Errorf("failed to load category catalog: %w", err)}
	}
	prompt := BuildPrompt(meta, targetURL, categories)

	raw, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, &StageError{Stage: StageLLM, Err: err}
	}

	result, err := ParseAnalysis(raw)
	if err != nil {
		log.Error("model reply not parseable", "error", err, "reply_chars", len(raw))
		return nil, &StageError{Stage: StageParse, Err: err}
	}

	// Thumbnail capture is best-effort enrichment: a failure here must not
	// void an otherwise successful analysis.
	if a.thumbs != nil && meta.ThumbnailURL != "" {
		if location, err := a.captureThumbnail(ctx, meta.ThumbnailURL, meta.Title); err != nil {
			log.Warn("thumbnail capture failed", "thumbnail_url", meta.ThumbnailURL, "error", err)
		} else {
			result.ThumbnailURL = location
		}
	}

	log.Info("analysis complete",
		"suggested_tags", len(result.Tags),
		"has_category_suggestion", result.SuggestedCategory != nil)
	return result, nil
}

// captureThumbnail downloads the page's og:image with its own size and time
// bounds and stores it through the thumbnail store.
func (a *Analyzer) captureThumbnail(ctx context.Context, imageURL, title string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.ThumbnailTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", a.fetcher.userAgent)

	resp, err := a.fetcher.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if resp.ContentLength > a.config.MaxThumbnailBytes {
		return "", fmt.Errorf("thumbnail too large: %d bytes (max: %d)", resp.ContentLength, a.config.MaxThumbnailBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, a.config.MaxThumbnailBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read thumbnail data: %w", err)
	}
	if int64(len(data)) > a.config.MaxThumbnailBytes {
		return "", fmt.Errorf("thumbnail too large: exceeds %d bytes", a.config.MaxThumbnailBytes)
	}

	key := slug.FromPage(title, imageURL)
	if key == "" {
		key = uuid.New().String()
	}
	return a.thumbs.SaveThumbnail(data, key, resp.Header.Get("Content-Type"))
}

// UpdateRequest carries caller-supplied bookmark fields for an update. Nil
// means "leave unchanged"; for title and description an empty string is also
// treated as absent when merging with analysis output.
type UpdateRequest struct {
	URL          *string
	Title        *string
	Description  *string
	ThumbnailURL *string
	CategoryID   *int64
	Reanalyze    bool
}

// MergeUpdate reconciles caller-supplied fields with an analysis proposal.
// Caller values win; AI suggestions only fill fields the caller left empty.
// The category is never taken from the suggestion: the model's category is
// informational only, and category changes come exclusively from the caller's
// explicit CategoryID.
func MergeUpdate(req UpdateRequest, analysis *models.AnalysisResult) UpdateRequest {
	merged := req
	if emptyStr(req.Title) && analysis.Title != "" {
		title := analysis.Title
		merged.Title = &title
	}
	if emptyStr(req.Description) && analysis.Description != "" {
		description := analysis.Description
		merged.Description = &description
	}
	if emptyStr(req.ThumbnailURL) && analysis.ThumbnailURL != "" {
		thumbnail := analysis.ThumbnailURL
		merged.ThumbnailURL = &thumbnail
	}
	return merged
}

func emptyStr(s *string) bool {
	return s == nil || *s == ""
}

// ApplyTags appends AI-suggested tags to a bookmark: each name is upserted in
// the tag catalog and linked. Attaches are independent; one failure (such as
// the tag already being linked) is recorded and the rest still proceed. The
// returned outcomes are logged, never escalated.
func (a *Analyzer) ApplyTags(ctx context.Context, bookmarkID int64, tagNames []string) []models.TagAttachment {
	results := make([]models.TagAttachment, 0, len(tagNames))
	for _, name := range tagNames {
		tag, err := a.tags.FindOrCreateTag(ctx, name)
		if err != nil {
			a.logger.Warn("skipping suggested tag", "bookmark_id", bookmarkID, "tag", name, "error", err)
			results = append(results, models.TagAttachment{Name: name, Outcome: models.TagSkipped, Reason: err.Error()})
			continue
		}
		if err := a.tags.AttachTag(ctx, bookmarkID, tag.ID); err != nil {
			a.logger.Warn("skipping suggested tag", "bookmark_id", bookmarkID, "tag", name, "error", err)
			results = append(results, models.TagAttachment{Name: name, Outcome: models.TagSkipped, Reason: err.Error()})
			continue
		}
		results = append(results, models.TagAttachment{Name: name, Outcome: models.TagAttached})
	}
	return results
}

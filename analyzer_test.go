package linkhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zombar/linkhub/models"
)

type fakeCatalog struct {
	categories []models.Category
	err        error
}

func (f *fakeCatalog) ListCategories(ctx context.Context) ([]models.Category, error) {
	return f.categories, f.err
}

type fakeTagStore struct {
	nextID     int64
	tags       map[string]int64
	attached   map[string]bool
	upsertErr  map[string]error
	upsertCall int
}

func newFakeTagStore() *fakeTagStore {
	return &fakeTagStore{
		tags:      map[string]int64{},
		attached:  map[string]bool{},
		upsertErr: map[string]error{},
	}
}

func (f *fakeTagStore) FindOrCreateTag(ctx context.Context, name string) (models.Tag, error) {
	f.upsertCall++
	if err := f.upsertErr[name]; err != nil {
		return models.Tag{}, err
	}
	id, ok := f.tags[name]
	if !ok {
		f.nextID++
		id = f.nextID
		f.tags[name] = id
	}
	return models.Tag{ID: id, Name: name}, nil
}

func (f *fakeTagStore) AttachTag(ctx context.Context, bookmarkID, tagID int64) error {
	key := fmt.Sprintf("%d:%d", bookmarkID, tagID)
	if f.attached[key] {
		return fmt.Errorf("tag %d already attached to bookmark %d", tagID, bookmarkID)
	}
	f.attached[key] = true
	return nil
}

type fakeThumbStore struct {
	key         string
	contentType string
	size        int
	location    string
}

func (f *fakeThumbStore) SaveThumbnail(data []byte, key, contentType string) (string, error) {
	f.key = key
	f.contentType = contentType
	f.size = len(data)
	return f.location, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// geminiDouble serves the generateContent envelope wrapping replyText and
// counts how many calls it received.
func geminiDouble(t *testing.T, replyText string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		envelope := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": replyText}},
				}},
			},
		}
		json.NewEncoder(w).Encode(envelope)
	}))
}

func testConfig(llmURL string) Config {
	config := DefaultConfig()
	config.FetchTimeout = 5 * time.Second
	config.GeminiBaseURL = llmURL
	config.GeminiAPIKey = "test-key"
	config.GeminiTimeout = 5 * time.Second
	return config
}

func TestAnalyzeEndToEnd(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>
<head><title>Go Concurrency Patterns</title>
<meta name="description" content="Talks about goroutines and channels"></head>
<body>Concurrency is not parallelism.</body></html>`)
	}))
	defer page.Close()

	var llmCalls atomic.Int32
	llm := geminiDouble(t, `Here is my analysis: {"title":"Go Concurrency","description":"A talk about Go concurrency.","tags":["go","concurrency"],"suggestedCategory":1}`, &llmCalls)
	defer llm.Close()

	catalog := &fakeCatalog{categories: []models.Category{{ID: 1, Name: "Go"}}}
	analyzer := New(testConfig(llm.URL), catalog, newFakeTagStore(), nil, testLogger())

	result, err := analyzer.Analyze(context.Background(), page.URL)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if result.Title != "Go Concurrency" {
		t.Errorf("unexpected title: %q", result.Title)
	}
	if len(result.Tags) != 2 {
		t.Errorf("expected 2 tags, got %v", result.Tags)
	}
	if result.SuggestedCategory == nil || *result.SuggestedCategory != 1 {
		t.Errorf("expected suggested category 1, got %v", result.SuggestedCategory)
	}
	if got := llmCalls.Load(); got != 1 {
		t.Errorf("expected exactly one model call, got %d", got)
	}
}

func TestAnalyzeFetchFailureSkipsModel(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		fmt.Fprint(w, "<html><body>late</body></html>")
	}))
	defer page.Close()

	var llmCalls atomic.Int32
	llm := geminiDouble(t, "{}", &llmCalls)
	defer llm.Close()

	config := testConfig(llm.URL)
	config.FetchTimeout = 50 * time.Millisecond

	analyzer := New(config, &fakeCatalog{}, newFakeTagStore(), nil, testLogger())

	_, err := analyzer.Analyze(context.Background(), page.URL)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageFetch {
		t.Errorf("expected fetch stage error, got %v", err)
	}
	if !errors.Is(err, ErrFetchTimeout) {
		t.Errorf("expected ErrFetchTimeout through the wrap, got %v", err)
	}
	if got := llmCalls.Load(); got != 0 {
		t.Errorf("model must not be called when the fetch fails, got %d calls", got)
	}
}

func TestAnalyzeParseFailureIsStageTagged(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><head><title>x</title></head><body>y</body></html>")
	}))
	defer page.Close()

	var llmCalls atomic.Int32
	llm := geminiDouble(t, "I refuse to emit JSON today.", &llmCalls)
	defer llm.Close()

	analyzer := New(testConfig(llm.URL), &fakeCatalog{}, newFakeTagStore(), nil, testLogger())

	_, err := analyzer.Analyze(context.Background(), page.URL)

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageParse {
		t.Fatalf("expected parse stage error, got %v", err)
	}
	if !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON through the wrap, got %v", err)
	}
}

func TestAnalyzeCapturesThumbnail(t *testing.T) {
	image := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer image.Close()

	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>With Cover</title>
<meta property="og:image" content="%s/cover.png"></head>
<body>content</body></html>`, image.URL)
	}))
	defer page.Close()

	var llmCalls atomic.Int32
	llm := geminiDouble(t, `{"title":"t","description":"d","tags":["x"]}`, &llmCalls)
	defer llm.Close()

	thumbs := &fakeThumbStore{location: "thumbnails/2026/08/with-cover-abc123.png"}
	analyzer := New(testConfig(llm.URL), &fakeCatalog{}, newFakeTagStore(), thumbs, testLogger())

	result, err := analyzer.Analyze(context.Background(), page.URL)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if result.ThumbnailURL != thumbs.location {
		t.Errorf("expected thumbnail location %q, got %q", thumbs.location, result.ThumbnailURL)
	}
	if thumbs.contentType != "image/png" {
		t.Errorf("unexpected content type: %q", thumbs.contentType)
	}
	if thumbs.key != "with-cover" {
		t.Errorf("expected key derived from the page title, got %q", thumbs.key)
	}
}

func TestAnalyzeThumbnailFailureIsNotFatal(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>t</title>
<meta property="og:image" content="http://127.0.0.1:1/unreachable.png"></head>
<body>content</body></html>`)
	}))
	defer page.Close()

	var llmCalls atomic.Int32
	llm := geminiDouble(t, `{"title":"t","tags":["x"]}`, &llmCalls)
	defer llm.Close()

	analyzer := New(testConfig(llm.URL), &fakeCatalog{}, newFakeTagStore(), &fakeThumbStore{}, testLogger())

	result, err := analyzer.Analyze(context.Background(), page.URL)
	if err != nil {
		t.Fatalf("expected analysis to survive thumbnail failure, got %v", err)
	}
	if result.ThumbnailURL != "" {
		t.Errorf("expected no thumbnail, got %q", result.ThumbnailURL)
	}
}

func strPtr(s string) *string { return &s }

func TestMergeUpdateCallerWins(t *testing.T) {
	analysis := &models.AnalysisResult{
		Title:        "AI Title",
		Description:  "AI Description",
		ThumbnailURL: "ai-thumb.png",
	}

	merged := MergeUpdate(UpdateRequest{
		Title:       strPtr("My Title"),
		Description: strPtr(""),
	}, analysis)

	if merged.Title == nil || *merged.Title != "My Title" {
		t.Errorf("caller title must win, got %v", merged.Title)
	}
	// Empty caller string counts as absent and is filled from the analysis.
	if merged.Description == nil || *merged.Description != "AI Description" {
		t.Errorf("empty caller description should take the AI value, got %v", merged.Description)
	}
	if merged.ThumbnailURL == nil || *merged.ThumbnailURL != "ai-thumb.png" {
		t.Errorf("absent caller thumbnail should take the AI value, got %v", merged.ThumbnailURL)
	}
}

func TestMergeUpdateNeverAppliesSuggestedCategory(t *testing.T) {
	suggested := int64(7)
	analysis := &models.AnalysisResult{Title: "t", SuggestedCategory: &suggested}

	merged := MergeUpdate(UpdateRequest{}, analysis)
	if merged.CategoryID != nil {
		t.Errorf("AI category suggestion must never be applied, got %d", *merged.CategoryID)
	}

	callerCategory := int64(3)
	merged = MergeUpdate(UpdateRequest{CategoryID: &callerCategory}, analysis)
	if merged.CategoryID == nil || *merged.CategoryID != 3 {
		t.Errorf("caller category must pass through, got %v", merged.CategoryID)
	}
}

func TestMergeUpdateEmptyAnalysisLeavesFieldsAlone(t *testing.T) {
	merged := MergeUpdate(UpdateRequest{}, &models.AnalysisResult{})
	if merged.Title != nil || merged.Description != nil || merged.ThumbnailURL != nil {
		t.Errorf("nothing to merge should leave fields nil, got %+v", merged)
	}
}

func TestApplyTagsSwallowsPerTagFailures(t *testing.T) {
	tags := newFakeTagStore()
	tags.upsertErr["bad"] = errors.New("tag store unavailable")

	analyzer := &Analyzer{tags: tags, logger: testLogger()}

	results := analyzer.ApplyTags(context.Background(), 42, []string{"go", "bad", "web"})

	if len(results) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(results))
	}
	if results[0].Outcome != models.TagAttached || results[2].Outcome != models.TagAttached {
		t.Errorf("healthy tags should attach, got %+v", results)
	}
	if results[1].Outcome != models.TagSkipped || results[1].Reason == "" {
		t.Errorf("failing tag should be skipped with a reason, got %+v", results[1])
	}
}

func TestApplyTagsDuplicateAttachSkipped(t *testing.T) {
	tags := newFakeTagStore()
	analyzer := &Analyzer{tags: tags, logger: testLogger()}

	first := analyzer.ApplyTags(context.Background(), 1, []string{"go"})
	second := analyzer.ApplyTags(context.Background(), 1, []string{"go"})

	if first[0].Outcome != models.TagAttached {
		t.Errorf("first attach should succeed, got %+v", first[0])
	}
	if second[0].Outcome != models.TagSkipped {
		t.Errorf("re-attaching the same tag should be skipped, not fatal, got %+v", second[0])
	}
}

// Package api exposes the bookmark service over a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombar/linkhub"
	"github.com/zombar/linkhub/db"
	"github.com/zombar/linkhub/models"
)

// Store is the persistence surface the handlers need. *db.DB satisfies it.
type Store interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, name string) (models.Category, error)
	CategoryExists(ctx context.Context, id int64) (bool, error)
	FindOrCreateTag(ctx context.Context, name string) (models.Tag, error)
	ListTags(ctx context.Context) ([]models.Tag, error)
	AttachTag(ctx context.Context, bookmarkID, tagID int64) error
	DetachTag(ctx context.Context, bookmarkID, tagID int64) error
	CreateBookmark(ctx context.Context, b *models.Bookmark) (*models.Bookmark, error)
	GetBookmark(ctx context.Context, id int64) (*models.Bookmark, error)
	ListBookmarks(ctx context.Context, limit, offset int) ([]*models.Bookmark, error)
	SearchBookmarks(ctx context.Context, keyword string) ([]*models.Bookmark, error)
	ListBookmarksByCategory(ctx context.Context, categoryID int64) ([]*models.Bookmark, error)
	ListBookmarksByTag(ctx context.Context, tagID int64) ([]*models.Bookmark, error)
	UpdateBookmark(ctx context.Context, id int64, update db.BookmarkUpdate) (*models.Bookmark, error)
	DeleteBookmark(ctx context.Context, id int64) error
	CountBookmarks(ctx context.Context) (int, error)
}

// Analyzer runs the URL analysis pipeline. *linkhub.Analyzer satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, url string) (*models.AnalysisResult, error)
	ApplyTags(ctx context.Context, bookmarkID int64, tagNames []string) []models.TagAttachment
}

// Server represents the API server
type Server struct {
	store       Store
	analyzer    Analyzer
	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
	logger      *slog.Logger
}

// Config contains server configuration
type Config struct {
	Addr        string
	CORSEnabled bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		CORSEnabled: true,
	}
}

// NewServer wires store, analyzer and routes into a runnable server.
func NewServer(store Store, analyzer Analyzer, config Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:       store,
		analyzer:    analyzer,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
		logger:      logger,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.middleware(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // analysis calls out to the model
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/api/bookmarks", s.handleBookmarks)
	s.mux.HandleFunc("/api/bookmarks/search", s.handleSearch)
	s.mux.HandleFunc("/api/bookmarks/category/", s.handleByCategory) // /api/bookmarks/category/{id}
	s.mux.HandleFunc("/api/bookmarks/tag/", s.handleByTag)           // /api/bookmarks/tag/{id}
	s.mux.HandleFunc("/api/bookmarks/", s.handleBookmark)            // /api/bookmarks/{id} and /api/bookmarks/{id}/tags[/{tagId}]
	s.mux.HandleFunc("/api/categories", s.handleCategories)
	s.mux.HandleFunc("/api/tags", s.handleTags)
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// middleware applies CORS, request logging and request metrics to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		// Skip health checks to reduce noise.
		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			s.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start))
			httpRequestsTotal.WithLabelValues(r.Method, statusClass(rec.status)).Inc()
		}
	})
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.store.CountBookmarks(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"bookmarks": count,
		"time":      time.Now(),
	})
}

// AnalyzeRequest represents an analysis request
type AnalyzeRequest struct {
	URL string `json:"url"`
}

// handleAnalyze runs the analysis pipeline for a URL without persisting
// anything. The caller decides what to do with the proposal.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	start := time.Now()
	result, err := s.analyzer.Analyze(r.Context(), req.URL)
	observeAnalysis(start, err)
	if err != nil {
		s.logger.Error("analysis failed", "url", req.URL, "error", err)
		respondError(w, http.StatusBadGateway, fmt.Sprintf("analysis failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// CreateBookmarkRequest represents a bookmark creation request
type CreateBookmarkRequest struct {
	CategoryID   int64    `json:"categoryId"`
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ThumbnailURL string   `json:"thumbnailUrl"`
	Tags         []string `json:"tags"`
}

// handleBookmarks handles the bookmark collection: list and create
func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListBookmarks(w, r)
	case http.MethodPost:
		s.handleCreateBookmark(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		fmt.Sscanf(offsetStr, "%d", &offset)
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	bookmarks, err := s.store.ListBookmarks(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	count, _ := s.store.CountBookmarks(r.Context())

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"bookmarks": bookmarks,
		"total":     count,
		"limit":     limit,
		"offset":    offset,
	})
}

func (s *Server) handleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req CreateBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.CategoryID == 0 {
		respondError(w, http.StatusBadRequest, "categoryId is required")
		return
	}

	exists, err := s.store.CategoryExists(r.Context(), req.CategoryID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !exists {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown category: %d", req.CategoryID))
		return
	}

	bookmark := &models.Bookmark{
		CategoryID:   req.CategoryID,
		URL:          req.URL,
		Title:        req.Title,
		Description:  req.Description,
		ThumbnailURL: req.ThumbnailURL,
	}
	bookmark, err = s.store.CreateBookmark(r.Context(), bookmark)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create bookmark")
		return
	}

	var tagResults []models.TagAttachment
	if len(req.Tags) > 0 {
		tagResults = s.analyzer.ApplyTags(r.Context(), bookmark.ID, req.Tags)
		// Re-read so the response carries the tags that actually attached.
		if updated, err := s.store.GetBookmark(r.Context(), bookmark.ID); err == nil && updated != nil {
			bookmark = updated
		}
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"bookmark":   bookmark,
		"tagResults": tagResults,
	})
}

// handleSearch finds bookmarks by keyword over title and description
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	keyword := r.URL.Query().Get("keyword")
	if keyword == "" {
		respondError(w, http.StatusBadRequest, "keyword is required")
		return
	}

	bookmarks, err := s.store.SearchBookmarks(r.Context(), keyword)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"bookmarks": bookmarks,
		"count":     len(bookmarks),
	})
}

// handleByCategory lists bookmarks in a category
func (s *Server) handleByCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := parseID(strings.TrimPrefix(r.URL.Path, "/api/bookmarks/category/"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	bookmarks, err := s.store.ListBookmarksByCategory(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"bookmarks": bookmarks,
		"count":     len(bookmarks),
	})
}

// handleByTag lists bookmarks linked to a tag
func (s *Server) handleByTag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := parseID(strings.TrimPrefix(r.URL.Path, "/api/bookmarks/tag/"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tag id")
		return
	}

	bookmarks, err := s.store.ListBookmarksByTag(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"bookmarks": bookmarks,
		"count":     len(bookmarks),
	})
}

// handleBookmark routes /api/bookmarks/{id} and its /tags subresources
func (s *Server) handleBookmark(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/bookmarks/")
	if path == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	// /api/bookmarks/{id}/tags and /api/bookmarks/{id}/tags/{tagId}
	if idStr, rest, found := strings.Cut(path, "/tags"); found {
		id, err := parseID(idStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid bookmark id")
			return
		}
		switch {
		case rest == "" && r.Method == http.MethodPost:
			s.handleAddTag(w, r, id)
		case strings.HasPrefix(rest, "/") && r.Method == http.MethodDelete:
			tagID, err := parseID(strings.TrimPrefix(rest, "/"))
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid tag id")
				return
			}
			s.handleRemoveTag(w, r, id, tagID)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	id, err := parseID(path)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid bookmark id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetBookmark(w, r, id)
	case http.MethodPut:
		s.handleUpdateBookmark(w, r, id)
	case http.MethodDelete:
		s.handleDeleteBookmark(w, r, id)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGetBookmark(w http.ResponseWriter, r *http.Request, id int64) {
	bookmark, err := s.store.GetBookmark(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if bookmark == nil {
		respondError(w, http.StatusNotFound, "bookmark not found")
		return
	}

	respondJSON(w, http.StatusOK, bookmark)
}

// UpdateBookmarkRequest represents a bookmark update. Absent fields are left
// unchanged; reanalyze re-runs the pipeline and merges its proposal under the
// caller-wins policy.
type UpdateBookmarkRequest struct {
	URL          *string `json:"url"`
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	ThumbnailURL *string `json:"thumbnailUrl"`
	CategoryID   *int64  `json:"categoryId"`
	Reanalyze    bool    `json:"reanalyze"`
}

func (s *Server) handleUpdateBookmark(w http.ResponseWriter, r *http.Request, id int64) {
	bookmark, err := s.store.GetBookmark(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if bookmark == nil {
		respondError(w, http.StatusNotFound, "bookmark not found")
		return
	}

	var req UpdateBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CategoryID != nil {
		exists, err := s.store.CategoryExists(r.Context(), *req.CategoryID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}
		if !exists {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown category: %d", *req.CategoryID))
			return
		}
	}

	update := linkhub.UpdateRequest{
		URL:          req.URL,
		Title:        req.Title,
		Description:  req.Description,
		ThumbnailURL: req.ThumbnailURL,
		CategoryID:   req.CategoryID,
		Reanalyze:    req.Reanalyze,
	}

	// Reanalysis only runs when the caller supplies the URL alongside the flag.
	var tagResults []models.TagAttachment
	if req.Reanalyze && req.URL != nil && *req.URL != "" {
		targetURL := *req.URL

		start := time.Now()
		analysis, err := s.analyzer.Analyze(r.Context(), targetURL)
		observeAnalysis(start, err)
		if err != nil {
			s.logger.Error("reanalysis failed", "bookmark_id", id, "url", targetURL, "error", err)
			respondError(w, http.StatusBadGateway, fmt.Sprintf("analysis failed: %v", err))
			return
		}

		update = linkhub.MergeUpdate(update, analysis)
		tagResults = s.analyzer.ApplyTags(r.Context(), id, analysis.Tags)
	}

	bookmark, err = s.store.UpdateBookmark(r.Context(), id, db.BookmarkUpdate{
		URL:          update.URL,
		Title:        update.Title,
		Description:  update.Description,
		ThumbnailURL: update.ThumbnailURL,
		CategoryID:   update.CategoryID,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update bookmark")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"bookmark":   bookmark,
		"tagResults": tagResults,
	})
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.store.DeleteBookmark(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "no bookmark found") {
			respondError(w, http.StatusNotFound, "bookmark not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete bookmark")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "bookmark deleted successfully",
	})
}

// AddTagRequest represents a manual tag attach request
type AddTagRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request, bookmarkID int64) {
	bookmark, err := s.store.GetBookmark(r.Context(), bookmarkID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if bookmark == nil {
		respondError(w, http.StatusNotFound, "bookmark not found")
		return
	}

	var req AddTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	tag, err := s.store.FindOrCreateTag(r.Context(), req.Name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to upsert tag")
		return
	}
	if err := s.store.AttachTag(r.Context(), bookmarkID, tag.ID); err != nil {
		if strings.Contains(err.Error(), "already attached") {
			respondError(w, http.StatusConflict, "tag already attached")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to attach tag")
		return
	}

	respondJSON(w, http.StatusCreated, tag)
}

func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request, bookmarkID, tagID int64) {
	if err := s.store.DetachTag(r.Context(), bookmarkID, tagID); err != nil {
		if strings.Contains(err.Error(), "not attached") {
			respondError(w, http.StatusNotFound, "tag not attached")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to detach tag")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "tag removed successfully",
	})
}

// CreateCategoryRequest represents a category creation request
type CreateCategoryRequest struct {
	Name string `json:"name"`
}

// handleCategories lists and creates categories
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := s.store.ListCategories(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"categories": categories,
			"count":      len(categories),
		})
	case http.MethodPost:
		var req CreateCategoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			respondError(w, http.StatusBadRequest, "name is required")
			return
		}
		category, err := s.store.CreateCategory(r.Context(), req.Name)
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				respondError(w, http.StatusConflict, "category already exists")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to create category")
			return
		}
		respondJSON(w, http.StatusCreated, category)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTags lists all tags
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	tags, err := s.store.ListTags(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tags":  tags,
		"count": len(tags),
	})
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSuffix(raw, "/"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id: %q", raw)
	}
	return id, nil
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// Package db provides PostgreSQL persistence for categories, tags and
// bookmarks, including the read-only category catalog and the tag upsert the
// analysis pipeline depends on.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/zombar/linkhub/models"
)

// DB wraps the database connection and provides data access methods
type DB struct {
	conn *sql.DB
}

// Config contains database configuration
type Config struct {
	DSN string // PostgreSQL connection string
}

// New creates a new database connection and runs pending migrations
func New(config Config) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// ----- categories -----

// ListCategories returns the full category catalog in id order. The analyzer
// reads this on every call to ground the prompt.
func (db *DB) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, name FROM categories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// CreateCategory creates a category with a unique name
func (db *DB) CreateCategory(ctx context.Context, name string) (models.Category, error) {
	var c models.Category
	err := db.conn.QueryRowContext(ctx,
		"INSERT INTO categories (name) VALUES ($1) RETURNING id, name",
		name,
	).Scan(&c.ID, &c.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Category{}, fmt.Errorf("category already exists: %s", name)
		}
		return models.Category{}, fmt.Errorf("failed to create category: %w", err)
	}
	return c, nil
}

// CategoryExists reports whether a category id is present in the catalog
func (db *DB) CategoryExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)", id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check category existence: %w", err)
	}
	return exists, nil
}

// ----- tags -----

// FindOrCreateTag upserts a tag by exact name match and returns it.
// Idempotent: repeated calls with the same name return the same tag.
func (db *DB) FindOrCreateTag(ctx context.Context, name string) (models.Tag, error) {
	var t models.Tag
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO tags (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name
	`, name).Scan(&t.ID, &t.Name)
	if err != nil {
		return models.Tag{}, fmt.Errorf("failed to upsert tag: %w", err)
	}
	return t, nil
}

// ListTags returns all tags in id order
func (db *DB) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, name FROM tags ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}

	return tags, nil
}

// AttachTag links a tag to a bookmark. Fails when the link already exists;
// callers running the merge policy swallow that failure per tag.
func (db *DB) AttachTag(ctx context.Context, bookmarkID, tagID int64) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO bookmark_tags (bookmark_id, tag_id) VALUES ($1, $2)",
		bookmarkID, tagID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tag %d already attached to bookmark %d", tagID, bookmarkID)
		}
		return fmt.Errorf("failed to attach tag: %w", err)
	}
	return nil
}

// DetachTag removes a tag link from a bookmark
func (db *DB) DetachTag(ctx context.Context, bookmarkID, tagID int64) error {
	result, err := db.conn.ExecContext(ctx,
		"DELETE FROM bookmark_tags WHERE bookmark_id = $1 AND tag_id = $2",
		bookmarkID, tagID,
	)
	if err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("tag %d not attached to bookmark %d", tagID, bookmarkID)
	}

	return nil
}

// GetBookmarkTags returns the tags attached to a bookmark in attach order
func (db *DB) GetBookmarkTags(ctx context.Context, bookmarkID int64) ([]models.Tag, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT t.id, t.name FROM tags t
		JOIN bookmark_tags bt ON bt.tag_id = t.id
		WHERE bt.bookmark_id = $1
		ORDER BY bt.id
	`, bookmarkID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookmark tags: %w", err)
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}

	return tags, nil
}

// ----- bookmarks -----

const bookmarkColumns = "id, category_id, url, COALESCE(title, ''), COALESCE(description, ''), COALESCE(thumbnail_url, ''), created_at, updated_at"

// CreateBookmark inserts a bookmark and returns it with id and timestamps set
func (db *DB) CreateBookmark(ctx context.Context, b *models.Bookmark) (*models.Bookmark, error) {
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO bookmarks (category_id, url, title, description, thumbnail_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, b.CategoryID, b.URL, b.Title, b.Description, b.ThumbnailURL).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create bookmark: %w", err)
	}
	if b.Tags == nil {
		b.Tags = []models.Tag{}
	}
	return b, nil
}

// GetBookmark retrieves a bookmark with its tags; nil if absent
func (db *DB) GetBookmark(ctx context.Context, id int64) (*models.Bookmark, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+bookmarkColumns+" FROM bookmarks WHERE id = $1", id)

	b, err := scanBookmark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query bookmark: %w", err)
	}

	tags, err := db.GetBookmarkTags(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.Tags = tags

	return b, nil
}

// ListBookmarks returns bookmarks ordered newest first
func (db *DB) ListBookmarks(ctx context.Context, limit, offset int) ([]*models.Bookmark, error) {
	return db.queryBookmarks(ctx,
		"SELECT "+bookmarkColumns+" FROM bookmarks ORDER BY created_at DESC LIMIT $1 OFFSET $2",
		limit, offset)
}

// SearchBookmarks finds bookmarks whose title or description contains keyword
func (db *DB) SearchBookmarks(ctx context.Context, keyword string) ([]*models.Bookmark, error) {
	pattern := "%" + keyword + "%"
	return db.queryBookmarks(ctx,
		"SELECT "+bookmarkColumns+" FROM bookmarks WHERE title ILIKE $1 OR description ILIKE $1 ORDER BY created_at DESC",
		pattern)
}

// ListBookmarksByCategory returns all bookmarks in a category
func (db *DB) ListBookmarksByCategory(ctx context.Context, categoryID int64) ([]*models.Bookmark, error) {
	return db.queryBookmarks(ctx,
		"SELECT "+bookmarkColumns+" FROM bookmarks WHERE category_id = $1 ORDER BY created_at DESC",
		categoryID)
}

// ListBookmarksByTag returns all bookmarks linked to a tag
func (db *DB) ListBookmarksByTag(ctx context.Context, tagID int64) ([]*models.Bookmark, error) {
	return db.queryBookmarks(ctx, `
		SELECT b.id, b.category_id, b.url, COALESCE(b.title, ''), COALESCE(b.description, ''), COALESCE(b.thumbnail_url, ''), b.created_at, b.updated_at
		FROM bookmarks b
		JOIN bookmark_tags bt ON bt.bookmark_id = b.id
		WHERE bt.tag_id = $1
		ORDER BY b.created_at DESC
	`, tagID)
}

// BookmarkUpdate carries the fields of a bookmark update; nil means "leave
// unchanged".
type BookmarkUpdate struct {
	URL          *string
	Title        *string
	Description  *string
	ThumbnailURL *string
	CategoryID   *int64
}

// UpdateBookmark applies the non-nil fields of update to a bookmark and
// returns the updated row with tags
func (db *DB) UpdateBookmark(ctx context.Context, id int64, update BookmarkUpdate) (*models.Bookmark, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{}
	arg := 1

	appendSet := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, arg))
		args = append(args, value)
		arg++
	}

	if update.URL != nil {
		appendSet("url", *update.URL)
	}
	if update.Title != nil {
		appendSet("title", *update.Title)
	}
	if update.Description != nil {
		appendSet("description", *update.Description)
	}
	if update.ThumbnailURL != nil {
		appendSet("thumbnail_url", *update.ThumbnailURL)
	}
	if update.CategoryID != nil {
		appendSet("category_id", *update.CategoryID)
	}

	query := fmt.Sprintf("UPDATE bookmarks SET %s WHERE id = $%d", strings.Join(sets, ", "), arg)
	args = append(args, id)

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update bookmark: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("no bookmark found with id: %d", id)
	}

	return db.GetBookmark(ctx, id)
}

// DeleteBookmark deletes a bookmark by id
func (db *DB) DeleteBookmark(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM bookmarks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no bookmark found with id: %d", id)
	}

	return nil
}

// CountBookmarks returns the total number of bookmarks
func (db *DB) CountBookmarks(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookmarks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookmarks: %w", err)
	}
	return count, nil
}

// ----- helpers -----

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBookmark(row rowScanner) (*models.Bookmark, error) {
	var b models.Bookmark
	err := row.Scan(&b.ID, &b.CategoryID, &b.URL, &b.Title, &b.Description, &b.ThumbnailURL, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (db *DB) queryBookmarks(ctx context.Context, query string, args ...interface{}) ([]*models.Bookmark, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookmarks: %w", err)
	}
	defer rows.Close()

	results := []*models.Bookmark{}
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		results = append(results, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookmarks: %w", err)
	}

	for _, b := range results {
		tags, err := db.GetBookmarkTags(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		b.Tags = tags
	}

	return results, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

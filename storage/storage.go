// Package storage persists captured bookmark thumbnails. Two backends are
// provided: local filesystem and S3-compatible object storage.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config contains filesystem storage configuration
type Config struct {
	BasePath string // Base directory for all stored files
}

// Storage handles filesystem thumbnail storage
type Storage struct {
	config Config
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
	}, nil
}

// SaveThumbnail saves thumbnail bytes under thumbnails/YYYY/MM/ and returns
// the relative file path from the base storage directory.
func (s *Storage) SaveThumbnail(data []byte, key, contentType string) (string, error) {
	ext := extensionFromContentType(contentType)
	if ext == "" {
		ext = ".jpg"
	}

	now := time.Now()
	dirPath := filepath.Join(s.config.BasePath, "thumbnails",
		fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())))

	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	// Suffix with a short uuid so two pages with the same title don't collide.
	filename := fmt.Sprintf("%s-%s%s", key, uuid.New().String()[:8], ext)
	fullPath := filepath.Join(dirPath, filename)

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write thumbnail file: %w", err)
	}

	relPath, err := filepath.Rel(s.config.BasePath, fullPath)
	if err != nil {
		return fullPath, nil
	}
	return relPath, nil
}

// extensionFromContentType maps a MIME type to a file extension
func extensionFromContentType(contentType string) string {
	// Strip any parameters (e.g. "image/jpeg; charset=utf-8")
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/avif":
		return ".avif"
	default:
		return ""
	}
}

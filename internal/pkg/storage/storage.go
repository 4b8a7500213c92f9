package storage

import (
	"context"
	"io"
)

// Storage defines the minimal interface for file storage backends.
// Intentionally simple: Save a file, Delete a file, get its URL.
type Storage interface {
	// Save stores a file at the given path and returns an error on failure.
	Save(ctx context.Context, filePath string, reader io.Reader, contentType string) error

	// Delete removes a file by its path. Returns nil if file doesn't exist.
	Delete(ctx context.Context, filePath string) error

	// GetURL returns the public URL for a file given its logical path.
	GetURL(filePath string) string
}

// FileInfo describes a stored object.
type FileInfo struct {
	Key         string
	Size        int64
	ContentType string
	URL         string
}

// Validation categories for files moving through the system.
const (
	CategoryDocument = "document" // KYC documents sent by users
	CategoryReceipt  = "receipt"  // archived transaction receipts
)

// AllowedMimeTypes per category, checked against the detected content type.
var AllowedMimeTypes = map[string][]string{
	CategoryDocument: {"image/jpeg", "image/png", "application/pdf"},
	CategoryReceipt:  {"text/plain"},
}

// MaxFileSizes per category in bytes.
var MaxFileSizes = map[string]int64{
	CategoryDocument: 10 * 1024 * 1024,
	CategoryReceipt:  256 * 1024,
}

package ports

import (
	"context"
	"io"
)

// EvidenceStore stores payment proof files.
type EvidenceStore interface {
	// Put uploads body under path and returns a URL for it.
	Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) (string, error)

	// Delete removes path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
}

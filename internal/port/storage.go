package port

import (
	"context"
	"io"
)

// FileStore abstracts the platform's file storage bucket, used for listing
// photos. Keys are opaque; adapters decide physical placement.
type FileStore interface {
	// Save writes the content under key, replacing any previous object.
	Save(ctx context.Context, key string, r io.Reader) error

	// Remove deletes the object. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Path resolves a key to a local filesystem path for serving. Keys that
	// escape the storage root are rejected.
	Path(key string) (string, error)
}

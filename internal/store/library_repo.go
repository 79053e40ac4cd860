package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Library is a named collection of images owned by one account.
type Library struct {
	ID          uuid.UUID
	Name        string
	Description string
	// Owner is the authenticated subject that created the library.
	Owner     string
	CreatedAt time.Time
}

// Image is the metadata row for an object already uploaded to the bucket.
// Pixel data never passes through this service; ObjectPath points into the
// bucket the upload flow wrote to.
type Image struct {
	ID        uuid.UUID
	LibraryID uuid.UUID
	// ObjectPath is the bucket-relative path of the uploaded object.
	ObjectPath  string
	ContentType string
	SizeBytes   int64
	// Checksum is the lowercase hex sha256 of the object bytes, empty when
	// the uploader did not report one.
	Checksum string
	Width    int
	Height   int
	// Labels are free-form key/value tags used for filtering.
	Labels    map[string]string
	CreatedAt time.Time
}

// LibraryRepository persists libraries and their image metadata.
type LibraryRepository interface {
	CreateLibrary(ctx context.Context, lib Library) error
	// GetLibrary loads one library or returns ErrNotFound.
	GetLibrary(ctx context.Context, id uuid.UUID) (Library, error)
	// ListLibraries returns libraries newest first.
	ListLibraries(ctx context.Context, limit, offset int) ([]Library, error)

	CreateImage(ctx context.Context, img Image) error
	// GetImage loads one image or returns ErrNotFound.
	GetImage(ctx context.Context, id uuid.UUID) (Image, error)
	// ListImages returns a library's images newest first, optionally
	// restricted to rows carrying every pair in labels.
	ListImages(ctx context.Context, libraryID uuid.UUID, labels map[string]string, limit, offset int) ([]Image, error)
	// ListImageIDs returns every image id in the library, newest first.
	ListImageIDs(ctx context.Context, libraryID uuid.UUID) ([]uuid.UUID, error)
	// DeleteImage removes the metadata row or returns ErrNotFound.
	DeleteImage(ctx context.Context, id uuid.UUID) error
}

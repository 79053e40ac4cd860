package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/argushq/argus/internal/store"
)

// LibraryStore implements store.LibraryRepository using Postgres.
type LibraryStore struct {
	db DB
}

// NewLibraryStore creates a new LibraryStore.
func NewLibraryStore(db DB) *LibraryStore {
	return &LibraryStore{db: db}
}

// CreateLibrary inserts the library row.
func (s *LibraryStore) CreateLibrary(ctx context.Context, lib store.Library) error {
	query := `
		INSERT INTO libraries (id, name, description, owner, created_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	if _, err := s.db.Exec(ctx, query, lib.ID, lib.Name, lib.Description, lib.Owner, lib.CreatedAt); err != nil {
		return fmt.Errorf("insert library: %w", err)
	}
	return nil
}

// GetLibrary retrieves a single library by its ID.
func (s *LibraryStore) GetLibrary(ctx context.Context, id uuid.UUID) (store.Library, error) {
	query := `
		SELECT id, name, description, owner, created_at
		FROM libraries
		WHERE id = $1;
	`
	var lib store.Library
	err := s.db.QueryRow(ctx, query, id).Scan(
		&lib.ID,
		&lib.Name,
		&lib.Description,
		&lib.Owner,
		&lib.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Library{}, store.ErrNotFound
		}
		return store.Library{}, fmt.Errorf("get library: %w", err)
	}
	return lib, nil
}

// ListLibraries retrieves libraries newest first.
func (s *LibraryStore) ListLibraries(ctx context.Context, limit, offset int) ([]store.Library, error) {
	query := `
		SELECT id, name, description, owner, created_at
		FROM libraries
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	var libs []store.Library
	for rows.Next() {
		var lib store.Library
		if err := rows.Scan(&lib.ID, &lib.Name, &lib.Description, &lib.Owner, &lib.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan library row: %w", err)
		}
		libs = append(libs, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	return libs, nil
}

// CreateImage inserts the image metadata row.
func (s *LibraryStore) CreateImage(ctx context.Context, img store.Image) error {
	labelsJSON, err := marshalLabels(img.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	query := `
		INSERT INTO images (id, library_id, object_path, content_type, size_bytes, checksum, width, height, labels, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err = s.db.Exec(ctx, query,
		img.ID,
		img.LibraryID,
		img.ObjectPath,
		img.ContentType,
		img.SizeBytes,
		img.Checksum,
		img.Width,
		img.Height,
		labelsJSON,
		img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// GetImage retrieves a single image by its ID.
func (s *LibraryStore) GetImage(ctx context.Context, id uuid.UUID) (store.Image, error) {
	query := `
		SELECT id, library_id, object_path, content_type, size_bytes, checksum, width, height, labels, created_at
		FROM images
		WHERE id = $1;
	`
	img, err := scanImage(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Image{}, store.ErrNotFound
		}
		return store.Image{}, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// ListImages retrieves a library's images newest first. A non-empty labels
// map restricts the listing to rows containing every pair.
func (s *LibraryStore) ListImages(ctx context.Context, libraryID uuid.UUID, labels map[string]string, limit, offset int) ([]store.Image, error) {
	var labelsJSON []byte
	if len(labels) > 0 {
		var err error
		labelsJSON, err = json.Marshal(labels)
		if err != nil {
			return nil, fmt.Errorf("marshal label filter: %w", err)
		}
	}
	query := `
		SELECT id, library_id, object_path, content_type, size_bytes, checksum, width, height, labels, created_at
		FROM images
		WHERE library_id = $1 AND ($2::jsonb IS NULL OR labels @> $2::jsonb)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4;
	`
	rows, err := s.db.Query(ctx, query, libraryID, labelsJSON, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var imgs []store.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image row: %w", err)
		}
		imgs = append(imgs, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return imgs, nil
}

// ListImageIDs retrieves every image id in the library, newest first.
func (s *LibraryStore) ListImageIDs(ctx context.Context, libraryID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM images
		WHERE library_id = $1
		ORDER BY created_at DESC;
	`
	rows, err := s.db.Query(ctx, query, libraryID)
	if err != nil {
		return nil, fmt.Errorf("list image ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan image id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list image ids: %w", err)
	}
	return ids, nil
}

// DeleteImage removes the image metadata row.
func (s *LibraryStore) DeleteImage(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM images WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// scanImage reads one image row from either a pgx.Row or pgx.Rows.
func scanImage(row pgx.Row) (store.Image, error) {
	var (
		img        store.Image
		labelsJSON []byte
	)
	err := row.Scan(
		&img.ID,
		&img.LibraryID,
		&img.ObjectPath,
		&img.ContentType,
		&img.SizeBytes,
		&img.Checksum,
		&img.Width,
		&img.Height,
		&labelsJSON,
		&img.CreatedAt,
	)
	if err != nil {
		return store.Image{}, err
	}
	if len(labelsJSON) > 0 {
		if err := json.Unmarshal(labelsJSON, &img.Labels); err != nil {
			return store.Image{}, fmt.Errorf("unmarshal labels: %w", err)
		}
	}
	return img, nil
}

// marshalLabels renders a labels map as JSONB input, defaulting to {}.
func marshalLabels(labels map[string]string) ([]byte, error) {
	if len(labels) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(labels)
}

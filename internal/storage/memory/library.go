package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/argushq/argus/internal/store"
)

// CreateLibrary stores the library. Names are unique, matching the
// relational schema.
func (s *Store) CreateLibrary(_ context.Context, lib store.Library) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.libraries[lib.ID]; exists {
		return fmt.Errorf("library %s already exists", lib.ID)
	}
	for _, existing := range s.libraries {
		if existing.Name == lib.Name {
			return fmt.Errorf("library name %q already taken", lib.Name)
		}
	}
	s.libraries[lib.ID] = lib
	return nil
}

// GetLibrary fetches one library.
func (s *Store) GetLibrary(_ context.Context, id uuid.UUID) (store.Library, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lib, ok := s.libraries[id]
	if !ok {
		return store.Library{}, store.ErrNotFound
	}
	return lib, nil
}

// ListLibraries returns libraries newest first.
func (s *Store) ListLibraries(_ context.Context, limit, offset int) ([]store.Library, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Library, 0, len(s.libraries))
	for _, lib := range s.libraries {
		out = append(out, lib)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return paginate(out, limit, offset), nil
}

// CreateImage stores the image metadata row.
func (s *Store) CreateImage(_ context.Context, img store.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.images[img.ID]; exists {
		return fmt.Errorf("image %s already exists", img.ID)
	}
	if _, ok := s.libraries[img.LibraryID]; !ok {
		return fmt.Errorf("library %s: %w", img.LibraryID, store.ErrNotFound)
	}
	img.Labels = cloneStringMap(img.Labels)
	s.images[img.ID] = img
	return nil
}

// GetImage fetches one image.
func (s *Store) GetImage(_ context.Context, id uuid.UUID) (store.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[id]
	if !ok {
		return store.Image{}, store.ErrNotFound
	}
	img.Labels = cloneStringMap(img.Labels)
	return img, nil
}

// ListImages returns a library's images newest first, restricted to rows
// carrying every label pair when labels is non-empty.
func (s *Store) ListImages(_ context.Context, libraryID uuid.UUID, labels map[string]string, limit, offset int) ([]store.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Image
	for _, img := range s.images {
		if img.LibraryID != libraryID || !labelsMatch(img.Labels, labels) {
			continue
		}
		img.Labels = cloneStringMap(img.Labels)
		out = append(out, img)
	}
	sortImagesNewestFirst(out)
	return paginate(out, limit, offset), nil
}

// ListImageIDs returns every image id in the library, newest first.
func (s *Store) ListImageIDs(_ context.Context, libraryID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var imgs []store.Image
	for _, img := range s.images {
		if img.LibraryID == libraryID {
			imgs = append(imgs, img)
		}
	}
	sortImagesNewestFirst(imgs)
	ids := make([]uuid.UUID, len(imgs))
	for i, img := range imgs {
		ids[i] = img.ID
	}
	return ids, nil
}

// DeleteImage removes the metadata row.
func (s *Store) DeleteImage(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.images, id)
	return nil
}

func labelsMatch(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

func sortImagesNewestFirst(imgs []store.Image) {
	sort.Slice(imgs, func(i, j int) bool {
		if !imgs[i].CreatedAt.Equal(imgs[j].CreatedAt) {
			return imgs[i].CreatedAt.After(imgs[j].CreatedAt)
		}
		return imgs[i].ID.String() < imgs[j].ID.String()
	})
}

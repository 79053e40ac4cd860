package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/hash/sha256"
	"github.com/argushq/argus/internal/storage/gcs"
	"github.com/argushq/argus/internal/store"
	"github.com/argushq/argus/internal/telemetry"
)

// Signer issues time-limited read URLs for stored objects.
type Signer interface {
	SignedReadURL(ctx context.Context, objectPath string) (string, time.Time, error)
}

// ObjectStore reads object attributes and bytes so registration can backfill
// metadata and verify checksums. Optional; nil skips both.
type ObjectStore interface {
	StatObject(ctx context.Context, objectPath string) (gcs.ObjectInfo, error)
	OpenObject(ctx context.Context, objectPath string) (io.ReadCloser, error)
}

// ImageConfig tunes signed URL caching and checksum handling.
type ImageConfig struct {
	// URLCacheSize bounds the signed URL cache.
	URLCacheSize int
	// VerifyChecksums re-hashes the stored object on registration when a
	// checksum is supplied.
	VerifyChecksums bool
}

// ImageDeps bundles the collaborators NewImageService requires.
type ImageDeps struct {
	Libraries store.LibraryRepository
	Signer    Signer
	Objects   ObjectStore
	Audit     *AuditService
	Clock     Clock
	IDs       IDGenerator
	Config    ImageConfig
	Logger    *zap.Logger
}

// ImageService manages libraries and their image metadata. Pixel data never
// passes through it; images are registered after a direct upload and read
// through signed URLs.
type ImageService struct {
	libraries store.LibraryRepository
	signer    Signer
	objects   ObjectStore
	audit     *AuditService
	clock     Clock
	ids       IDGenerator
	cfg       ImageConfig
	urls      *urlCache
	hasher    *sha256.Hasher
	logger    *zap.Logger
}

// NewImageService wires the repositories and signer into an image service.
func NewImageService(d ImageDeps) *ImageService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := d.Config
	if cfg.URLCacheSize <= 0 {
		cfg.URLCacheSize = 1024
	}
	return &ImageService{
		libraries: d.Libraries,
		signer:    d.Signer,
		objects:   d.Objects,
		audit:     d.Audit,
		clock:     d.Clock,
		ids:       d.IDs,
		cfg:       cfg,
		urls:      newURLCache(cfg.URLCacheSize),
		hasher:    sha256.New(),
		logger:    logger,
	}
}

// CreateLibrary stores a new named image collection owned by the caller.
func (s *ImageService) CreateLibrary(ctx context.Context, caller Caller, name, description string) (store.Library, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Library{}, fmt.Errorf("%w: library name is required", ErrInvalidInput)
	}
	id, err := s.ids.NewRawID()
	if err != nil {
		return store.Library{}, fmt.Errorf("generate library id: %w", err)
	}
	lib := store.Library{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		Owner:       caller.actor(),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.libraries.CreateLibrary(ctx, lib); err != nil {
		return store.Library{}, fmt.Errorf("create library: %w", err)
	}
	s.audit.Record(ctx, caller, "library.create", "library", lib.ID.String(), map[string]string{"name": lib.Name})
	return lib, nil
}

// GetLibrary loads one library.
func (s *ImageService) GetLibrary(ctx context.Context, id uuid.UUID) (store.Library, error) {
	return s.libraries.GetLibrary(ctx, id)
}

// ListLibraries returns libraries newest first.
func (s *ImageService) ListLibraries(ctx context.Context, limit, offset int) ([]store.Library, error) {
	return s.libraries.ListLibraries(ctx, limit, offset)
}

// RegisterImageRequest carries the metadata reported for an uploaded object.
type RegisterImageRequest struct {
	ObjectPath  string
	ContentType string
	SizeBytes   int64
	Checksum    string
	Width       int
	Height      int
	Labels      map[string]string
}

// RegisterImage stores the metadata row for an object the upload flow
// already wrote to the bucket. Size and content type are backfilled from
// object attributes when the bucket is reachable and the caller left them
// unset.
func (s *ImageService) RegisterImage(ctx context.Context, caller Caller, libraryID uuid.UUID, req RegisterImageRequest) (store.Image, error) {
	if _, err := s.libraries.GetLibrary(ctx, libraryID); err != nil {
		return store.Image{}, fmt.Errorf("load library: %w", err)
	}
	req.ObjectPath = strings.TrimSpace(req.ObjectPath)
	if req.ObjectPath == "" {
		return store.Image{}, fmt.Errorf("%w: object_path is required", ErrInvalidInput)
	}
	if req.SizeBytes < 0 || req.Width < 0 || req.Height < 0 {
		return store.Image{}, fmt.Errorf("%w: size and dimensions must not be negative", ErrInvalidInput)
	}
	if req.Checksum != "" {
		if !sha256.ValidDigest(req.Checksum) {
			return store.Image{}, fmt.Errorf("%w: checksum must be %d hex characters", ErrInvalidInput, sha256.DigestLen)
		}
		req.Checksum = strings.ToLower(req.Checksum)
	}

	if s.objects != nil && (req.SizeBytes == 0 || req.ContentType == "") {
		info, err := s.objects.StatObject(ctx, req.ObjectPath)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Image{}, fmt.Errorf("%w: object %s does not exist in the bucket", ErrInvalidInput, req.ObjectPath)
			}
			return store.Image{}, fmt.Errorf("stat object: %w", err)
		}
		if req.SizeBytes == 0 {
			req.SizeBytes = info.SizeBytes
		}
		if req.ContentType == "" {
			req.ContentType = info.ContentType
		}
	}
	if !strings.HasPrefix(req.ContentType, "image/") {
		return store.Image{}, fmt.Errorf("%w: content_type %q is not an image type", ErrInvalidInput, req.ContentType)
	}
	if err := s.verifyChecksum(ctx, req); err != nil {
		return store.Image{}, err
	}

	id, err := s.ids.NewRawID()
	if err != nil {
		return store.Image{}, fmt.Errorf("generate image id: %w", err)
	}
	img := store.Image{
		ID:          id,
		LibraryID:   libraryID,
		ObjectPath:  req.ObjectPath,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		Checksum:    req.Checksum,
		Width:       req.Width,
		Height:      req.Height,
		Labels:      req.Labels,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.libraries.CreateImage(ctx, img); err != nil {
		return store.Image{}, fmt.Errorf("create image: %w", err)
	}
	s.audit.Record(ctx, caller, "image.register", "image", img.ID.String(), map[string]string{
		"library_id":  libraryID.String(),
		"object_path": img.ObjectPath,
		"size_bytes":  strconv.FormatInt(img.SizeBytes, 10),
	})
	return img, nil
}

// ImageWithURL pairs an image row with a time-limited read URL.
type ImageWithURL struct {
	Image      store.Image
	URL        string
	URLExpires time.Time
}

// GetImage loads the metadata row and a signed read URL for the object.
func (s *ImageService) GetImage(ctx context.Context, id uuid.UUID) (ImageWithURL, error) {
	img, err := s.libraries.GetImage(ctx, id)
	if err != nil {
		return ImageWithURL{}, err
	}
	url, expires, err := s.signedURL(ctx, img.ObjectPath)
	if err != nil {
		return ImageWithURL{}, fmt.Errorf("sign read url: %w", err)
	}
	return ImageWithURL{Image: img, URL: url, URLExpires: expires}, nil
}

// ListImages returns a library's images newest first, optionally filtered
// to rows carrying every label pair.
func (s *ImageService) ListImages(ctx context.Context, libraryID uuid.UUID, labels map[string]string, limit, offset int) ([]store.Image, error) {
	if _, err := s.libraries.GetLibrary(ctx, libraryID); err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}
	return s.libraries.ListImages(ctx, libraryID, labels, limit, offset)
}

// DeleteImage removes the metadata row. The object itself stays in the
// bucket; its lifecycle belongs to the storage provider.
func (s *ImageService) DeleteImage(ctx context.Context, caller Caller, id uuid.UUID) error {
	img, err := s.libraries.GetImage(ctx, id)
	if err != nil {
		return err
	}
	if err := s.libraries.DeleteImage(ctx, id); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	s.audit.Record(ctx, caller, "image.delete", "image", id.String(), map[string]string{
		"library_id":  img.LibraryID.String(),
		"object_path": img.ObjectPath,
	})
	return nil
}

// signedURL serves from the cache when the cached URL still has its safety
// margin left, signing and caching otherwise.
func (s *ImageService) signedURL(ctx context.Context, objectPath string) (string, time.Time, error) {
	now := s.clock.Now()
	if url, expires, ok := s.urls.get(objectPath, now); ok {
		telemetry.ObserveSignedURLCache(true)
		return url, expires, nil
	}
	telemetry.ObserveSignedURLCache(false)
	url, expires, err := s.signer.SignedReadURL(ctx, objectPath)
	if err != nil {
		return "", time.Time{}, err
	}
	s.urls.put(objectPath, url, expires, now)
	return url, expires, nil
}

// verifyChecksum re-hashes the stored object and compares it against the
// caller-supplied digest.
func (s *ImageService) verifyChecksum(ctx context.Context, req RegisterImageRequest) error {
	if !s.cfg.VerifyChecksums || req.Checksum == "" || s.objects == nil {
		return nil
	}
	r, err := s.objects.OpenObject(ctx, req.ObjectPath)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: object %s does not exist in the bucket", ErrInvalidInput, req.ObjectPath)
		}
		return fmt.Errorf("open object: %w", err)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			s.logger.Warn("close object reader", zap.String("object_path", req.ObjectPath), zap.Error(cerr))
		}
	}()
	digest, err := s.hasher.HashReader(r)
	if err != nil {
		return fmt.Errorf("hash object: %w", err)
	}
	if digest != req.Checksum {
		return fmt.Errorf("%w: checksum mismatch, object hashes to %s", ErrInvalidInput, digest)
	}
	return nil
}

// Package gcs issues signed read URLs for image objects in Google Cloud
// Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/argushq/argus/internal/store"
)

const defaultURLTTL = 15 * time.Minute

// Config captures the parameters required to reach the image bucket.
type Config struct {
	Bucket string
	// Prefix is prepended to every object path, if set.
	Prefix string
	// URLTTL bounds how long issued URLs stay valid.
	URLTTL time.Duration
}

// Signer issues V4 signed GET URLs for objects the upload flow already
// wrote. Authentication rides Application Default Credentials.
type Signer struct {
	client *storage.Client
	bucket string
	prefix string
	ttl    time.Duration
}

// New creates a GCS-backed signer.
func New(client *storage.Client, cfg Config) (*Signer, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = defaultURLTTL
	}
	return &Signer{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		ttl:    ttl,
	}, nil
}

// SignedReadURL returns a V4 GET URL for the object plus the URL's expiry.
func (s *Signer) SignedReadURL(ctx context.Context, objectPath string) (string, time.Time, error) {
	if strings.TrimSpace(objectPath) == "" {
		return "", time.Time{}, fmt.Errorf("object path is required")
	}
	expires := time.Now().Add(s.ttl)
	url, err := s.client.Bucket(s.bucket).SignedURL(s.objectName(objectPath), &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: expires,
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign object url: %w", err)
	}
	return url, expires, nil
}

// ObjectInfo is the subset of object metadata image registration consumes.
type ObjectInfo struct {
	SizeBytes   int64
	ContentType string
	Updated     time.Time
}

// StatObject fetches size and content type for an uploaded object. A
// missing object reports store.ErrNotFound.
func (s *Signer) StatObject(ctx context.Context, objectPath string) (ObjectInfo, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(s.objectName(objectPath)).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ObjectInfo{}, fmt.Errorf("object %s: %w", objectPath, store.ErrNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("stat object: %w", err)
	}
	return ObjectInfo{
		SizeBytes:   attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
	}, nil
}

// OpenObject returns a reader over the object bytes so registration can
// verify the reported checksum.
func (s *Signer) OpenObject(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(objectPath)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %s: %w", objectPath, store.ErrNotFound)
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	return r, nil
}

func (s *Signer) objectName(objectPath string) string {
	objectPath = strings.TrimPrefix(objectPath, "/")
	if s.prefix == "" {
		return objectPath
	}
	return s.prefix + "/" + objectPath
}

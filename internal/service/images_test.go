package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/argushq/argus/internal/store"
)

func TestCreateLibraryValidatesName(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.images.CreateLibrary(context.Background(), f.caller, "   ", "")
	require.ErrorIs(t, err, ErrInvalidInput)

	lib, err := f.images.CreateLibrary(context.Background(), f.caller, "  wildlife  ", "camera traps")
	require.NoError(t, err)
	require.Equal(t, "wildlife", lib.Name)
	require.Equal(t, "tester", lib.Owner)
	require.Equal(t, f.clock.Now(), lib.CreatedAt)
}

func TestRegisterImageValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "products")
	ctx := context.Background()

	_, err := f.images.RegisterImage(ctx, f.caller, uuid.New(), RegisterImageRequest{
		ObjectPath: "a.png", ContentType: "image/png",
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.images.RegisterImage(ctx, f.caller, lib.ID, RegisterImageRequest{
		ContentType: "image/png",
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	f.objects.objects["doc.pdf"] = []byte("%PDF")
	_, err = f.images.RegisterImage(ctx, f.caller, lib.ID, RegisterImageRequest{
		ObjectPath: "doc.pdf", ContentType: "application/pdf", SizeBytes: 4,
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.images.RegisterImage(ctx, f.caller, lib.ID, RegisterImageRequest{
		ObjectPath: "a.png", ContentType: "image/png", SizeBytes: -1,
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.images.RegisterImage(ctx, f.caller, lib.ID, RegisterImageRequest{
		ObjectPath: "a.png", ContentType: "image/png", SizeBytes: 8, Checksum: "zz",
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterImageBackfillsFromBucket(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "backfill")
	f.objects.objects["fill/cat.png"] = []byte("cat picture bytes")

	// Size and content type left unset are read from object attributes.
	img, err := f.images.RegisterImage(context.Background(), f.caller, lib.ID, RegisterImageRequest{
		ObjectPath: "fill/cat.png",
	})
	require.NoError(t, err)
	require.Equal(t, int64(len("cat picture bytes")), img.SizeBytes)
	require.Equal(t, "image/png", img.ContentType)

	// Objects missing from the bucket cannot be registered.
	_, err = f.images.RegisterImage(context.Background(), f.caller, lib.ID, RegisterImageRequest{
		ObjectPath: "fill/ghost.png",
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterImageVerifiesChecksum(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "checksums")
	data := []byte("exact image payload")
	f.objects.objects["sum/ok.png"] = data
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	img, err := f.images.RegisterImage(context.Background(), f.caller, lib.ID, RegisterImageRequest{
		ObjectPath:  "sum/ok.png",
		ContentType: "image/png",
		SizeBytes:   int64(len(data)),
		Checksum:    digest,
	})
	require.NoError(t, err)
	require.Equal(t, digest, img.Checksum)

	// A digest that does not match the stored bytes is rejected.
	wrong := sha256.Sum256([]byte("other bytes"))
	_, err = f.images.RegisterImage(context.Background(), f.caller, lib.ID, RegisterImageRequest{
		ObjectPath:  "sum/ok.png",
		ContentType: "image/png",
		SizeBytes:   int64(len(data)),
		Checksum:    hex.EncodeToString(wrong[:]),
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetImageCachesSignedURLs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "urls")
	img := f.seedImage(t, lib.ID, "urls/one.png")
	ctx := context.Background()

	first, err := f.images.GetImage(ctx, img.ID)
	require.NoError(t, err)
	require.Equal(t, "https://signed.example/urls/one.png", first.URL)
	require.Equal(t, 1, f.signer.count())

	// Second read within the TTL serves the cached URL.
	second, err := f.images.GetImage(ctx, img.ID)
	require.NoError(t, err)
	require.Equal(t, first.URL, second.URL)
	require.Equal(t, first.URLExpires, second.URLExpires)
	require.Equal(t, 1, f.signer.count())

	// Once inside the safety margin the URL is re-signed.
	f.clock.Advance(time.Hour)
	_, err = f.images.GetImage(ctx, img.ID)
	require.NoError(t, err)
	require.Equal(t, 2, f.signer.count())
}

func TestListImagesFiltersByLabels(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "labels")
	ctx := context.Background()

	f.objects.objects["l/red.png"] = []byte("red")
	_, err := f.images.RegisterImage(ctx, f.caller, lib.ID, RegisterImageRequest{
		ObjectPath: "l/red.png", ContentType: "image/png", SizeBytes: 3,
		Labels: map[string]string{"color": "red", "set": "train"},
	})
	require.NoError(t, err)
	f.objects.objects["l/blue.png"] = []byte("blue")
	_, err = f.images.RegisterImage(ctx, f.caller, lib.ID, RegisterImageRequest{
		ObjectPath: "l/blue.png", ContentType: "image/png", SizeBytes: 4,
		Labels: map[string]string{"color": "blue", "set": "train"},
	})
	require.NoError(t, err)

	all, err := f.images.ListImages(ctx, lib.ID, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	reds, err := f.images.ListImages(ctx, lib.ID, map[string]string{"color": "red"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, reds, 1)
	require.Equal(t, "l/red.png", reds[0].ObjectPath)

	none, err := f.images.ListImages(ctx, lib.ID, map[string]string{"color": "red", "set": "test"}, 10, 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestDeleteImageRemovesMetadata(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "deletions")
	img := f.seedImage(t, lib.ID, "d/x.png")
	ctx := context.Background()

	require.NoError(t, f.images.DeleteImage(ctx, f.caller, img.ID))
	_, err := f.images.GetImage(ctx, img.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, f.images.DeleteImage(ctx, f.caller, img.ID), store.ErrNotFound)
}

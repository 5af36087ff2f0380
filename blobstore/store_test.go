package blobstore_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/climate-crusade/blobstore"
	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/stretchr/testify/require"
)

// fakeStorage is a minimal path-style S3 endpoint.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	status  int
}

func (f *fakeStorage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/")
	if _, exists := f.objects[path]; exists && r.Header.Get("If-None-Match") == "*" {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusPreconditionFailed)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>PreconditionFailed</Code><Message>At least one of the pre-conditions you specified did not hold</Message></Error>`))
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.objects[path] = body
	f.types[path] = r.Header.Get("Content-Type")
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeStorage) object(path string) ([]byte, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[path], f.types[path]
}

func setupStore(t *testing.T) (*blobstore.Store, *fakeStorage) {
	t.Helper()
	fake := &fakeStorage{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := blobstore.NewS3Client(context.Background(), blobstore.ClientConfig{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	return blobstore.New(client, blobstore.AvatarBucket, "https://backend.example.com/"), fake
}

func TestStore_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("overwrite replaces", func(t *testing.T) {
		store, fake := setupStore(t)
		url, err := store.Upload(ctx, blobstore.AvatarKey("user-1"), []byte("v1"), blobstore.AvatarContentType, true)
		require.NoError(t, err)
		require.Equal(t, "https://backend.example.com/storage/v1/object/public/avatars/user-1", url)

		_, err = store.Upload(ctx, blobstore.AvatarKey("user-1"), []byte("v2"), blobstore.AvatarContentType, true)
		require.NoError(t, err)
		body, contentType := fake.object("avatars/user-1")
		require.Equal(t, []byte("v2"), body)
		require.Equal(t, "image/jpeg", contentType)
	})

	t.Run("no overwrite keeps the existing object", func(t *testing.T) {
		store, fake := setupStore(t)
		_, err := store.Upload(ctx, "user-1", []byte("v1"), blobstore.AvatarContentType, false)
		require.NoError(t, err)

		_, err = store.Upload(ctx, "user-1", []byte("v2"), blobstore.AvatarContentType, false)
		require.ErrorIs(t, err, blobstore.ErrAlreadyExists)
		body, _ := fake.object("avatars/user-1")
		require.Equal(t, []byte("v1"), body)
	})

	t.Run("forbidden is an auth error", func(t *testing.T) {
		store, fake := setupStore(t)
		fake.mu.Lock()
		fake.status = http.StatusForbidden
		fake.mu.Unlock()
		_, err := store.Upload(ctx, "user-1", []byte("v1"), blobstore.AvatarContentType, true)
		require.True(t, apperrors.IsAuth(err))
	})

	t.Run("empty key", func(t *testing.T) {
		store, _ := setupStore(t)
		_, err := store.Upload(ctx, "", nil, blobstore.AvatarContentType, true)
		require.True(t, apperrors.IsValidation(err))
	})
}

func TestPublicURL(t *testing.T) {
	store := blobstore.New(nil, "avatars", "https://backend.example.com")
	require.Equal(t, "https://backend.example.com/storage/v1/object/public/avatars/a%20b/c", store.PublicURL("a b/c"))

	at := time.UnixMilli(1700000000000)
	require.Equal(t, "https://x/y?t=1700000000000", blobstore.CacheBusted("https://x/y", at))
	require.Equal(t, "https://x/y?a=1&t=1700000000000", blobstore.CacheBusted("https://x/y?a=1", at))
}

package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"giftpool/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutURLDelete(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "/uploads/")
	require.NoError(t, err)

	ctx := context.Background()
	key := "gifts/g1/abc.webp"
	require.NoError(t, store.Put(ctx, key, bytes.NewReader([]byte("webp")), 4, "image/webp"))

	data, err := os.ReadFile(filepath.Join(dir, "gifts", "g1", "abc.webp"))
	require.NoError(t, err)
	assert.Equal(t, "webp", string(data))
	assert.Equal(t, "/uploads/gifts/g1/abc.webp", store.URL(key))

	require.NoError(t, store.Delete(ctx, key))
	_, err = os.Stat(filepath.Join(dir, "gifts", "g1", "abc.webp"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Delete(ctx, key), "deleting a missing object is not an error")
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	t.Parallel()
	store, err := NewLocalStore(t.TempDir(), LocalURLPrefix)
	require.NoError(t, err)

	for _, key := range []string{"", "../x", "a/../../x", "/abs", "a//b", `a\b`, "a/./b"} {
		t.Run(key, func(t *testing.T) {
			err := store.Put(context.Background(), key, bytes.NewReader(nil), 0, "")
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestLocalStore_HonoursCancelledContext(t *testing.T) {
	t.Parallel()
	store, err := NewLocalStore(t.TempDir(), LocalURLPrefix)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = store.Put(ctx, "k.webp", bytes.NewReader([]byte("x")), 1, "image/webp")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMinioBaseURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "http://localhost:9000/gift-images", minioBaseURL("localhost:9000", "gift-images", false, ""))
	assert.Equal(t, "https://s3.example.com/b", minioBaseURL("s3.example.com", "b", true, ""))
	assert.Equal(t, "https://cdn.example.com/gifts", minioBaseURL("minio:9000", "b", false, "https://cdn.example.com/gifts/"))

	m := &MinioStore{baseURL: "https://cdn.example.com"}
	assert.Equal(t, "https://cdn.example.com/gifts/a.webp", m.URL("/gifts/a.webp"))
}

func TestNew(t *testing.T) {
	t.Parallel()

	store, err := New(&config.Config{ObjectStore: "local", UploadDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	_, err = New(&config.Config{ObjectStore: "s3"})
	assert.Error(t, err)
}

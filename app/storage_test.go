package charla

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("store and serve round trip", func(t *testing.T) {
		storage, err := NewDiskStorage(t.TempDir(), "/media")
		require.Nil(t, err)

		url, err := storage.Store(ctx, "u1/pic.jpg", strings.NewReader("jpeg bytes"))
		require.Nil(t, err)
		assert.Equal(t, "/media/u1/pic.jpg", url)

		req := httptest.NewRequest("GET", url, nil)
		rec := httptest.NewRecorder()
		storage.FileServer().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		body, _ := io.ReadAll(rec.Body)
		assert.Equal(t, "jpeg bytes", string(body))
	})

	t.Run("delete removes the file", func(t *testing.T) {
		root := t.TempDir()
		storage, err := NewDiskStorage(root, "/media")
		require.Nil(t, err)

		url, err := storage.Store(ctx, "u1/voice.ogg", strings.NewReader("ogg bytes"))
		require.Nil(t, err)

		require.Nil(t, storage.Delete(ctx, url))
		_, err = os.Stat(filepath.Join(root, "u1", "voice.ogg"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("refuses to delete foreign urls", func(t *testing.T) {
		storage, err := NewDiskStorage(t.TempDir(), "/media")
		require.Nil(t, err)

		assert.NotNil(t, storage.Delete(ctx, "https://example.com/pic.jpg"))
	})

	t.Run("path traversal stays inside the root", func(t *testing.T) {
		root := t.TempDir()
		storage, err := NewDiskStorage(root, "/media")
		require.Nil(t, err)

		url, err := storage.Store(ctx, "../escape.txt", strings.NewReader("x"))
		require.Nil(t, err)
		assert.Equal(t, "/media/escape.txt", url)

		_, err = os.Stat(filepath.Join(root, "escape.txt"))
		assert.Nil(t, err)
	})
}

func TestSendLimiter(t *testing.T) {
	limiter := NewSendLimiter(1, 2)

	// The burst is consumed, then sends are refused.
	assert.True(t, limiter.Allow("u1"))
	assert.True(t, limiter.Allow("u1"))
	assert.False(t, limiter.Allow("u1"))

	// Budgets are per sender.
	assert.True(t, limiter.Allow("u2"))
}

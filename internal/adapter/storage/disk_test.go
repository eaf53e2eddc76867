package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStore_SaveAndPath(t *testing.T) {
	t.Run("Should persist content under the key's path", func(t *testing.T) {
		store, err := NewDiskStore(t.TempDir())
		require.NoError(t, err)

		err = store.Save(context.Background(), "listings/abc/photo.jpg", strings.NewReader("jpeg-bytes"))
		require.NoError(t, err)

		path, err := store.Path("listings/abc/photo.jpg")
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(data))
	})

	t.Run("Should replace an existing object", func(t *testing.T) {
		store, err := NewDiskStore(t.TempDir())
		require.NoError(t, err)
		require.NoError(t, store.Save(context.Background(), "k", strings.NewReader("old")))

		require.NoError(t, store.Save(context.Background(), "k", strings.NewReader("new")))

		path, _ := store.Path("k")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
	})

	t.Run("Should leave no temp files behind", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewDiskStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.Save(context.Background(), "k", strings.NewReader("x")))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasPrefix(e.Name(), ".upload-"), "temp file left behind: %s", e.Name())
		}
	})

	t.Run("Should reject an empty key", func(t *testing.T) {
		store, err := NewDiskStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Path("")
		assert.Error(t, err)
	})

	t.Run("Should reject path traversal in a key", func(t *testing.T) {
		store, err := NewDiskStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Path("../../etc/passwd")
		assert.Error(t, err)

		_, err = store.Path("listings/../../secret")
		assert.Error(t, err)
	})

	t.Run("Should reject an absolute key", func(t *testing.T) {
		store, err := NewDiskStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Path("/etc/passwd")
		assert.Error(t, err)
	})
}

func TestDiskStore_Remove(t *testing.T) {
	t.Run("Should delete a stored object", func(t *testing.T) {
		store, err := NewDiskStore(t.TempDir())
		require.NoError(t, err)
		require.NoError(t, store.Save(context.Background(), "gone.jpg", strings.NewReader("x")))

		require.NoError(t, store.Remove(context.Background(), "gone.jpg"))

		path, _ := store.Path("gone.jpg")
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("Should tolerate removing a missing key", func(t *testing.T) {
		store, err := NewDiskStore(t.TempDir())
		require.NoError(t, err)

		assert.NoError(t, store.Remove(context.Background(), "never-there.jpg"))
	})

	t.Run("Should create nested directories as needed", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewDiskStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.Save(context.Background(), "a/b/c/d.bin", strings.NewReader("deep")))

		_, err = os.Stat(filepath.Join(dir, "a", "b", "c", "d.bin"))
		assert.NoError(t, err)
	})
}

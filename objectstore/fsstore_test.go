package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeObject(t *testing.T, root, key string, data []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, data, 0o644))
}

func TestFSStoreGet(t *testing.T) {
	root := t.TempDir()
	writeObject(t, root, "brands/zimm/L1/pattern.png", []byte("image-bytes"))

	store, err := NewFSStore(root)
	require.NoError(t, err)

	data, err := store.Get(context.Background(), "brands/zimm/L1/pattern.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)

	_, err = store.Get(context.Background(), "brands/zimm/L9/pattern.png")
	assert.Error(t, err)
}

func TestFSStoreGetRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "../outside.txt")
	assert.Error(t, err)
}

func TestFSStoreListPaginates(t *testing.T) {
	root := t.TempDir()
	for _, key := range []string{
		"q/a.png", "q/b.png", "q/c.png", "q/d.png", "q/e.png",
		"other/x.png",
	} {
		writeObject(t, root, key, []byte("data"))
	}

	store, err := NewFSStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	page1, next, err := store.List(ctx, "q/", "", 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, next)
	assert.Equal(t, "q/a.png", page1[0].Path)

	page2, next, err := store.List(ctx, "q/", next, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.NotEmpty(t, next)

	page3, next, err := store.List(ctx, "q/", next, 2)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
	assert.Empty(t, next)
}

func TestFSStoreListRejectsBadToken(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.List(context.Background(), "q/", "not-a-token", 10)
	assert.Error(t, err)
}

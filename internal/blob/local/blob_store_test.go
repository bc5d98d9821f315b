package local_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reliefweb-corpus/internal/blob"
	"github.com/JakeFAU/reliefweb-corpus/internal/blob/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesMissingDir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "exports", "corpus")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.NotNil(t, store)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{BaseDir: "  "})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPut(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("NestedPath", func(t *testing.T) {
		t.Parallel()
		uri, err := store.Put(ctx, "corpus/2024/run.vert", blob.ContentTypeVertical, strings.NewReader("<doc id=\"1\">\n</doc>\n"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(dir, "corpus", "2024", "run.vert")), uri)

		data, err := os.ReadFile(filepath.Join(dir, "corpus", "2024", "run.vert")) // #nosec G304 -- temp dir.
		require.NoError(t, err)
		assert.Equal(t, "<doc id=\"1\">\n</doc>\n", string(data))
	})

	t.Run("Overwrite", func(t *testing.T) {
		t.Parallel()
		_, err := store.Put(ctx, "tags.txt", blob.ContentTypeVertical, strings.NewReader("NN\n"))
		require.NoError(t, err)
		_, err = store.Put(ctx, "tags.txt", blob.ContentTypeVertical, strings.NewReader("NNS\n"))
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(dir, "tags.txt")) // #nosec G304 -- temp dir.
		require.NoError(t, err)
		assert.Equal(t, "NNS\n", string(data))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		t.Parallel()
		_, err := store.Put(ctx, "", blob.ContentTypeVertical, strings.NewReader("data"))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		t.Parallel()
		_, err := store.Put(ctx, "../outside.txt", blob.ContentTypeVertical, strings.NewReader("data"))
		assert.Error(t, err)
	})

	t.Run("ReaderFailureLeavesNothing", func(t *testing.T) {
		t.Parallel()
		_, err := store.Put(ctx, "broken/out.vert", blob.ContentTypeVertical, failingReader{})
		require.Error(t, err)
		entries, err := os.ReadDir(filepath.Join(dir, "broken"))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

package zipstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

func TestCreateTempArchivesRootFilesUncompressed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("aaa"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("bbbb"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "ignored.jpg"), []byte("x"), 0o600))

	zipPath, err := CreateTemp(context.Background(), dir, t.TempDir())
	require.NoError(t, err)

	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 2)

	for _, f := range zr.File {
		require.Equal(t, uint16(zip.Store), f.Method)
	}

	require.Equal(t, "a.jpg", zr.File[0].Name)
	require.Equal(t, "b.jpg", zr.File[1].Name)
}

func TestCreateTempEmptyFolderFails(t *testing.T) {
	t.Parallel()

	_, err := CreateTemp(context.Background(), t.TempDir(), t.TempDir())
	require.Error(t, err)
}

func TestRemoveWithRetry(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "f.zip")
	require.NoError(t, os.WriteFile(p, []byte("z"), 0o600))

	require.True(t, RemoveWithRetry(context.Background(), p))
	require.NoFileExists(t, p)

	// removing a missing file reports success.
	require.True(t, RemoveWithRetry(context.Background(), p))
}

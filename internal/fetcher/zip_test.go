package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, createErr := w.Create(name)
		require.NoError(t, createErr)
		_, writeErr := fw.Write([]byte(content))
		require.NoError(t, writeErr)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractZIP(t *testing.T) {
	zipPath := writeTestZIP(t, map[string]string{
		"tl_2010_36_county10.shp": "shp",
		"tl_2010_36_county10.dbf": "dbf",
		"nested/readme.txt":       "hello",
	})

	dest := t.TempDir()
	paths, err := ExtractZIP(zipPath, dest)
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	data, err := os.ReadFile(filepath.Join(dest, "nested", "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	shp, err := FindFileByExt(paths, ".SHP")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "tl_2010_36_county10.shp"), shp)

	_, err = FindFileByExt(paths, ".prj")
	assert.Error(t, err)
}

func TestExtractZIP_ZipSlip(t *testing.T) {
	zipPath := writeTestZIP(t, map[string]string{"../evil.txt": "x"})

	_, err := ExtractZIP(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestExtractZIP_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("<html>not found</html>"), 0o644))

	_, err := ExtractZIP(path, t.TempDir())
	assert.Error(t, err)
}

package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pcotret/gigue/internal/fsutil"
)

func TestFindFilesByExtensionIsRecursiveAndSorted(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested"), 0o755))
	for _, name := range []string{"b.c", "a.c", "nested/z.c", "ignore.S"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), nil, 0o644))
	}

	files, err := fsutil.FindFilesByExtension(root, ".c")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(root, "a.c"),
		filepath.Join(root, "b.c"),
		filepath.Join(root, "nested", "z.c"),
	}, files)
}

func TestFindFilesByExtensionMissingRoot(t *testing.T) {
	_, err := fsutil.FindFilesByExtension(filepath.Join(t.TempDir(), "nope"), ".c")
	require.Error(t, err)
}

package artifact_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pcotret/gigue/internal/artifact"
)

func TestFingerprintSensitivity(t *testing.T) {
	base := artifact.Fingerprint("recipe/object", []string{"gcc", "-O0"}, []string{"aa", "bb"})

	require.Equal(t, base, artifact.Fingerprint("recipe/object", []string{"gcc", "-O0"}, []string{"aa", "bb"}),
		"fingerprints must be deterministic")
	require.NotEqual(t, base, artifact.Fingerprint("recipe/object", []string{"gcc", "-O2"}, []string{"aa", "bb"}),
		"a flag change must change the fingerprint")
	require.NotEqual(t, base, artifact.Fingerprint("recipe/object", []string{"gcc", "-O0"}, []string{"aa", "cc"}),
		"an input change must change the fingerprint")
	require.NotEqual(t, base, artifact.Fingerprint("recipe/link", []string{"gcc", "-O0"}, []string{"aa", "bb"}),
		"a recipe change must change the fingerprint")
	// Field boundaries matter: ["ab"] and ["a","b"] are different inputs.
	require.NotEqual(t,
		artifact.Fingerprint("r", nil, []string{"ab"}),
		artifact.Fingerprint("r", nil, []string{"a", "b"}))
}

func TestHashFileMissingIsFilesystemError(t *testing.T) {
	_, err := artifact.HashFile(filepath.Join(t.TempDir(), "missing.bin"))
	var fsErr *artifact.FilesystemError
	require.ErrorAs(t, err, &fsErr)
}

func TestManifestRecordLookupForget(t *testing.T) {
	dir := t.TempDir()
	man, err := artifact.LoadManifest(dir)
	require.NoError(t, err)

	obj := filepath.Join(dir, "a.o")
	blobDump := filepath.Join(dir, "unit", "out.dump")
	require.NoError(t, man.Record(obj, "fp-1", artifact.KindObject, artifact.TierTransient))
	require.NoError(t, man.Record(blobDump, "fp-2", artifact.KindDisasmDump, artifact.TierPersisted))

	// A fresh load sees what was recorded.
	man2, err := artifact.LoadManifest(dir)
	require.NoError(t, err)
	entry, ok := man2.Lookup(obj)
	require.True(t, ok)
	require.Equal(t, "fp-1", entry.Fingerprint)
	require.Equal(t, "object", entry.Kind)

	require.Equal(t, []string{obj}, man2.PathsInTier(artifact.TierTransient))
	require.Equal(t, []string{blobDump}, man2.PathsInTier(artifact.TierPersisted))

	require.NoError(t, man2.Forget(obj))
	_, ok = man2.Lookup(obj)
	require.False(t, ok)
	require.Equal(t, 1, man2.Len())
}

func TestLoadManifestMissingFileIsEmpty(t *testing.T) {
	man, err := artifact.LoadManifest(t.TempDir())
	require.NoError(t, err)
	require.Zero(t, man.Len())
}

func TestManifestSurvivesPartialWriteAttempts(t *testing.T) {
	dir := t.TempDir()
	man, err := artifact.LoadManifest(dir)
	require.NoError(t, err)
	require.NoError(t, man.Record("a.o", "fp", artifact.KindObject, artifact.TierTransient))

	// No stray temp files remain next to the manifest.
	leftovers, err := filepath.Glob(filepath.Join(dir, artifact.ManifestName+".*"))
	require.NoError(t, err)
	require.Empty(t, leftovers)

	_, err = os.Stat(filepath.Join(dir, artifact.ManifestName))
	require.NoError(t, err)
}

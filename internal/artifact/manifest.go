package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ManifestName is the file name of the publish manifest inside the build
// root. The manifest itself belongs to neither cleanup tier.
const ManifestName = "manifest.yaml"

// Entry records one successfully published artifact.
type Entry struct {
	Fingerprint string `yaml:"fingerprint"`
	Kind        string `yaml:"kind"`
	Tier        string `yaml:"tier"`
}

// Manifest is the authoritative record of what the pipeline has published.
// Staleness checks compare against it and cleanup enumerates from it, so
// neither ever depends on naming conventions matching unrelated files.
//
// The zero value is not usable; call LoadManifest.
type Manifest struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

// LoadManifest reads the manifest under the given build root. A missing
// manifest file yields an empty manifest: every derived artifact is then
// considered stale.
func LoadManifest(buildDir string) (*Manifest, error) {
	m := &Manifest{
		path:    filepath.Join(buildDir, ManifestName),
		entries: make(map[string]Entry),
	}
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m.entries); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", m.path, err)
	}
	return m, nil
}

// Path returns the manifest's on-disk location.
func (m *Manifest) Path() string {
	return m.path
}

// Lookup returns the recorded entry for an artifact path.
func (m *Manifest) Lookup(path string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	return e, ok
}

// Record appends (or replaces) an entry and persists the manifest. It is
// called once per successful publish, after the artifact's atomic rename.
func (m *Manifest) Record(path string, fingerprint string, kind Kind, tier Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[path] = Entry{
		Fingerprint: fingerprint,
		Kind:        kind.String(),
		Tier:        tier.String(),
	}
	return m.save()
}

// Forget drops entries and persists the manifest. Cleanup calls it after
// deleting the corresponding files.
func (m *Manifest) Forget(paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.entries, p)
	}
	return m.save()
}

// PathsInTier returns the recorded artifact paths belonging to a tier, in
// deterministic order.
func (m *Manifest) PathsInTier(tier Tier) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	for p, e := range m.entries {
		if e.Tier == tier.String() {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of recorded entries.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// save writes the manifest through a temporary file and renames it into
// place, for the same truncation-safety reason artifacts are published that
// way. Callers hold m.mu.
func (m *Manifest) save() error {
	data, err := yaml.Marshal(m.entries)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating build root: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ManifestName+".*")
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publishing manifest: %w", err)
	}
	return nil
}

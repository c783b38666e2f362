// Package cleanup removes produced artifacts by tier.
//
// Enumeration is driven by the publish manifest, not by scanning directories
// for known extensions, so cleanup never deletes unrelated files that merely
// match a naming convention. The two exceptions are waveform captures, which
// external simulator runs drop next to the build outputs without going
// through the pipeline, and the binary blobs, which the composer declares.
package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/pcotret/gigue/internal/artifact"
	"github.com/pcotret/gigue/internal/config"
	"github.com/pcotret/gigue/internal/ctxlog"
	"github.com/pcotret/gigue/internal/fsutil"
	"github.com/pcotret/gigue/internal/template"
)

// waveformExtensions are simulator waveform capture formats treated as
// transient even though the pipeline itself never produces them.
var waveformExtensions = []string{".vcd", ".fst"}

// Manager deletes artifacts on request, classified by tier.
type Manager struct {
	cfg      *config.Config
	manifest *artifact.Manifest
	spec     *template.Spec
}

// NewManager returns a cleanup manager over the build root.
func NewManager(cfg *config.Config, manifest *artifact.Manifest, spec *template.Spec) *Manager {
	return &Manager{cfg: cfg, manifest: manifest, spec: spec}
}

// CleanTransient removes the transient tier: objects, top-level dumps,
// wrapped-object intermediates, simulator logs, and waveform captures.
// Binary blobs and the per-unit namespace are left intact.
func (m *Manager) CleanTransient(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	paths := m.manifest.PathsInTier(artifact.TierTransient)
	if err := m.removeAll(ctx, paths); err != nil {
		return err
	}
	if err := m.manifest.Forget(paths...); err != nil {
		return err
	}

	waveforms, err := m.findWaveforms()
	if err != nil {
		return err
	}
	if err := m.removeAll(ctx, waveforms); err != nil {
		return err
	}

	logger.Info("Transient tier cleaned.", "artifacts", len(paths), "waveforms", len(waveforms))
	return nil
}

// CleanAll removes both tiers: everything CleanTransient removes, plus the
// persisted tier, the binary blobs, and finally the manifest itself. The
// build root is left structurally empty of generated files.
func (m *Manager) CleanAll(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	if err := m.CleanTransient(ctx); err != nil {
		return err
	}

	persisted := m.manifest.PathsInTier(artifact.TierPersisted)
	if err := m.removeAll(ctx, persisted); err != nil {
		return err
	}
	if err := m.manifest.Forget(persisted...); err != nil {
		return err
	}

	// Blobs are produced outside the pipeline and never appear in the
	// manifest; the composer's spec is their authoritative enumeration.
	if err := m.removeAll(ctx, m.spec.Blobs); err != nil {
		return err
	}

	if err := os.Remove(m.manifest.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &artifact.FilesystemError{Op: "removing", Path: m.manifest.Path(), Err: err}
	}

	// Drop the per-unit namespace directory if the clean emptied it.
	unitDir := filepath.Join(m.cfg.BuildDir, template.UnitNamespace)
	if err := os.Remove(unitDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debug("Unit namespace directory not removed.", "dir", unitDir, "error", err)
	}

	logger.Info("All tiers cleaned.", "persisted", len(persisted), "blobs", len(m.spec.Blobs))
	return nil
}

// removeAll deletes the given files, tolerating ones that are already gone.
func (m *Manager) removeAll(ctx context.Context, paths []string) error {
	logger := ctxlog.FromContext(ctx)
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return &artifact.FilesystemError{Op: "removing", Path: p, Err: err}
		}
		logger.Debug("Removed artifact.", "path", p)
	}
	return nil
}

// findWaveforms scans the build root for waveform captures.
func (m *Manager) findWaveforms() ([]string, error) {
	var found []string
	for _, ext := range waveformExtensions {
		files, err := fsutil.FindFilesByExtension(m.cfg.BuildDir, ext)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, &artifact.FilesystemError{Op: "scanning for waveforms in", Path: m.cfg.BuildDir, Err: err}
		}
		found = append(found, files...)
	}
	return found, nil
}

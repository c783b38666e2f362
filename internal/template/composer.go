// Package template resolves the parametrized entry-point template: which
// template source is assembled, where its object goes, and which pre-built
// binary blobs it embeds.
//
// Variants (general-purpose vs unit-test entry point) are selected purely by
// configuration. Adding a variant means adding a template source and naming
// it in the pipeline file; neither the graph nor the stage runner changes.
package template

import (
	"path/filepath"

	"github.com/pcotret/gigue/internal/config"
)

// Blob file names under the build root. The blobs are produced outside the
// pipeline (the code generator emits them) and are read-only inputs here.
const (
	InterruptBlob = "int.bin"
	JITBlob       = "jit.bin"
	UnitBlob      = "unit.bin"
)

// UnitNamespace is the sub-directory of the build root holding per-unit-test
// artifacts. Everything under it is classified persisted.
const UnitNamespace = "unit"

// Spec describes the composed entry-point artifact. The graph turns it into
// a template-object node whose inputs are the template source plus the blobs,
// so the blobs are guaranteed fresh before assembly is attempted.
type Spec struct {
	// Name is the selected template name.
	Name string
	// Source is the template assembly source file.
	Source string
	// Object is the assembled template object's output path.
	Object string
	// Blobs are the binary-blob artifact paths the template embeds, in the
	// order the template references them.
	Blobs []string
	// OutputDir is the namespace the final image and its derivatives live
	// in: the build root, or its unit/ sub-directory for the unit variant.
	OutputDir string
	// Unit reports whether the unit-test variant was selected.
	Unit bool
}

// Compose selects the entry-point template named by the configuration and
// declares its blob prerequisites.
func Compose(name, unitName string, cfg *config.Config) (*Spec, error) {
	selected := name
	unit := cfg.UseUnitTemplate
	if unit {
		selected = unitName
	}
	if selected == "" {
		return nil, &config.ConfigurationError{
			Field:  "template.name",
			Reason: "no entry-point template selected",
		}
	}

	outDir := cfg.BuildDir
	if unit {
		outDir = filepath.Join(cfg.BuildDir, UnitNamespace)
	}

	return &Spec{
		Name:   selected,
		Source: filepath.Join(cfg.TemplateDir, selected+".S"),
		Object: filepath.Join(outDir, selected+".o"),
		Blobs: []string{
			filepath.Join(cfg.BuildDir, InterruptBlob),
			filepath.Join(cfg.BuildDir, JITBlob),
			filepath.Join(cfg.BuildDir, UnitBlob),
		},
		OutputDir: outDir,
		Unit:      unit,
	}, nil
}

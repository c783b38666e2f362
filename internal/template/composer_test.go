package template_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pcotret/gigue/internal/config"
	"github.com/pcotret/gigue/internal/template"
)

func testConfig() *config.Config {
	return &config.Config{
		TemplateDir:      "template",
		BuildDir:         "bin",
		TemplateName:     "template",
		UnitTemplateName: "unit_template",
	}
}

func TestComposeGeneralVariant(t *testing.T) {
	cfg := testConfig()
	spec, err := template.Compose(cfg.TemplateName, cfg.UnitTemplateName, cfg)
	require.NoError(t, err)

	require.Equal(t, "template", spec.Name)
	require.Equal(t, filepath.Join("template", "template.S"), spec.Source)
	require.Equal(t, filepath.Join("bin", "template.o"), spec.Object)
	require.Equal(t, "bin", spec.OutputDir)
	require.False(t, spec.Unit)

	require.Equal(t, []string{
		filepath.Join("bin", "int.bin"),
		filepath.Join("bin", "jit.bin"),
		filepath.Join("bin", "unit.bin"),
	}, spec.Blobs)
}

func TestComposeUnitVariantSelectedByConfiguration(t *testing.T) {
	cfg := testConfig()
	cfg.UseUnitTemplate = true

	spec, err := template.Compose(cfg.TemplateName, cfg.UnitTemplateName, cfg)
	require.NoError(t, err)

	require.Equal(t, "unit_template", spec.Name)
	require.Equal(t, filepath.Join("template", "unit_template.S"), spec.Source)
	require.Equal(t, filepath.Join("bin", "unit"), spec.OutputDir)
	require.True(t, spec.Unit)
	// The blobs still live at the top of the build root.
	require.Equal(t, filepath.Join("bin", "int.bin"), spec.Blobs[0])
}

func TestComposeWithoutNameFails(t *testing.T) {
	cfg := testConfig()
	_, err := template.Compose("", "", cfg)

	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

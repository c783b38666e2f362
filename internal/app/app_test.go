package app_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pcotret/gigue/internal/app"
	"github.com/pcotret/gigue/internal/config"
	"github.com/pcotret/gigue/internal/stage"
	"github.com/pcotret/gigue/internal/testutil"
)

// writePipeline materializes the fixture's configuration as a pipeline file,
// the way the CLI consumes it.
func writePipeline(t *testing.T, p *testutil.Project, withSimulator bool) string {
	t.Helper()
	simBlock := ""
	if withSimulator {
		simBlock = fmt.Sprintf(`
simulator {
  root       = %q
  variant    = "DefaultConfig"
  max_cycles = 100000
}
`, p.Config.Simulator.Root)
	} else {
		t.Setenv("ROCKET", "")
	}

	content := fmt.Sprintf(`
toolchain {
  root          = %q
  prefix        = "riscv64-unknown-elf-"
  xlen          = 64
  linker_script = %q
}

layout {
  source_dir   = %q
  template_dir = %q
  build_dir    = %q
}
%s`,
		p.Config.ToolchainRoot,
		p.Config.LinkerScript,
		p.Config.SourceDir,
		p.Config.TemplateDir,
		p.Config.BuildDir,
		simBlock,
	)

	path := filepath.Join(p.Root, "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newApp(t *testing.T, configPath string) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), io.Discard, app.Options{
		ConfigPath: configPath,
		LogLevel:   "error",
		LogFormat:  "text",
		Workers:    4,
	})
	require.NoError(t, err)
	return a
}

func TestDumpBuildsImageAndBlobViews(t *testing.T) {
	p := testutil.NewProject(t)
	cfgPath := writePipeline(t, p, false)

	require.NoError(t, newApp(t, cfgPath).Dump(context.Background()))

	require.True(t, p.Exists("bin/out.dump"))
	require.True(t, p.Exists("bin/int.dump"))
	require.True(t, p.Exists("bin/jit.dump"))
	require.True(t, p.Exists("bin/unit.dump"))
}

func TestDumpIsIdempotent(t *testing.T) {
	p := testutil.NewProject(t)
	cfgPath := writePipeline(t, p, false)

	require.NoError(t, newApp(t, cfgPath).Dump(context.Background()))
	calls := p.ToolCalls(t)
	require.Greater(t, calls, 0)

	// A second run with no source or config change invokes zero tools.
	require.NoError(t, newApp(t, cfgPath).Dump(context.Background()))
	require.Equal(t, calls, p.ToolCalls(t))
}

func TestExecWithoutSimulatorFailsBeforeAnyToolRuns(t *testing.T) {
	p := testutil.NewProject(t)
	cfgPath := writePipeline(t, p, false)

	err := newApp(t, cfgPath).Exec(context.Background())
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Zero(t, p.ToolCalls(t), "a capability error must precede any tool invocation")
}

func TestExecProducesPrettyPrintedTraceLog(t *testing.T) {
	p := testutil.NewProject(t)
	cfgPath := writePipeline(t, p, true)

	require.NoError(t, newApp(t, cfgPath).Exec(context.Background()))

	content, err := os.ReadFile(p.Path("bin/out.log"))
	require.NoError(t, err)
	require.Contains(t, string(content), "DASM: C0: trace of")
}

func TestCompileFailureLeavesNoDownstreamArtifacts(t *testing.T) {
	p := testutil.NewProject(t)
	cfgPath := writePipeline(t, p, false)
	t.Setenv(testutil.FailEnv, "syntax error near token")

	err := newApp(t, cfgPath).Dump(context.Background())
	var failure *stage.Failure
	require.ErrorAs(t, err, &failure)

	require.False(t, p.Exists("bin/out.elf"))
	require.False(t, p.Exists("bin/out.dump"))
	for _, blob := range []string{"bin/int.bin", "bin/jit.bin", "bin/unit.bin"} {
		require.True(t, p.Exists(blob), "persisted blobs must be unmodified by a failed build")
	}
}

func TestCleanThenRebuild(t *testing.T) {
	p := testutil.NewProject(t)
	cfgPath := writePipeline(t, p, false)

	a := newApp(t, cfgPath)
	require.NoError(t, a.Dump(context.Background()))
	require.NoError(t, a.Clean(context.Background()))
	require.False(t, p.Exists("bin/out.dump"))

	// After a clean, the same targets build again from the blobs that
	// survived.
	require.NoError(t, newApp(t, cfgPath).Dump(context.Background()))
	require.True(t, p.Exists("bin/out.dump"))
}

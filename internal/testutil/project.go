// Package testutil provides a shared workspace fixture for pipeline tests.
//
// A Project is a throwaway source tree with pre-seeded blobs plus a stub
// cross toolchain: small shell scripts that stand in for gcc, objdump,
// objcopy, the rocket emulator, and spike-dasm. The stubs honor the real
// tools' calling conventions closely enough that the real recipes run
// against them unmodified, so tests exercise the genuine exec path.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pcotret/gigue/internal/config"
)

// CallLogEnv names the environment variable under which the stub tools
// append one line per invocation. Tests read the log to count external-tool
// invocations.
const CallLogEnv = "GIGUE_TEST_CALL_LOG"

// FailEnv names the environment variable that makes the stub compiler fail.
// Its value is echoed to stderr so tests can assert captured diagnostics.
const FailEnv = "GIGUE_TEST_FAIL_CC"

// Project is a self-contained pipeline workspace rooted in a temp directory.
type Project struct {
	Root    string
	Config  *config.Config
	CallLog string
}

// gccStub collects everything after each -o into the output and concatenates
// all source/object operands into it, covering both compile and link lines.
const gccStub = `#!/bin/sh
echo "gcc $*" >> "$GIGUE_TEST_CALL_LOG"
if [ -n "$GIGUE_TEST_FAIL_CC" ]; then
	echo "$GIGUE_TEST_FAIL_CC" 1>&2
	exit 1
fi
out=""
prev=""
for a in "$@"; do
	if [ "$prev" = "-o" ]; then out="$a"; fi
	prev="$a"
done
: > "$out"
for a in "$@"; do
	case "$a" in
	*.c|*.S|*.o)
		if [ -f "$a" ]; then cat "$a" >> "$out"; fi
		;;
	esac
done
`

// objdumpStub prints a listing of its input on stdout.
const objdumpStub = `#!/bin/sh
echo "objdump $*" >> "$GIGUE_TEST_CALL_LOG"
echo "Disassembly of $2:"
cat "$2"
`

// objcopyStub copies its second-to-last argument to its last argument.
const objcopyStub = `#!/bin/sh
echo "objcopy $*" >> "$GIGUE_TEST_CALL_LOG"
eval "in=\${$(($# - 1))}"
eval "out=\${$#}"
cp "$in" "$out"
`

// emulatorStub mimics the rocket emulator's verbose-mode convention: the
// architectural trace goes to stderr while stdout carries diagnostics.
const emulatorStub = `#!/bin/sh
echo "emulator $*" >> "$GIGUE_TEST_CALL_LOG"
img=""
for a in "$@"; do
	case "$a" in
	+*) ;;
	*) img="$a" ;;
	esac
done
echo "This emulator compiled with JTAG Remote Bitbang client."
echo "C0: trace of $img" 1>&2
cat "$img" 1>&2
`

// dasmStub pretty-prints trace tokens from stdin to stdout.
const dasmStub = `#!/bin/sh
echo "spike-dasm" >> "$GIGUE_TEST_CALL_LOG"
sed 's/^/DASM: /'
`

// NewProject lays out a workspace with three sources, the two template
// variants, a linker script, and the three binary blobs, and installs the
// stub toolchain and simulator. The returned config points at all of it.
func NewProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()

	dirs := []string{"src", "template", "bin", "toolchain/bin", "rocket"}
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}

	files := map[string]string{
		"src/a.c":              "int a(void) { return 1; }\n",
		"src/b.c":              "int b(void) { return 2; }\n",
		"src/c.S":              "nop\n",
		"template/template.S":  ".incbin \"bin/int.bin\"\n.incbin \"bin/jit.bin\"\n.incbin \"bin/unit.bin\"\n",
		"template/unit_template.S": ".incbin \"bin/unit.bin\"\n",
		"template/link.ld":     "SECTIONS { }\n",
		"bin/int.bin":          "INTERRUPT-BLOB",
		"bin/jit.bin":          "JIT-BLOB",
		"bin/unit.bin":         "UNIT-BLOB",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}

	prefix := "riscv64-unknown-elf-"
	tools := map[string]string{
		"toolchain/bin/" + prefix + "gcc":     gccStub,
		"toolchain/bin/" + prefix + "objdump": objdumpStub,
		"toolchain/bin/" + prefix + "objcopy": objcopyStub,
		"rocket/emulator-freechips.rocketchip.system-DefaultConfig": emulatorStub,
		"rocket/spike-dasm": dasmStub,
	}
	for name, script := range tools {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(script), 0o755))
	}

	callLog := filepath.Join(root, "calls.log")
	t.Setenv(CallLogEnv, callLog)

	cfg := &config.Config{
		XLEN:             64,
		ToolchainRoot:    filepath.Join(root, "toolchain"),
		ToolPrefix:       prefix,
		LinkerScript:     filepath.Join(root, "template", "link.ld"),
		SourceDir:        filepath.Join(root, "src"),
		TemplateDir:      filepath.Join(root, "template"),
		BuildDir:         filepath.Join(root, "bin"),
		TemplateName:     "template",
		UnitTemplateName: "unit_template",
		Simulator: &config.Simulator{
			Root:      filepath.Join(root, "rocket"),
			Variant:   "DefaultConfig",
			MaxCycles: 100000,
		},
	}

	return &Project{Root: root, Config: cfg, CallLog: callLog}
}

// ToolCalls returns the number of external-tool invocations recorded so far.
func (p *Project) ToolCalls(t *testing.T) int {
	t.Helper()
	data, err := os.ReadFile(p.CallLog)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	return count
}

// Touch rewrites a workspace file with new content, changing its
// fingerprint.
func (p *Project) Touch(t *testing.T, rel string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(p.Root, rel), []byte(content), 0o644))
}

// Exists reports whether a workspace-relative path exists.
func (p *Project) Exists(rel string) bool {
	_, err := os.Stat(filepath.Join(p.Root, rel))
	return err == nil
}

// Path resolves a workspace-relative path.
func (p *Project) Path(rel string) string {
	return filepath.Join(p.Root, rel)
}

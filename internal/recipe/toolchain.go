package recipe

import (
	"fmt"

	"github.com/pcotret/gigue/internal/artifact"
	"github.com/pcotret/gigue/internal/config"
)

// Default returns a registry populated with the standard toolchain recipes.
func Default() *Registry {
	r := NewRegistry()
	r.Register(artifact.KindObject, buildCompile)
	r.Register(artifact.KindTemplateObject, buildCompile)
	r.Register(artifact.KindLinkedImage, buildLink)
	r.Register(artifact.KindDisasmDump, buildDisassemble)
	r.Register(artifact.KindWrappedObject, buildWrap)
	r.Register(artifact.KindWrappedDump, buildDisassemble)
	r.Register(artifact.KindSimLog, buildSimulate)
	return r
}

// buildCompile compiles a C source or assembles an assembly source through
// the compiler driver. The driver dispatches on the input extension, so one
// recipe covers .c and .S, and the entry-point template as well.
func buildCompile(req Request, cfg *config.Config) (*Invocation, error) {
	if len(req.Inputs) == 0 {
		return nil, fmt.Errorf("compile recipe for %s: no input source", req.Output)
	}
	args := []string{
		"-march=" + cfg.March(),
		"-mabi=" + cfg.MABI(),
	}
	args = append(args, cfg.CFlags...)
	args = append(args, "-c", req.Inputs[0], "-o", req.StagedOutput)
	return &Invocation{
		Stage: "compile",
		Path:  cfg.Tool("gcc"),
		Args:  args,
	}, nil
}

// buildLink links all objects (template object included) into the final
// image, through the same compiler driver.
func buildLink(req Request, cfg *config.Config) (*Invocation, error) {
	if len(req.Inputs) == 0 {
		return nil, fmt.Errorf("link recipe for %s: no input objects", req.Output)
	}
	args := []string{
		"-march=" + cfg.March(),
		"-mabi=" + cfg.MABI(),
		"-nostdlib",
		"-nostartfiles",
		"-static",
		"-T", cfg.LinkerScript,
	}
	args = append(args, cfg.LDFlags...)
	args = append(args, req.Inputs...)
	args = append(args, "-o", req.StagedOutput)
	return &Invocation{
		Stage: "link",
		Path:  cfg.Tool("gcc"),
		Args:  args,
	}, nil
}

// buildDisassemble dumps a linked image or wrapped object. The listing is
// the tool's stdout.
func buildDisassemble(req Request, cfg *config.Config) (*Invocation, error) {
	if len(req.Inputs) != 1 {
		return nil, fmt.Errorf("disassemble recipe for %s: want exactly one input, got %d", req.Output, len(req.Inputs))
	}
	return &Invocation{
		Stage:            "disassemble",
		Path:             cfg.Tool("objdump"),
		Args:             []string{"-D", req.Inputs[0]},
		StdoutIsArtifact: true,
	}, nil
}

// buildWrap reinterprets a raw binary blob as a relocatable object, renaming
// the payload into the text section so the disassembler treats it as code.
func buildWrap(req Request, cfg *config.Config) (*Invocation, error) {
	if len(req.Inputs) != 1 {
		return nil, fmt.Errorf("wrap recipe for %s: want exactly one input blob, got %d", req.Output, len(req.Inputs))
	}
	return &Invocation{
		Stage: "wrap",
		Path:  cfg.Tool("objcopy"),
		Args: []string{
			"-I", "binary",
			"-O", cfg.ObjcopyFormat(),
			"-B", "riscv",
			"--rename-section", ".data=.text",
			req.Inputs[0],
			req.StagedOutput,
		},
	}, nil
}

// buildSimulate runs the linked image through the cycle-accurate emulator in
// verbose trace mode and pretty-prints the trace. The emulator writes the
// architectural trace on stderr, not stdout; Invocation.Pretty tells the
// stage runner to apply the stream swap.
func buildSimulate(req Request, cfg *config.Config) (*Invocation, error) {
	if len(req.Inputs) != 1 {
		return nil, fmt.Errorf("simulate recipe for %s: want exactly one input image, got %d", req.Output, len(req.Inputs))
	}
	if err := cfg.RequireSimulator(); err != nil {
		return nil, err
	}
	emulator := cfg.SimulatorTool("emulator-freechips.rocketchip.system-" + cfg.Simulator.Variant)
	return &Invocation{
		Stage: "simulate",
		Path:  emulator,
		Args: []string{
			fmt.Sprintf("+max-cycles=%d", cfg.Simulator.MaxCycles),
			"+verbose",
			req.Inputs[0],
		},
		Pretty: &Invocation{
			Stage: "pretty-print",
			Path:  cfg.SimulatorTool("spike-dasm"),
		},
	}, nil
}

// Package stage executes one artifact node's recipe by invoking the
// corresponding external tool and publishing the output atomically.
//
// Every stage writes to a temporary file in the output directory and renames
// it into place only on success, so a reader never observes a truncated
// artifact and a failed build leaves the previously published artifact (if
// any) untouched.
package stage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pcotret/gigue/internal/artifact"
	"github.com/pcotret/gigue/internal/config"
	"github.com/pcotret/gigue/internal/ctxlog"
	"github.com/pcotret/gigue/internal/graph"
	"github.com/pcotret/gigue/internal/recipe"
)

// Failure reports a non-zero exit from a wrapped external tool, with enough
// context for a human to re-run the command manually.
type Failure struct {
	// Stage is the stage name from the recipe ("compile", "link", ...).
	Stage string
	// Command is the full command line that failed.
	Command string
	// Diagnostics is the tool's captured diagnostic output.
	Diagnostics string
	// Err is the underlying process error.
	Err error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s stage failed: %s: %v", f.Stage, f.Command, f.Err)
	if diag := strings.TrimSpace(f.Diagnostics); diag != "" {
		msg += "\n" + diag
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Runner executes recipes for plan nodes.
type Runner struct {
	cfg      *config.Config
	recipes  *recipe.Registry
	manifest *artifact.Manifest
}

// NewRunner returns a stage runner recording publishes into the manifest.
func NewRunner(cfg *config.Config, recipes *recipe.Registry, manifest *artifact.Manifest) *Runner {
	return &Runner{cfg: cfg, recipes: recipes, manifest: manifest}
}

// Run builds one node: it stages the tool's output in a temporary file,
// executes the invocation synchronously, and on success renames the output
// into place and records the node's fingerprint in the manifest. On failure
// the temporary file is discarded and the previously published artifact is
// left as it was.
func (r *Runner) Run(ctx context.Context, node *graph.Node) error {
	logger := ctxlog.FromContext(ctx).With("artifact", node.Path, "kind", node.Kind.String())

	outDir := filepath.Dir(node.Path)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return &artifact.FilesystemError{Op: "creating output directory", Path: outDir, Err: err}
	}

	staged, err := os.CreateTemp(outDir, filepath.Base(node.Path)+".stage.*")
	if err != nil {
		return &artifact.FilesystemError{Op: "staging output for", Path: node.Path, Err: err}
	}
	stagedPath := staged.Name()
	// CreateTemp's 0600 would survive the rename; published artifacts are
	// ordinary build products.
	if err := staged.Chmod(0o644); err != nil {
		staged.Close()
		os.Remove(stagedPath)
		return &artifact.FilesystemError{Op: "staging output for", Path: node.Path, Err: err}
	}
	published := false
	defer func() {
		if !published {
			os.Remove(stagedPath)
		}
	}()

	inv, err := r.recipes.Build(node.Kind, recipe.Request{
		Output:       node.Path,
		StagedOutput: stagedPath,
		Inputs:       node.Inputs,
	}, r.cfg)
	if err != nil {
		staged.Close()
		return err
	}

	logger.Debug("Running stage.", "stage", inv.Stage, "command", commandLine(inv))
	if inv.Pretty != nil {
		err = runTracePipeline(ctx, inv, staged)
	} else {
		err = runTool(ctx, inv, staged)
	}
	closeErr := staged.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return &artifact.FilesystemError{Op: "flushing staged output for", Path: node.Path, Err: closeErr}
	}

	if err := os.Rename(stagedPath, node.Path); err != nil {
		return &artifact.FilesystemError{Op: "publishing", Path: node.Path, Err: err}
	}
	published = true

	if err := r.manifest.Record(node.Path, node.Fingerprint, node.Kind, node.Tier); err != nil {
		return err
	}
	logger.Debug("Stage published.", "stage", inv.Stage)
	return nil
}

// runTool executes a single-process invocation. The tool either writes the
// staged output path itself or, for StdoutIsArtifact recipes, streams the
// artifact on stdout. Diagnostics are captured from stderr. Context
// cancellation kills the subprocess; the partial staged output is discarded
// by the caller.
func runTool(ctx context.Context, inv *recipe.Invocation, staged *os.File) error {
	var diag bytes.Buffer
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Stderr = &diag
	if inv.StdoutIsArtifact {
		cmd.Stdout = staged
	} else {
		cmd.Stdout = &diag
	}

	if err := cmd.Run(); err != nil {
		return &Failure{
			Stage:       inv.Stage,
			Command:     commandLine(inv),
			Diagnostics: diag.String(),
			Err:         err,
		}
	}
	return nil
}

// runTracePipeline executes the simulator stage. The simulator's verbose
// mode interleaves the architectural trace with diagnostics across its two
// output streams in the opposite of the usual convention: the trace arrives
// on stderr, while stdout carries ordinary diagnostics. The two streams are
// therefore swapped: stderr is piped into the pretty-printer and stdout is
// captured as diagnostics before the staged log is written. The swap is a
// contract of the simulator integration; a different simulator needs this
// function verified against its actual behavior, nothing else.
func runTracePipeline(ctx context.Context, inv *recipe.Invocation, staged *os.File) error {
	var simDiag, prettyDiag bytes.Buffer

	sim := exec.CommandContext(ctx, inv.Path, inv.Args...)
	sim.Dir = inv.Dir
	sim.Stdout = &simDiag

	trace, err := sim.StderrPipe()
	if err != nil {
		return &Failure{Stage: inv.Stage, Command: commandLine(inv), Err: err}
	}

	pretty := exec.CommandContext(ctx, inv.Pretty.Path, inv.Pretty.Args...)
	pretty.Stdin = trace
	pretty.Stdout = staged
	pretty.Stderr = &prettyDiag

	if err := pretty.Start(); err != nil {
		return &Failure{Stage: inv.Pretty.Stage, Command: commandLine(inv.Pretty), Err: err}
	}
	if err := sim.Start(); err != nil {
		pretty.Process.Kill()
		pretty.Wait()
		return &Failure{Stage: inv.Stage, Command: commandLine(inv), Err: err}
	}

	simErr := sim.Wait()
	prettyErr := pretty.Wait()

	if simErr != nil {
		return &Failure{
			Stage:       inv.Stage,
			Command:     commandLine(inv),
			Diagnostics: simDiag.String(),
			Err:         simErr,
		}
	}
	if prettyErr != nil {
		return &Failure{
			Stage:       inv.Pretty.Stage,
			Command:     commandLine(inv.Pretty),
			Diagnostics: prettyDiag.String(),
			Err:         prettyErr,
		}
	}
	return nil
}

// commandLine renders an invocation for failure messages and logs.
func commandLine(inv *recipe.Invocation) string {
	return strings.Join(append([]string{inv.Path}, inv.Args...), " ")
}

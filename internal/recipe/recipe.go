// Package recipe maps artifact kinds to external-tool invocations.
//
// The mapping is an explicit registry looked up by declared kind, not a set
// of wildcard path rules, so there is never ambiguity about which tool
// produces an artifact. Builders are pure: given the same request and config
// they return the same invocation, and nothing here touches the filesystem
// or spawns a process.
package recipe

import (
	"fmt"

	"github.com/pcotret/gigue/internal/artifact"
	"github.com/pcotret/gigue/internal/config"
)

// Invocation is a fully resolved external-tool command. The stage runner
// executes it synchronously and publishes its output atomically.
type Invocation struct {
	// Stage is the human-readable stage name carried into failures.
	Stage string
	// Path is the tool executable.
	Path string
	// Args is the argument vector, excluding the executable itself.
	Args []string
	// Dir is the working directory; empty means the process working
	// directory. Template assembly relies on this so `.incbin` paths in the
	// template source resolve against the project root.
	Dir string
	// StdoutIsArtifact marks tools whose artifact payload is their standard
	// output stream (disassembly dumps). The runner streams stdout into the
	// staged output file.
	StdoutIsArtifact bool
	// Pretty, when non-nil, marks the simulator trace protocol: the main
	// tool's *stderr* carries the raw trace, its stdout is ordinary
	// diagnostics, and the trace is piped through this pretty-printer before
	// being written to the staged output. See stage.runTracePipeline.
	Pretty *Invocation
}

// Request identifies the artifact a builder must produce.
type Request struct {
	// Output is the artifact's final path. Builders that name the output on
	// the command line must use StagedOutput instead.
	Output string
	// StagedOutput is the temporary path the tool must actually write;
	// the runner renames it to Output only on success.
	StagedOutput string
	// Inputs are the artifact's input paths in declaration order.
	Inputs []string
}

// BuilderFunc constructs the invocation for one artifact kind.
type BuilderFunc func(req Request, cfg *config.Config) (*Invocation, error)

// ResolutionError reports that no recipe is registered for a requested
// artifact kind.
type ResolutionError struct {
	Kind   artifact.Kind
	Output string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no recipe registered for %s artifact %q", e.Kind, e.Output)
}

// Registry maps artifact kinds to builders.
type Registry struct {
	builders map[artifact.Kind]BuilderFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[artifact.Kind]BuilderFunc)}
}

// Register adds a builder for a kind. Registering the same kind twice is a
// programmer error.
func (r *Registry) Register(kind artifact.Kind, fn BuilderFunc) {
	if _, exists := r.builders[kind]; exists {
		panic(fmt.Sprintf("recipe for kind %q already registered", kind))
	}
	r.builders[kind] = fn
}

// Build resolves the builder for a kind and constructs the invocation.
func (r *Registry) Build(kind artifact.Kind, req Request, cfg *config.Config) (*Invocation, error) {
	fn, ok := r.builders[kind]
	if !ok {
		return nil, &ResolutionError{Kind: kind, Output: req.Output}
	}
	return fn(req, cfg)
}

// ID returns the recipe identity string folded into fingerprints. Changing a
// recipe's shape must invalidate everything it produced.
func ID(kind artifact.Kind) string {
	return "recipe/" + kind.String()
}

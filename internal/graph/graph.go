// Package graph discovers the artifact namespace, declares every artifact
// node with its inputs and recipe kind, and resolves build plans: the
// topologically ordered set of stale nodes needed to produce a target.
package graph

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pcotret/gigue/internal/artifact"
	"github.com/pcotret/gigue/internal/config"
	"github.com/pcotret/gigue/internal/ctxlog"
	"github.com/pcotret/gigue/internal/fsutil"
	"github.com/pcotret/gigue/internal/template"
)

// Fixed base names of the image-level artifacts inside the output namespace.
const (
	ImageName  = "out.elf"
	DumpName   = "out.dump"
	SimLogName = "out.log"
)

// CycleError reports a dependency cycle. The fixed edge shapes should make
// this impossible, but the graph detects it rather than assuming it.
type CycleError struct {
	Path string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving %q", e.Path)
}

// UnknownArtifactError reports a requested target no declared artifact
// matches.
type UnknownArtifactError struct {
	Path string
}

func (e *UnknownArtifactError) Error() string {
	return fmt.Sprintf("no declared artifact matches %q", e.Path)
}

// Graph is the full artifact dependency graph for one configuration.
type Graph struct {
	Nodes map[string]*Node

	cfg  *config.Config
	spec *template.Spec
}

// Discover enumerates the source files and declares every artifact node and
// dependency edge. The template composer's spec supplies the entry-point
// template and its blob prerequisites; nothing about the template is
// hard-coded here.
func Discover(ctx context.Context, cfg *config.Config, spec *template.Spec) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	g := &Graph{
		Nodes: make(map[string]*Node),
		cfg:   cfg,
		spec:  spec,
	}

	// Source discovery: each compiled or assembled source maps to one object
	// in the build root.
	var sources []string
	for _, ext := range []string{".c", ".S"} {
		found, err := fsutil.FindFilesByExtension(cfg.SourceDir, ext)
		if err != nil {
			return nil, &artifact.FilesystemError{Op: "discovering sources in", Path: cfg.SourceDir, Err: err}
		}
		sources = append(sources, found...)
	}
	logger.Debug("Discovered sources.", "count", len(sources), "dir", cfg.SourceDir)

	var objects []string
	for _, src := range sources {
		obj := filepath.Join(cfg.BuildDir, objectName(src))
		g.add(&Node{Path: obj, Kind: artifact.KindObject, Inputs: []string{src}})
		objects = append(objects, obj)
	}

	// Binary blobs are produced outside the pipeline; they participate as
	// read-only leaf artifacts.
	for _, blob := range spec.Blobs {
		g.add(&Node{Path: blob, Kind: artifact.KindBinaryBlob})
	}

	// The template object embeds the blobs, so they are declared as inputs
	// and must be fresh before assembly is attempted.
	templateInputs := append([]string{spec.Source}, spec.Blobs...)
	g.add(&Node{Path: spec.Object, Kind: artifact.KindTemplateObject, Inputs: templateInputs})
	g.link(spec.Object, spec.Blobs...)

	// Linked image: all compiled objects, then the template object, matching
	// the link line's operand order.
	image := filepath.Join(spec.OutputDir, ImageName)
	imageInputs := append(append([]string{}, objects...), spec.Object)
	g.add(&Node{Path: image, Kind: artifact.KindLinkedImage, Inputs: imageInputs})
	g.link(image, imageInputs...)

	// Image disassembly.
	dump := filepath.Join(spec.OutputDir, DumpName)
	g.add(&Node{Path: dump, Kind: artifact.KindDisasmDump, Inputs: []string{image}})
	g.link(dump, image)

	// Each blob gets a wrapped-object intermediate and a disassembly of it.
	for _, blob := range spec.Blobs {
		wrapped := blob + ".o"
		g.add(&Node{Path: wrapped, Kind: artifact.KindWrappedObject, Inputs: []string{blob}})
		g.link(wrapped, blob)

		wdump := wrappedDumpName(blob)
		g.add(&Node{Path: wdump, Kind: artifact.KindWrappedDump, Inputs: []string{wrapped}})
		g.link(wdump, wrapped)
	}

	// Simulator trace log. The node exists regardless of the simulator
	// capability; requesting it without the capability fails at plan time
	// with a ConfigurationError, before any tool runs.
	simLog := filepath.Join(spec.OutputDir, SimLogName)
	g.add(&Node{Path: simLog, Kind: artifact.KindSimLog, Inputs: []string{image}})
	g.link(simLog, image)

	logger.Debug("Artifact graph discovered.", "node_count", len(g.Nodes))
	return g, nil
}

// add declares a node, classifying its cleanup tier from kind and namespace.
func (g *Graph) add(n *Node) {
	n.Tier = g.classify(n)
	n.Deps = make(map[string]*Node)
	n.Dependents = make(map[string]*Node)
	g.Nodes[n.Path] = n
}

// link records dependency edges from node path to each input that is itself
// a declared artifact. Inputs that are raw source files get no edge.
func (g *Graph) link(path string, inputs ...string) {
	n := g.Nodes[path]
	for _, in := range inputs {
		if dep, ok := g.Nodes[in]; ok {
			n.addDep(dep)
		}
	}
}

// classify assigns the cleanup tier. Raw blobs and the per-unit image and
// dumps are persisted; objects, top-level dumps, wrapped intermediates and
// simulator logs are transient.
func (g *Graph) classify(n *Node) artifact.Tier {
	if n.Kind == artifact.KindBinaryBlob {
		return artifact.TierPersisted
	}
	if n.Kind == artifact.KindSimLog {
		return artifact.TierTransient
	}
	inUnitNamespace := g.spec.Unit && strings.HasPrefix(n.Path, g.spec.OutputDir+string(filepath.Separator))
	if inUnitNamespace {
		switch n.Kind {
		case artifact.KindLinkedImage, artifact.KindDisasmDump, artifact.KindWrappedDump:
			return artifact.TierPersisted
		}
	}
	return artifact.TierTransient
}

// Image returns the linked image's path.
func (g *Graph) Image() string {
	return filepath.Join(g.spec.OutputDir, ImageName)
}

// DumpTargets returns the disassembly view targets: the image dump plus one
// wrapped dump per binary blob.
func (g *Graph) DumpTargets() []string {
	targets := []string{filepath.Join(g.spec.OutputDir, DumpName)}
	for _, blob := range g.spec.Blobs {
		targets = append(targets, wrappedDumpName(blob))
	}
	return targets
}

// SimLogTarget returns the simulator trace log's path.
func (g *Graph) SimLogTarget() string {
	return filepath.Join(g.spec.OutputDir, SimLogName)
}

// detectCycles checks for circular dependencies in the graph using DFS.
func (g *Graph) detectCycles() error {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(node *Node) error
	visit = func(node *Node) error {
		visiting[node.Path] = true
		for _, dep := range node.Deps {
			if visiting[dep.Path] {
				return &CycleError{Path: dep.Path}
			}
			if !visited[dep.Path] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		delete(visiting, node.Path)
		visited[node.Path] = true
		return nil
	}

	for _, node := range g.Nodes {
		if !visited[node.Path] {
			if err := visit(node); err != nil {
				return err
			}
		}
	}
	return nil
}

// objectName maps a source file to its object's base name.
func objectName(src string) string {
	base := filepath.Base(src)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".o"
}

// wrappedDumpName maps a blob path to its disassembly listing's path, next
// to the blob itself.
func wrappedDumpName(blob string) string {
	base := filepath.Base(blob)
	return filepath.Join(filepath.Dir(blob), strings.TrimSuffix(base, filepath.Ext(base))+".dump")
}

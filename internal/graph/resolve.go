package graph

import (
	"context"
	"os"
	"sort"

	"github.com/pcotret/gigue/internal/artifact"
	"github.com/pcotret/gigue/internal/ctxlog"
	"github.com/pcotret/gigue/internal/recipe"
)

// Plan is an ordered build plan: every input of a node precedes the node,
// and only stale nodes are included.
type Plan struct {
	// Nodes is the topologically ordered list of stale nodes to build.
	Nodes []*Node

	members map[string]*Node
}

// Empty reports whether the plan requires any work. Re-resolving an
// unchanged target must yield an empty plan.
func (p *Plan) Empty() bool {
	return len(p.Nodes) == 0
}

// Len returns the number of planned nodes.
func (p *Plan) Len() int {
	return len(p.Nodes)
}

// Contains reports whether the artifact at path is part of the plan.
func (p *Plan) Contains(path string) bool {
	_, ok := p.members[path]
	return ok
}

// Resolve computes the build plan for the given targets against the publish
// manifest. It walks the ancestor closure of the targets in dependency
// order, computes each node's expected fingerprint, and includes a node only
// if it is stale: its output is missing, unrecorded, or its fingerprint no
// longer matches the manifest. All errors here surface before any external
// tool runs.
func (g *Graph) Resolve(ctx context.Context, man *artifact.Manifest, recipes *recipe.Registry, targets ...string) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)

	for _, target := range targets {
		if _, ok := g.Nodes[target]; !ok {
			return nil, &UnknownArtifactError{Path: target}
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	order := g.topoClosure(targets)
	logger.Debug("Resolved ancestor closure.", "targets", targets, "closure_size", len(order))

	plan := &Plan{members: make(map[string]*Node)}
	sourceHashes := make(map[string]string)

	for _, node := range order {
		if !node.Kind.Derived() {
			// A leaf blob is never built; it must exist, and its content
			// hash feeds its dependents' fingerprints.
			fp, err := artifact.HashFile(node.Path)
			if err != nil {
				return nil, err
			}
			node.Fingerprint = fp
			continue
		}

		fp, err := g.expectedFingerprint(node, recipes, sourceHashes)
		if err != nil {
			return nil, err
		}
		node.Fingerprint = fp

		if g.stale(node, man) {
			node.SetState(Pending)
			plan.Nodes = append(plan.Nodes, node)
			plan.members[node.Path] = node
		}
	}

	// Dependency counters cover only planned nodes: a fresh dependency is
	// already satisfied.
	for _, node := range plan.Nodes {
		var unmet int32
		for depPath := range node.Deps {
			if plan.Contains(depPath) {
				unmet++
			}
		}
		node.SetDepCount(unmet)
	}

	logger.Debug("Build plan resolved.", "planned", plan.Len())
	return plan, nil
}

// topoClosure returns the ancestor closure of the targets in topological
// order (dependencies first). Dependency iteration is sorted so plans are
// deterministic.
func (g *Graph) topoClosure(targets []string) []*Node {
	visited := make(map[string]bool)
	var order []*Node

	var visit func(n *Node)
	visit = func(n *Node) {
		if visited[n.Path] {
			return
		}
		visited[n.Path] = true
		depPaths := make([]string, 0, len(n.Deps))
		for p := range n.Deps {
			depPaths = append(depPaths, p)
		}
		sort.Strings(depPaths)
		for _, p := range depPaths {
			visit(n.Deps[p])
		}
		order = append(order, n)
	}

	for _, target := range targets {
		visit(g.Nodes[target])
	}
	return order
}

// expectedFingerprint computes a derived node's content-address: the recipe
// identity, the exact argument vector the recipe would run, and the
// fingerprints of all inputs in declaration order. A flag change therefore
// invalidates every artifact compiled with that flag, with no reliance on
// timestamps.
func (g *Graph) expectedFingerprint(node *Node, recipes *recipe.Registry, sourceHashes map[string]string) (string, error) {
	// The canonical invocation uses the final output path as the staged
	// output, so temp-file names never leak into fingerprints.
	inv, err := recipes.Build(node.Kind, recipe.Request{
		Output:       node.Path,
		StagedOutput: node.Path,
		Inputs:       node.Inputs,
	}, g.cfg)
	if err != nil {
		return "", err
	}

	argv := append([]string{inv.Path}, inv.Args...)
	if inv.Pretty != nil {
		argv = append(argv, inv.Pretty.Path)
		argv = append(argv, inv.Pretty.Args...)
	}

	var inputFPs []string
	for _, in := range node.Inputs {
		if dep, ok := node.Deps[in]; ok {
			inputFPs = append(inputFPs, dep.Fingerprint)
			continue
		}
		// Raw source file: content hash, memoized across nodes.
		fp, ok := sourceHashes[in]
		if !ok {
			fp, err = artifact.HashFile(in)
			if err != nil {
				return "", err
			}
			sourceHashes[in] = fp
		}
		inputFPs = append(inputFPs, fp)
	}

	return artifact.Fingerprint(recipe.ID(node.Kind), argv, inputFPs), nil
}

// stale reports whether a derived node needs (re)building.
func (g *Graph) stale(node *Node, man *artifact.Manifest) bool {
	if _, err := os.Stat(node.Path); err != nil {
		return true
	}
	entry, ok := man.Lookup(node.Path)
	if !ok {
		return true
	}
	return entry.Fingerprint != node.Fingerprint
}

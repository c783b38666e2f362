package graph

import (
	"sync"
	"sync/atomic"

	"github.com/pcotret/gigue/internal/artifact"
)

// Node is a single vertex in the artifact graph: one declared build output
// together with its inputs and the recipe kind that produces it.
type Node struct {
	// Path is the artifact's output path and its identity in the graph.
	Path string
	// Kind selects the recipe that produces this artifact.
	Kind artifact.Kind
	// Tier is the artifact's cleanup class.
	Tier artifact.Tier

	// Inputs are the artifact's input paths in declaration order: raw source
	// files and other artifacts alike. Recipes consume this ordering.
	Inputs []string

	// Deps holds the input nodes that are themselves artifacts. Raw source
	// files appear only in Inputs.
	Deps map[string]*Node
	// Dependents holds the nodes that consume this artifact.
	Dependents map[string]*Node

	// Fingerprint is the expected content-address computed during Resolve,
	// recorded in the manifest on successful publish.
	Fingerprint string

	// Error stores any error that occurred while building this node.
	Error error

	// depCount counts unbuilt dependencies within the current plan.
	depCount atomic.Int32
	// state is the node's build state, managed atomically.
	state atomic.Int32
	// skipOnce ensures a node is marked skipped and accounted exactly once.
	skipOnce sync.Once
}

// State represents the build state of a node.
type State int32

const (
	// Pending indicates the node is waiting for its dependencies.
	Pending State = iota
	// Running indicates a worker is currently building the node.
	Running
	// Done indicates the node was built and published successfully.
	Done
	// Failed indicates the node failed or was skipped.
	Failed
)

// SetDepCount sets the unmet-dependency counter.
func (n *Node) SetDepCount(count int32) {
	n.depCount.Store(count)
}

// DepCount atomically returns the current number of unmet dependencies.
func (n *Node) DepCount() int32 {
	return n.depCount.Load()
}

// DecrementDepCount atomically decrements the dependency counter and returns
// the new value.
func (n *Node) DecrementDepCount() int32 {
	return n.depCount.Add(-1)
}

// SetState atomically sets the node's build state.
func (n *Node) SetState(s State) {
	n.state.Store(int32(s))
}

// GetState atomically retrieves the node's build state.
func (n *Node) GetState() State {
	return State(n.state.Load())
}

// Skip runs f exactly once, making concurrent skip attempts safe.
func (n *Node) Skip(f func()) {
	n.skipOnce.Do(f)
}

// addDep links dep as an input artifact of n, in both directions.
func (n *Node) addDep(dep *Node) {
	n.Deps[dep.Path] = dep
	dep.Dependents[n.Path] = n
}

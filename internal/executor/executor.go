// Package executor runs a build plan concurrently under a bounded worker
// pool. Independent branches of the plan execute in parallel; a node becomes
// ready only when every planned dependency has published. On the first
// failure the run context is cancelled, in-flight tool subprocesses are
// terminated, and all downstream dependents are skipped without being
// attempted.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pcotret/gigue/internal/ctxlog"
	"github.com/pcotret/gigue/internal/graph"
	"github.com/pcotret/gigue/internal/stage"
)

// DefaultWorkers is the worker-pool size used when the caller does not
// choose one.
const DefaultWorkers = 4

// Executor drives one build plan to completion.
type Executor struct {
	plan       *graph.Plan
	runner     *stage.Runner
	numWorkers int
	wg         sync.WaitGroup
}

// New creates an executor for a plan.
func New(plan *graph.Plan, runner *stage.Runner, workers int) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Executor{plan: plan, runner: runner, numWorkers: workers}
}

// Run executes the whole plan and returns an error if any node fails. It
// respects the cancellation signal from the provided context.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *graph.Node, e.plan.Len())
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootCount := 0
	for _, node := range e.plan.Nodes {
		if node.DepCount() == 0 {
			readyChan <- node
			rootCount++
		}
	}
	logger.Debug("Executor initialized.", "roots", rootCount, "planned", e.plan.Len())

	e.wg.Add(e.plan.Len())

	workers := e.numWorkers
	if workers > e.plan.Len() {
		workers = e.plan.Len()
	}
	for i := 0; i < workers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)

	var failedNodes []string
	var rootCauseError error
	for _, node := range e.plan.Nodes {
		if node.GetState() != graph.Failed {
			continue
		}
		logger.Error("Node failed.", "artifact", node.Path, "error", node.Error)
		// A "skipped" error is a symptom, not a cause.
		if node.Error != nil && !strings.HasPrefix(node.Error.Error(), "skipped") && !errors.Is(node.Error, context.Canceled) {
			failedNodes = append(failedNodes, node.Path)
			if rootCauseError == nil {
				rootCauseError = node.Error
			}
		}
	}

	if rootCauseError != nil {
		return fmt.Errorf("build failed for %s: %w", strings.Join(failedNodes, ", "), rootCauseError)
	}
	return nil
}

// skipDependents recursively marks all planned downstream nodes as failed
// and balances the WaitGroup for each, so they are never attempted.
func (e *Executor) skipDependents(ctx context.Context, node *graph.Node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range node.Dependents {
		if !e.plan.Contains(dependent.Path) {
			continue
		}
		dep := dependent
		dep.Skip(func() {
			logger.Warn("Skipping dependent due to upstream failure.", "artifact", dep.Path, "failed_dependency", node.Path)
			dep.SetState(graph.Failed)
			dep.Error = fmt.Errorf("skipped due to upstream failure of '%s'", node.Path)
			e.wg.Done()
			e.skipDependents(ctx, dep)
		})
	}
}

// worker is the processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *graph.Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)

	for node := range readyChan {
		workerLogger := logger.With("workerID", workerID, "artifact", node.Path)

		if ctx.Err() != nil {
			n := node
			n.Skip(func() {
				workerLogger.Warn("Context cancelled, skipping node.")
				n.SetState(graph.Failed)
				n.Error = ctx.Err()
				e.wg.Done()
				// A drained node's planned dependents will never be
				// decremented; skip them too or Wait never returns.
				e.skipDependents(ctx, n)
			})
			continue
		}

		workerLogger.Debug("Worker picked up node.")
		node.SetState(graph.Running)
		if err := e.runner.Run(ctx, node); err != nil {
			workerLogger.Error("Stage failed.", "error", err)
			node.SetState(graph.Failed)
			node.Error = err
			cancel()
			e.skipDependents(ctx, node)
			e.wg.Done()
			continue
		}

		workerLogger.Debug("Stage succeeded.")
		node.SetState(graph.Done)

		for _, dependent := range node.Dependents {
			if !e.plan.Contains(dependent.Path) {
				continue
			}
			if dependent.DecrementDepCount() == 0 {
				workerLogger.Debug("Unlocking dependent.", "dependent", dependent.Path)
				readyChan <- dependent
			}
		}

		e.wg.Done()
	}
}

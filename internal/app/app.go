// Package app wires the pipeline together: configuration, template
// composition, graph discovery, plan resolution, and staged execution.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pcotret/gigue/internal/artifact"
	"github.com/pcotret/gigue/internal/cleanup"
	"github.com/pcotret/gigue/internal/config"
	"github.com/pcotret/gigue/internal/ctxlog"
	"github.com/pcotret/gigue/internal/executor"
	"github.com/pcotret/gigue/internal/graph"
	"github.com/pcotret/gigue/internal/recipe"
	"github.com/pcotret/gigue/internal/stage"
	"github.com/pcotret/gigue/internal/template"
)

// Options carries the process-level settings that are not part of the
// pipeline configuration file.
type Options struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Workers    int
}

// App encapsulates one fully wired pipeline instance.
type App struct {
	logger   *slog.Logger
	cfg      *config.Config
	spec     *template.Spec
	graph    *graph.Graph
	recipes  *recipe.Registry
	manifest *artifact.Manifest
	workers  int
}

// New loads configuration, composes the entry-point template, and discovers
// the artifact graph. All configuration and resolution errors surface here,
// before any external tool could run.
func New(ctx context.Context, outW io.Writer, opts Options) (*App, error) {
	logger := newLogger(opts.LogLevel, opts.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)

	cfg, err := config.Load(ctx, opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	spec, err := template.Compose(cfg.TemplateName, cfg.UnitTemplateName, cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("Template composed.", "template", spec.Name, "unit", spec.Unit)

	manifest, err := artifact.LoadManifest(cfg.BuildDir)
	if err != nil {
		return nil, err
	}

	g, err := graph.Discover(ctx, cfg, spec)
	if err != nil {
		return nil, err
	}

	return &App{
		logger:   logger,
		cfg:      cfg,
		spec:     spec,
		graph:    g,
		recipes:  recipe.Default(),
		manifest: manifest,
		workers:  opts.Workers,
	}, nil
}

// Logger returns the app's logger, primarily for the CLI layer.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Dump builds the disassembly views: the image's listing and one wrapped
// listing per binary blob.
func (a *App) Dump(ctx context.Context) error {
	return a.build(ctx, a.graph.DumpTargets()...)
}

// Exec builds the image and runs it through the cycle-accurate simulator,
// producing the pretty-printed trace log. It requires the simulator
// capability.
func (a *App) Exec(ctx context.Context) error {
	if err := a.cfg.RequireSimulator(); err != nil {
		return err
	}
	return a.build(ctx, a.graph.SimLogTarget())
}

// Clean removes the transient tier.
func (a *App) Clean(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	return cleanup.NewManager(a.cfg, a.manifest, a.spec).CleanTransient(ctx)
}

// CleanAll removes both tiers.
func (a *App) CleanAll(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	return cleanup.NewManager(a.cfg, a.manifest, a.spec).CleanAll(ctx)
}

// build resolves a plan for the targets and executes it. An unchanged
// target yields an empty plan and zero tool invocations.
func (a *App) build(ctx context.Context, targets ...string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	plan, err := a.graph.Resolve(ctx, a.manifest, a.recipes, targets...)
	if err != nil {
		return err
	}
	if plan.Empty() {
		a.logger.Info("Targets up to date, nothing to build.", "targets", targets)
		return nil
	}

	a.logger.Info("Executing build plan.", "stages", plan.Len(), "workers", a.workers)
	runner := stage.NewRunner(a.cfg, a.recipes, a.manifest)
	if err := executor.New(plan, runner, a.workers).Run(ctx); err != nil {
		return fmt.Errorf("building %v: %w", targets, err)
	}
	a.logger.Info("Build plan finished.", "stages", plan.Len())
	return nil
}

package graph_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pcotret/gigue/internal/artifact"
	"github.com/pcotret/gigue/internal/graph"
	"github.com/pcotret/gigue/internal/recipe"
	"github.com/pcotret/gigue/internal/template"
	"github.com/pcotret/gigue/internal/testutil"
)

// discover builds the graph and manifest for a fixture project.
func discover(t *testing.T, p *testutil.Project) (*graph.Graph, *artifact.Manifest) {
	t.Helper()
	spec, err := template.Compose(p.Config.TemplateName, p.Config.UnitTemplateName, p.Config)
	require.NoError(t, err)
	g, err := graph.Discover(context.Background(), p.Config, spec)
	require.NoError(t, err)
	man, err := artifact.LoadManifest(p.Config.BuildDir)
	require.NoError(t, err)
	return g, man
}

// publish simulates a successful build of every planned node: it writes a
// placeholder output and records the expected fingerprint, exactly as the
// stage runner would after a real tool run.
func publish(t *testing.T, man *artifact.Manifest, plan *graph.Plan) {
	t.Helper()
	for _, node := range plan.Nodes {
		require.NoError(t, os.MkdirAll(filepath.Dir(node.Path), 0o755))
		require.NoError(t, os.WriteFile(node.Path, []byte("built"), 0o644))
		require.NoError(t, man.Record(node.Path, node.Fingerprint, node.Kind, node.Tier))
	}
}

func planIndex(plan *graph.Plan, path string) int {
	for i, node := range plan.Nodes {
		if node.Path == path {
			return i
		}
	}
	return -1
}

func TestResolveOrdersObjectsBeforeLinkBeforeDump(t *testing.T) {
	p := testutil.NewProject(t)
	g, man := discover(t, p)

	plan, err := g.Resolve(context.Background(), man, recipe.Default(), g.DumpTargets()...)
	require.NoError(t, err)

	link := planIndex(plan, p.Path("bin/out.elf"))
	dump := planIndex(plan, p.Path("bin/out.dump"))
	require.GreaterOrEqual(t, link, 0)
	require.GreaterOrEqual(t, dump, 0)

	for _, obj := range []string{"bin/a.o", "bin/b.o", "bin/c.o", "bin/template.o"} {
		idx := planIndex(plan, p.Path(obj))
		require.GreaterOrEqual(t, idx, 0, "expected %s in plan", obj)
		require.Less(t, idx, link, "%s must precede the link", obj)
	}
	require.Less(t, link, dump, "the link must precede the disassembly")
}

func TestResolveIsIdempotentAfterPublish(t *testing.T) {
	p := testutil.NewProject(t)
	g, man := discover(t, p)
	recipes := recipe.Default()

	plan, err := g.Resolve(context.Background(), man, recipes, g.DumpTargets()...)
	require.NoError(t, err)
	require.False(t, plan.Empty())
	publish(t, man, plan)

	// Rediscover from scratch: freshness must come from the manifest and
	// fingerprints, not from in-memory state.
	g2, man2 := discover(t, p)
	plan2, err := g2.Resolve(context.Background(), man2, recipes, g2.DumpTargets()...)
	require.NoError(t, err)
	require.True(t, plan2.Empty(), "unchanged targets must resolve to an empty plan, got %d nodes", plan2.Len())
}

func TestResolveInvalidatesOnlyDownstreamOfTouchedSource(t *testing.T) {
	p := testutil.NewProject(t)
	g, man := discover(t, p)
	recipes := recipe.Default()

	plan, err := g.Resolve(context.Background(), man, recipes, g.DumpTargets()...)
	require.NoError(t, err)
	publish(t, man, plan)

	p.Touch(t, "src/a.c", "int a(void) { return 42; }\n")

	g2, man2 := discover(t, p)
	plan2, err := g2.Resolve(context.Background(), man2, recipes, g2.DumpTargets()...)
	require.NoError(t, err)

	require.True(t, plan2.Contains(p.Path("bin/a.o")), "touched source's object must be stale")
	require.True(t, plan2.Contains(p.Path("bin/out.elf")), "image depends on the touched object")
	require.True(t, plan2.Contains(p.Path("bin/out.dump")), "dump depends on the image")
	require.False(t, plan2.Contains(p.Path("bin/b.o")), "sibling object must stay fresh")
	require.False(t, plan2.Contains(p.Path("bin/c.o")), "sibling object must stay fresh")
	require.False(t, plan2.Contains(p.Path("bin/template.o")), "template object does not depend on the source")
	require.False(t, plan2.Contains(p.Path("bin/int.dump")), "blob dumps do not depend on the source")
}

func TestResolveDetectsCompilerFlagChangeWithoutFileChange(t *testing.T) {
	p := testutil.NewProject(t)
	g, man := discover(t, p)
	recipes := recipe.Default()

	plan, err := g.Resolve(context.Background(), man, recipes, g.DumpTargets()...)
	require.NoError(t, err)
	publish(t, man, plan)

	// No file changes at all; only the active flag set moves.
	p.Config.CFlags = []string{"-O2"}

	g2, man2 := discover(t, p)
	plan2, err := g2.Resolve(context.Background(), man2, recipes, g2.DumpTargets()...)
	require.NoError(t, err)

	for _, obj := range []string{"bin/a.o", "bin/b.o", "bin/c.o", "bin/template.o"} {
		require.True(t, plan2.Contains(p.Path(obj)), "%s must be invalidated by the flag change", obj)
	}
	// The wrap and dump recipes do not use CFlags; blob dumps stay fresh.
	require.False(t, plan2.Contains(p.Path("bin/int.bin.o")))
}

func TestResolveUnknownTarget(t *testing.T) {
	p := testutil.NewProject(t)
	g, man := discover(t, p)

	_, err := g.Resolve(context.Background(), man, recipe.Default(), p.Path("bin/nonexistent.xyz"))
	var unknownErr *graph.UnknownArtifactError
	require.ErrorAs(t, err, &unknownErr)
}

func TestResolveMissingBlobIsFilesystemError(t *testing.T) {
	p := testutil.NewProject(t)
	require.NoError(t, os.Remove(p.Path("bin/jit.bin")))
	g, man := discover(t, p)

	_, err := g.Resolve(context.Background(), man, recipe.Default(), g.DumpTargets()...)
	var fsErr *artifact.FilesystemError
	require.ErrorAs(t, err, &fsErr)
}

func TestResolveDetectsCycle(t *testing.T) {
	p := testutil.NewProject(t)
	g, man := discover(t, p)

	// The fixed edge shapes cannot produce a cycle, so fabricate one: make
	// the image depend on its own dump.
	image := g.Nodes[p.Path("bin/out.elf")]
	dump := g.Nodes[p.Path("bin/out.dump")]
	image.Deps[dump.Path] = dump
	dump.Dependents[image.Path] = image

	_, err := g.Resolve(context.Background(), man, recipe.Default(), g.DumpTargets()...)
	var cycleErr *graph.CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestResolveRebuildsMissingOutput(t *testing.T) {
	p := testutil.NewProject(t)
	g, man := discover(t, p)
	recipes := recipe.Default()

	plan, err := g.Resolve(context.Background(), man, recipes, g.DumpTargets()...)
	require.NoError(t, err)
	publish(t, man, plan)

	require.NoError(t, os.Remove(p.Path("bin/a.o")))

	g2, man2 := discover(t, p)
	plan2, err := g2.Resolve(context.Background(), man2, recipes, g2.DumpTargets()...)
	require.NoError(t, err)
	require.True(t, plan2.Contains(p.Path("bin/a.o")))
	require.False(t, plan2.Contains(p.Path("bin/b.o")))
}

func TestDiscoverClassifiesTiers(t *testing.T) {
	p := testutil.NewProject(t)
	g, _ := discover(t, p)

	transient := []string{"bin/a.o", "bin/out.dump", "bin/int.bin.o", "bin/out.log"}
	for _, rel := range transient {
		node, ok := g.Nodes[p.Path(rel)]
		require.True(t, ok, "missing node %s", rel)
		require.Equal(t, artifact.TierTransient, node.Tier, "%s should be transient", rel)
	}

	for _, rel := range []string{"bin/int.bin", "bin/jit.bin", "bin/unit.bin"} {
		node, ok := g.Nodes[p.Path(rel)]
		require.True(t, ok)
		require.Equal(t, artifact.TierPersisted, node.Tier, "%s should be persisted", rel)
	}
}

func TestDiscoverUnitVariantUsesUnitNamespace(t *testing.T) {
	p := testutil.NewProject(t)
	p.Config.UseUnitTemplate = true
	g, _ := discover(t, p)

	image := g.Nodes[filepath.Join(p.Config.BuildDir, "unit", graph.ImageName)]
	require.NotNil(t, image, "unit image must live in the unit namespace")
	require.Equal(t, artifact.TierPersisted, image.Tier, "per-unit images are persisted")

	dump := g.Nodes[filepath.Join(p.Config.BuildDir, "unit", graph.DumpName)]
	require.NotNil(t, dump)
	require.Equal(t, artifact.TierPersisted, dump.Tier, "per-unit dumps are persisted")
}

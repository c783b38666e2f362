package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/pcotret/gigue/internal/ctxlog"
)

// fileSchema mirrors the HCL surface of a pipeline file.
type fileSchema struct {
	Toolchain *toolchainBlock `hcl:"toolchain,block"`
	Layout    *layoutBlock    `hcl:"layout,block"`
	Template  *templateBlock  `hcl:"template,block"`
	Simulator *simulatorBlock `hcl:"simulator,block"`
}

type toolchainBlock struct {
	Root         string   `hcl:"root,optional"`
	Prefix       string   `hcl:"prefix,optional"`
	XLEN         int      `hcl:"xlen,optional"`
	CFlags       []string `hcl:"cflags,optional"`
	LDFlags      []string `hcl:"ldflags,optional"`
	LinkerScript string   `hcl:"linker_script,optional"`
}

type layoutBlock struct {
	SourceDir   string `hcl:"source_dir,optional"`
	TemplateDir string `hcl:"template_dir,optional"`
	BuildDir    string `hcl:"build_dir,optional"`
}

type templateBlock struct {
	Name    string `hcl:"name,optional"`
	Unit    string `hcl:"unit,optional"`
	UseUnit bool   `hcl:"use_unit,optional"`
}

type simulatorBlock struct {
	Root      string `hcl:"root,optional"`
	Variant   string `hcl:"variant,optional"`
	MaxCycles int    `hcl:"max_cycles,optional"`
}

// Load reads a pipeline HCL file, evaluates it with the process environment
// exposed as `env`, applies defaults, and validates the result.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return nil, &ConfigurationError{Field: "config", Reason: fmt.Sprintf("pipeline file %q does not exist", path)}
		}
		return nil, fmt.Errorf("parsing %s: %w", path, diags)
	}
	logger.Debug("Parsed pipeline file.", "path", path)

	var schema fileSchema
	if diags := gohcl.DecodeBody(hclFile.Body, evalContext(hclFile), &schema); diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %w", path, diags)
	}

	cfg := fromSchema(&schema)
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded.",
		"xlen", cfg.XLEN, "prefix", cfg.ToolPrefix, "simulator", cfg.HasSimulator())
	return cfg, nil
}

// evalContext exposes the process environment to pipeline files as an `env`
// object, so machine-local paths stay out of checked-in configuration. Every
// env attribute the file references is present in the object; an unset
// variable evaluates to "" rather than failing the decode, so a pipeline file
// naming env.ROCKET still loads on machines without a simulator.
func evalContext(f *hcl.File) *hcl.EvalContext {
	envVals := make(map[string]cty.Value)
	for _, name := range referencedEnvVars(f) {
		envVals[name] = cty.StringVal("")
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		envVals[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(envVals),
		},
	}
}

// referencedEnvVars collects the names used as `env.<NAME>` anywhere in the
// file, including inside nested blocks.
func referencedEnvVars(f *hcl.File) []string {
	body, ok := f.Body.(*hclsyntax.Body)
	if !ok {
		return nil
	}
	var names []string
	var walk func(b *hclsyntax.Body)
	walk = func(b *hclsyntax.Body) {
		for _, attr := range b.Attributes {
			for _, traversal := range attr.Expr.Variables() {
				if traversal.RootName() != "env" || len(traversal) < 2 {
					continue
				}
				if step, ok := traversal[1].(hcl.TraverseAttr); ok {
					names = append(names, step.Name)
				}
			}
		}
		for _, block := range b.Blocks {
			walk(block.Body)
		}
	}
	walk(body)
	return names
}

func fromSchema(schema *fileSchema) *Config {
	cfg := &Config{}
	if tb := schema.Toolchain; tb != nil {
		cfg.ToolchainRoot = tb.Root
		cfg.ToolPrefix = tb.Prefix
		cfg.XLEN = tb.XLEN
		cfg.CFlags = tb.CFlags
		cfg.LDFlags = tb.LDFlags
		cfg.LinkerScript = tb.LinkerScript
	}
	if lb := schema.Layout; lb != nil {
		cfg.SourceDir = lb.SourceDir
		cfg.TemplateDir = lb.TemplateDir
		cfg.BuildDir = lb.BuildDir
	}
	if tb := schema.Template; tb != nil {
		cfg.TemplateName = tb.Name
		cfg.UnitTemplateName = tb.Unit
		cfg.UseUnitTemplate = tb.UseUnit
	}
	if sb := schema.Simulator; sb != nil {
		cfg.Simulator = &Simulator{
			Root:      sb.Root,
			Variant:   sb.Variant,
			MaxCycles: sb.MaxCycles,
		}
	}
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.XLEN == 0 {
		cfg.XLEN = 64
	}
	if cfg.ToolchainRoot == "" {
		cfg.ToolchainRoot = os.Getenv("RISCV")
	}
	if cfg.ToolPrefix == "" {
		cfg.ToolPrefix = "riscv64-unknown-elf-"
	}
	if cfg.SourceDir == "" {
		cfg.SourceDir = "src"
	}
	if cfg.TemplateDir == "" {
		cfg.TemplateDir = "template"
	}
	if cfg.BuildDir == "" {
		cfg.BuildDir = "bin"
	}
	if cfg.LinkerScript == "" {
		cfg.LinkerScript = filepath.Join(cfg.TemplateDir, "link.ld")
	}
	if cfg.TemplateName == "" {
		cfg.TemplateName = "template"
	}
	if cfg.UnitTemplateName == "" {
		cfg.UnitTemplateName = "unit_template"
	}
	if cfg.Simulator == nil && os.Getenv("ROCKET") != "" {
		cfg.Simulator = &Simulator{Root: os.Getenv("ROCKET")}
	}
	if cfg.Simulator != nil {
		if cfg.Simulator.Root == "" {
			cfg.Simulator.Root = os.Getenv("ROCKET")
		}
		if cfg.Simulator.Variant == "" {
			cfg.Simulator.Variant = "DefaultConfig"
		}
		if cfg.Simulator.MaxCycles == 0 {
			cfg.Simulator.MaxCycles = 100000
		}
	}
}

func validate(cfg *Config) error {
	if cfg.XLEN != 32 && cfg.XLEN != 64 {
		return &ConfigurationError{
			Field:  "toolchain.xlen",
			Reason: fmt.Sprintf("word width must be 32 or 64, got %d", cfg.XLEN),
		}
	}
	if cfg.Simulator != nil && cfg.Simulator.Root != "" && cfg.Simulator.MaxCycles <= 0 {
		return &ConfigurationError{
			Field:  "simulator.max_cycles",
			Reason: "cycle budget must be positive",
		}
	}
	return nil
}

// Tool resolves the path of a cross tool, e.g. Tool("gcc") yields
// "<root>/bin/riscv64-unknown-elf-gcc". With no toolchain root configured the
// bare prefixed name is returned and resolution is left to PATH.
func (c *Config) Tool(name string) string {
	prefixed := c.ToolPrefix + name
	if c.ToolchainRoot == "" {
		return prefixed
	}
	return filepath.Join(c.ToolchainRoot, "bin", prefixed)
}

// SimulatorTool resolves the path of an executable under the simulator root.
func (c *Config) SimulatorTool(name string) string {
	if c.Simulator == nil || c.Simulator.Root == "" {
		return name
	}
	return filepath.Join(c.Simulator.Root, name)
}

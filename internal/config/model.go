package config

import "fmt"

// Config is the resolved set of build parameters for one pipeline run.
type Config struct {
	// XLEN is the word width selector, 32 or 64.
	XLEN int

	// ToolchainRoot is the installation prefix of the cross toolchain. Tool
	// executables are resolved under its bin/ directory; when empty, tools
	// are resolved through PATH.
	ToolchainRoot string

	// ToolPrefix is the cross-tool command prefix, e.g. "riscv64-unknown-elf-".
	ToolPrefix string

	// CFlags are extra flags passed to every compile and assemble invocation,
	// in addition to the -march/-mabi pair derived from XLEN.
	CFlags []string

	// LDFlags are extra flags passed to the link invocation.
	LDFlags []string

	// LinkerScript is the path to the link script passed via -T.
	LinkerScript string

	// SourceDir holds the compiled (.c) and assembled (.S) sources.
	SourceDir string

	// TemplateDir holds the entry-point template sources.
	TemplateDir string

	// BuildDir is the root of the build-output namespace. All derived
	// artifacts, the publish manifest, and the binary blobs live under it.
	BuildDir string

	// TemplateName selects the general-purpose entry-point template.
	TemplateName string

	// UnitTemplateName selects the unit-test entry-point template.
	UnitTemplateName string

	// UseUnitTemplate routes the build through the unit-test variant and the
	// per-unit output namespace.
	UseUnitTemplate bool

	// Simulator is nil when the simulator capability is absent. Targets that
	// need it fail at configuration time, not at build time.
	Simulator *Simulator
}

// Simulator identifies the cycle-accurate simulator used by the exec command.
type Simulator struct {
	// Root is the directory containing the emulator and the trace
	// pretty-printer.
	Root string

	// Variant is the simulator configuration identifier baked into the
	// emulator's executable name, e.g. "DefaultConfig".
	Variant string

	// MaxCycles is the cycle budget handed to the emulator.
	MaxCycles int
}

// HasSimulator reports whether the simulator capability is configured.
func (c *Config) HasSimulator() bool {
	return c.Simulator != nil && c.Simulator.Root != ""
}

// RequireSimulator returns a ConfigurationError when the simulator capability
// is absent. Callers invoke it before planning any simulator-gated target.
func (c *Config) RequireSimulator() error {
	if !c.HasSimulator() {
		return &ConfigurationError{
			Field:  "simulator.root",
			Reason: "the exec command needs a simulator; set simulator.root or the ROCKET environment variable",
		}
	}
	return nil
}

// March returns the -march value for the configured word width.
func (c *Config) March() string {
	if c.XLEN == 32 {
		return "rv32imc"
	}
	return "rv64imc"
}

// MABI returns the -mabi value for the configured word width.
func (c *Config) MABI() string {
	if c.XLEN == 32 {
		return "ilp32"
	}
	return "lp64"
}

// ObjcopyFormat returns the objcopy output target used when a raw binary
// blob is reinterpreted as a relocatable object.
func (c *Config) ObjcopyFormat() string {
	if c.XLEN == 32 {
		return "elf32-littleriscv"
	}
	return "elf64-littleriscv"
}

// ConfigurationError reports a missing or invalid configuration value. It is
// always detected before any external tool runs.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %q: %s", e.Field, e.Reason)
}

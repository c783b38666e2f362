// Package config loads and validates the pipeline configuration.
//
// The configuration is an HCL file describing the cross toolchain, the
// source/template/output layout, the entry-point template selection, and the
// (optional) cycle-accurate simulator. Environment variables are exposed to
// the file through the `env` object, so a pipeline file can say
// `root = env.RISCV` instead of hard-coding machine-local paths.
//
// After Load returns, the Config is pure data: nothing in it changes for the
// lifetime of a run, and every other package treats it as read-only.
package config

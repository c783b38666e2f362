// Package artifact defines the vocabulary of build outputs: their kinds,
// their cleanup tiers, the content-hash fingerprints that drive staleness,
// and the publish manifest recorded in the build root.
package artifact

// Kind classifies an artifact by the recipe that produces it. Every derived
// artifact has exactly one kind and every kind has exactly one registered
// recipe builder.
type Kind int

const (
	// KindObject is a relocatable object compiled or assembled from a source
	// file.
	KindObject Kind = iota
	// KindTemplateObject is the assembled entry-point template, which embeds
	// the binary blobs.
	KindTemplateObject
	// KindLinkedImage is the final linked executable image.
	KindLinkedImage
	// KindDisasmDump is a disassembly listing of a linked image.
	KindDisasmDump
	// KindBinaryBlob is a raw pre-built code blob produced outside the
	// pipeline. Blobs are read-only inputs, never built.
	KindBinaryBlob
	// KindWrappedObject is a binary blob reinterpreted as an object with its
	// payload renamed into the text section, so that disassembling it is
	// meaningful.
	KindWrappedObject
	// KindWrappedDump is a disassembly listing of a wrapped object.
	KindWrappedDump
	// KindSimLog is the pretty-printed execution trace from the simulator.
	KindSimLog
)

var kindNames = map[Kind]string{
	KindObject:         "object",
	KindTemplateObject: "template-object",
	KindLinkedImage:    "linked-image",
	KindDisasmDump:     "disassembly-dump",
	KindBinaryBlob:     "binary-blob",
	KindWrappedObject:  "wrapped-object",
	KindWrappedDump:    "wrapped-dump",
	KindSimLog:         "simulator-log",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Derived reports whether artifacts of this kind are produced by the
// pipeline. Non-derived artifacts (raw blobs) must already exist on disk.
func (k Kind) Derived() bool {
	return k != KindBinaryBlob
}

// Tier is the cleanup class of an artifact.
type Tier int

const (
	// TierTransient marks easily regenerable build-only files: compiled
	// objects, top-level dumps, wrapped-object intermediates, simulator logs.
	TierTransient Tier = iota
	// TierPersisted marks files meant to survive a light clean: raw binary
	// blobs and everything in the per-unit namespace.
	TierPersisted
)

var tierNames = map[Tier]string{
	TierTransient: "transient",
	TierPersisted: "persisted",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

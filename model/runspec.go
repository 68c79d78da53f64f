package model

// RunSpecKind tags the variant of a runnable specification.
type RunSpecKind string

const (
	// RunSpecKindApp marks a single-container application definition.
	RunSpecKindApp RunSpecKind = "app"
	// RunSpecKindPod marks a multi-container pod definition.
	RunSpecKindPod RunSpecKind = "pod"
)

// RunSpec is the unit the orchestrator keeps running: an App or a Pod,
// identified by its PathID. The desired-state core only inspects the
// identifier, the variant tag, and the requested instance count; the
// remaining fields are owned by the spec-level validators.
type RunSpec interface {
	// RunSpecID returns the identifier that is the spec's primary key.
	RunSpecID() PathID
	// Kind returns the spec's variant tag.
	Kind() RunSpecKind
	// InstanceCount returns the number of instances the spec asks for.
	InstanceCount() int
}

package model

import "time"

// PodContainer describes one container of a pod. The desired-state core
// treats it as opaque data validated elsewhere.
type PodContainer struct {
	Name string  `json:"name"`
	CPUs float64 `json:"cpus"`
	Mem  float64 `json:"mem"`
}

// Pod is a multi-container runnable definition sharing a placement and
// lifecycle. Like App, only the identifier, variant tag, and instance count
// matter to the group tree and launch queue.
type Pod struct {
	ID         PathID         `json:"id"`
	Containers []PodContainer `json:"containers,omitempty"`
	Instances  int            `json:"instances"`
	Version    time.Time      `json:"version,omitempty"`
}

// RunSpecID returns the pod's identifier.
func (p *Pod) RunSpecID() PathID { return p.ID }

// Kind returns RunSpecKindPod.
func (p *Pod) Kind() RunSpecKind { return RunSpecKindPod }

// InstanceCount returns the requested number of instances.
func (p *Pod) InstanceCount() int { return p.Instances }

// WithCanonicalID returns a copy of the pod with its identifier resolved
// against base. The original pod is not modified.
func (p *Pod) WithCanonicalID(base PathID) *Pod {
	copied := *p
	copied.ID = p.ID.Canonicalize(base)
	return &copied
}

package model

import "time"

// App is a single-container application definition. The ID is the primary
// key; the resource and scheduling fields are opaque to the group tree and
// launch queue and are checked by the spec-level validators.
type App struct {
	ID        PathID  `json:"id"`
	Cmd       string  `json:"cmd,omitempty"`
	CPUs      float64 `json:"cpus"`
	Mem       float64 `json:"mem"`
	Disk      float64 `json:"disk,omitempty"`
	GPUs      int     `json:"gpus,omitempty"`
	Instances int     `json:"instances"`
	// Secrets holds references to externally managed secret values. The
	// field is feature gated: specs using it are rejected unless the
	// secrets feature is enabled.
	Secrets []string  `json:"secrets,omitempty"`
	Version time.Time `json:"version,omitempty"`
}

// RunSpecID returns the app's identifier.
func (a *App) RunSpecID() PathID { return a.ID }

// Kind returns RunSpecKindApp.
func (a *App) Kind() RunSpecKind { return RunSpecKindApp }

// InstanceCount returns the requested number of instances.
func (a *App) InstanceCount() int { return a.Instances }

// WithCanonicalID returns a copy of the app with its identifier resolved
// against base. The original app is not modified.
func (a *App) WithCanonicalID(base PathID) *App {
	copied := *a
	copied.ID = a.ID.Canonicalize(base)
	return &copied
}

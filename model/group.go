package model

import (
	"sync"
	"time"
)

// Group is a node of the rooted namespace tree: it bundles apps, pods,
// subgroups, and inter-group dependencies, versioned as a whole. A Group is
// immutable once constructed; every edit operation returns a new Group (and
// new ancestors up to the receiver) while sharing unaffected subtrees with
// the original. The root Group's Version is the authoritative snapshot
// identity.
//
// The type itself enforces nothing about its contents: structural
// invariants (map keys matching entity ids, id uniqueness, parent chaining)
// are checked by the validator package before a tree is accepted.
type Group struct {
	ID           PathID            `json:"id"`
	Apps         map[PathID]*App   `json:"apps,omitempty"`
	Pods         map[PathID]*Pod   `json:"pods,omitempty"`
	Groups       map[PathID]*Group `json:"groups,omitempty"`
	Dependencies []PathID          `json:"dependencies,omitempty"`
	Version      time.Time         `json:"version"`

	// Derived views are pure functions of the (immutable) tree, computed
	// once per instance on first use. Groups must therefore always be
	// handled by pointer after construction.
	indexOnce     sync.Once
	index         map[PathID]*Group
	transAppsOnce sync.Once
	transApps     map[PathID]*App
	transPodsOnce sync.Once
	transPods     map[PathID]*Pod
}

// NewGroup returns an empty group with the given identifier and version.
func NewGroup(id PathID, version time.Time) *Group {
	return &Group{
		ID:      id,
		Apps:    map[PathID]*App{},
		Pods:    map[PathID]*Pod{},
		Groups:  map[PathID]*Group{},
		Version: version,
	}
}

// NewRootGroup returns an empty root group.
func NewRootGroup(version time.Time) *Group {
	return NewGroup(RootPath, version)
}

// App returns the app stored at exactly id, if any. The lookup is two-step:
// this group's own apps map is consulted first, which covers the case where
// the receiver is itself the structural parent of id; only when that misses
// is the group at id's parent located through the flattened subtree index
// and its apps map consulted. The two steps are not equivalent to a single
// recursive descent: the first deliberately matches before descending.
func (g *Group) App(id PathID) *App {
	if app, ok := g.Apps[id]; ok {
		return app
	}
	if parent := g.Group(id.Parent()); parent != nil {
		return parent.Apps[id]
	}
	return nil
}

// Pod returns the pod stored at exactly id, using the same two-step
// resolution as App.
func (g *Group) Pod(id PathID) *Pod {
	if pod, ok := g.Pods[id]; ok {
		return pod
	}
	if parent := g.Group(id.Parent()); parent != nil {
		return parent.Pods[id]
	}
	return nil
}

// RunSpec returns the app at id if present, otherwise the pod at id, or nil.
func (g *Group) RunSpec(id PathID) RunSpec {
	if app := g.App(id); app != nil {
		return app
	}
	if pod := g.Pod(id); pod != nil {
		return pod
	}
	return nil
}

// Exists reports whether a runnable spec is stored at exactly id.
func (g *Group) Exists(id PathID) bool {
	return g.RunSpec(id) != nil
}

// Group returns the group whose own identifier equals id anywhere in this
// subtree, including the receiver itself, or nil.
func (g *Group) Group(id PathID) *Group {
	if id.IsEmpty() {
		return nil
	}
	return g.groupIndex()[id]
}

func (g *Group) groupIndex() map[PathID]*Group {
	g.indexOnce.Do(func() {
		g.index = map[PathID]*Group{}
		g.collectGroups(g.index)
	})
	return g.index
}

func (g *Group) collectGroups(into map[PathID]*Group) {
	into[g.ID] = g
	for _, sub := range g.Groups {
		sub.collectGroups(into)
	}
}

// TransitiveApps returns every app in the subtree keyed by its own id.
func (g *Group) TransitiveApps() map[PathID]*App {
	g.transAppsOnce.Do(func() {
		g.transApps = map[PathID]*App{}
		for _, node := range g.TransitiveGroups() {
			for _, app := range node.Apps {
				g.transApps[app.ID] = app
			}
		}
	})
	return g.transApps
}

// TransitivePods returns every pod in the subtree keyed by its own id.
func (g *Group) TransitivePods() map[PathID]*Pod {
	g.transPodsOnce.Do(func() {
		g.transPods = map[PathID]*Pod{}
		for _, node := range g.TransitiveGroups() {
			for _, pod := range node.Pods {
				g.transPods[pod.ID] = pod
			}
		}
	})
	return g.transPods
}

// TransitiveAppIDs returns the ids of every app in the subtree, sorted.
func (g *Group) TransitiveAppIDs() []PathID {
	ids := make([]PathID, 0, len(g.TransitiveApps()))
	for id := range g.TransitiveApps() {
		ids = append(ids, id)
	}
	SortPaths(ids)
	return ids
}

// TransitivePodIDs returns the ids of every pod in the subtree, sorted.
func (g *Group) TransitivePodIDs() []PathID {
	ids := make([]PathID, 0, len(g.TransitivePods()))
	for id := range g.TransitivePods() {
		ids = append(ids, id)
	}
	SortPaths(ids)
	return ids
}

// TransitiveRunSpecs returns every app and pod in the subtree keyed by id.
func (g *Group) TransitiveRunSpecs() map[PathID]RunSpec {
	specs := make(map[PathID]RunSpec, len(g.TransitiveApps())+len(g.TransitivePods()))
	for id, app := range g.TransitiveApps() {
		specs[id] = app
	}
	for id, pod := range g.TransitivePods() {
		specs[id] = pod
	}
	return specs
}

// TransitiveRunSpecIDs returns the ids of every app and pod in the subtree,
// sorted.
func (g *Group) TransitiveRunSpecIDs() []PathID {
	specs := g.TransitiveRunSpecs()
	ids := make([]PathID, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	SortPaths(ids)
	return ids
}

// TransitiveGroups returns every group in the subtree, including the
// receiver, in depth-first order.
func (g *Group) TransitiveGroups() []*Group {
	groups := []*Group{g}
	keys := make([]PathID, 0, len(g.Groups))
	for key := range g.Groups {
		keys = append(keys, key)
	}
	SortPaths(keys)
	for _, key := range keys {
		groups = append(groups, g.Groups[key].TransitiveGroups()...)
	}
	return groups
}

// ContainsApps reports whether any app exists anywhere in the subtree.
func (g *Group) ContainsApps() bool {
	if len(g.Apps) > 0 {
		return true
	}
	for _, sub := range g.Groups {
		if sub.ContainsApps() {
			return true
		}
	}
	return false
}

// ContainsPods reports whether any pod exists anywhere in the subtree.
func (g *Group) ContainsPods() bool {
	if len(g.Pods) > 0 {
		return true
	}
	for _, sub := range g.Groups {
		if sub.ContainsPods() {
			return true
		}
	}
	return false
}

// ContainsAppsOrPodsOrGroups reports whether the group holds anything at all.
func (g *Group) ContainsAppsOrPodsOrGroups() bool {
	return len(g.Apps) > 0 || len(g.Pods) > 0 || len(g.Groups) > 0
}

// Equal compares the full structure of two groups, version included: two
// trees differing only in version are not equal.
func (g *Group) Equal(other *Group) bool {
	if g == other {
		return true
	}
	if g == nil || other == nil {
		return false
	}
	if g.ID != other.ID || !g.Version.Equal(other.Version) {
		return false
	}
	if len(g.Apps) != len(other.Apps) || len(g.Pods) != len(other.Pods) ||
		len(g.Groups) != len(other.Groups) || len(g.Dependencies) != len(other.Dependencies) {
		return false
	}
	// dependencies are a set; slice order carries no meaning
	deps := make(map[PathID]struct{}, len(g.Dependencies))
	for _, dep := range g.Dependencies {
		deps[dep] = struct{}{}
	}
	otherDeps := make(map[PathID]struct{}, len(other.Dependencies))
	for _, dep := range other.Dependencies {
		if _, ok := deps[dep]; !ok {
			return false
		}
		otherDeps[dep] = struct{}{}
	}
	if len(deps) != len(otherDeps) {
		return false
	}
	for key, app := range g.Apps {
		otherApp, ok := other.Apps[key]
		if !ok || !appsEqual(app, otherApp) {
			return false
		}
	}
	for key, pod := range g.Pods {
		otherPod, ok := other.Pods[key]
		if !ok || !podsEqual(pod, otherPod) {
			return false
		}
	}
	for key, sub := range g.Groups {
		if !sub.Equal(other.Groups[key]) {
			return false
		}
	}
	return true
}

func appsEqual(a, b *App) bool {
	if a.ID != b.ID || a.Cmd != b.Cmd || a.CPUs != b.CPUs || a.Mem != b.Mem ||
		a.Disk != b.Disk || a.GPUs != b.GPUs || a.Instances != b.Instances ||
		!a.Version.Equal(b.Version) {
		return false
	}
	if len(a.Secrets) != len(b.Secrets) {
		return false
	}
	for i := range a.Secrets {
		if a.Secrets[i] != b.Secrets[i] {
			return false
		}
	}
	return true
}

func podsEqual(a, b *Pod) bool {
	if a.ID != b.ID || a.Instances != b.Instances || !a.Version.Equal(b.Version) {
		return false
	}
	if len(a.Containers) != len(b.Containers) {
		return false
	}
	for i := range a.Containers {
		if a.Containers[i] != b.Containers[i] {
			return false
		}
	}
	return true
}

// UpdateVersion re-stamps the root of the tree with a new version, sharing
// the entire substructure with the receiver.
func (g *Group) UpdateVersion(version time.Time) *Group {
	updated := g.clone()
	updated.Version = version
	return updated
}

// WithApp returns a new tree in which app is stored in the group at its
// id's parent, creating intermediate groups as needed. Ancestors of the
// touched group are rebuilt with the given version; all other subtrees are
// shared with the receiver.
func (g *Group) WithApp(app *App, version time.Time) *Group {
	return g.updateAt(app.ID.Parent(), version, func(node *Group) {
		node.Apps[app.ID] = app
	})
}

// WithoutApp returns a new tree with the app at id removed. If no group
// exists at id's parent the receiver is returned unchanged.
func (g *Group) WithoutApp(id PathID, version time.Time) *Group {
	if g.Group(id.Parent()) == nil {
		return g
	}
	return g.updateAt(id.Parent(), version, func(node *Group) {
		delete(node.Apps, id)
	})
}

// WithPod returns a new tree in which pod is stored in the group at its
// id's parent, creating intermediate groups as needed.
func (g *Group) WithPod(pod *Pod, version time.Time) *Group {
	return g.updateAt(pod.ID.Parent(), version, func(node *Group) {
		node.Pods[pod.ID] = pod
	})
}

// WithoutPod returns a new tree with the pod at id removed. If no group
// exists at id's parent the receiver is returned unchanged.
func (g *Group) WithoutPod(id PathID, version time.Time) *Group {
	if g.Group(id.Parent()) == nil {
		return g
	}
	return g.updateAt(id.Parent(), version, func(node *Group) {
		delete(node.Pods, id)
	})
}

// WithGroup returns a new tree in which child is attached under the group
// at its id's parent, replacing any previous group at that key.
func (g *Group) WithGroup(child *Group, version time.Time) *Group {
	return g.updateAt(child.ID.Parent(), version, func(node *Group) {
		node.Groups[child.ID] = child
	})
}

// WithoutGroup returns a new tree with the subgroup at id detached. The
// receiver cannot remove itself; in that case, or when id's parent does not
// exist, the receiver is returned unchanged.
func (g *Group) WithoutGroup(id PathID, version time.Time) *Group {
	if id == g.ID || g.Group(id.Parent()) == nil {
		return g
	}
	return g.updateAt(id.Parent(), version, func(node *Group) {
		delete(node.Groups, id)
	})
}

// MakeGroup returns a tree guaranteed to contain a group at id, creating
// empty groups along the path as needed. If the group already exists the
// receiver is returned unchanged.
func (g *Group) MakeGroup(id PathID, version time.Time) *Group {
	if g.Group(id) != nil {
		return g
	}
	return g.updateAt(id, version, func(*Group) {})
}

// updateAt rebuilds the chain of groups from the receiver down to target,
// applies mutate to a fresh copy of the target group, and stamps every
// rebuilt node with version. Missing groups along the path are created
// empty. Subtrees off the path are shared, not copied. target must be the
// receiver's id or a descendant of it; otherwise the receiver is returned
// unchanged.
func (g *Group) updateAt(target PathID, version time.Time, mutate func(*Group)) *Group {
	if target != g.ID && !target.IsChildOf(g.ID) {
		return g
	}
	if target == g.ID {
		updated := g.clone()
		mutate(updated)
		updated.Version = version
		return updated
	}
	childID := g.ID.AppendPath(target.Segments()[len(g.ID.Segments())])
	child, ok := g.Groups[childID]
	if !ok {
		child = NewGroup(childID, version)
	}
	updated := g.clone()
	updated.Groups[childID] = child.updateAt(target, version, mutate)
	updated.Version = version
	return updated
}

// clone copies the group one level deep: fresh maps, shared children, and
// reset derived-view caches.
func (g *Group) clone() *Group {
	copied := NewGroup(g.ID, g.Version)
	for key, app := range g.Apps {
		copied.Apps[key] = app
	}
	for key, pod := range g.Pods {
		copied.Pods[key] = pod
	}
	for key, sub := range g.Groups {
		copied.Groups[key] = sub
	}
	copied.Dependencies = append([]PathID{}, g.Dependencies...)
	return copied
}

package model

import "time"

// GroupUpdate is the raw, possibly-relative payload of a partial namespace
// update, as handed over by the API layer before it is resolved into a
// concrete Group. A payload carries exactly one of three update modes:
//
//   - a structural edit: an identifier plus nested app definitions and
//     subgroup updates;
//   - a version rollback: Version names an earlier snapshot to restore;
//   - a scale factor: ScaleBy multiplies the instance counts of every spec
//     under the update's scope.
//
// Mode exclusivity is enforced by the validator package, not here.
// Identifiers inside a nested update are relative to the nearest enclosing
// declared identifier, not to the global base.
type GroupUpdate struct {
	ID           *PathID        `json:"id,omitempty"`
	Apps         []*App         `json:"apps,omitempty"`
	Pods         []*Pod         `json:"pods,omitempty"`
	Groups       []*GroupUpdate `json:"groups,omitempty"`
	Dependencies []PathID       `json:"dependencies,omitempty"`
	Version      *time.Time     `json:"version,omitempty"`
	ScaleBy      *float64       `json:"scaleBy,omitempty"`
}

// GroupID returns the update's declared identifier, or the zero PathID when
// the update does not declare one.
func (u *GroupUpdate) GroupID() PathID {
	if u.ID == nil {
		return ""
	}
	return *u.ID
}

// HasStructuralEdit reports whether any structural-edit field is set.
func (u *GroupUpdate) HasStructuralEdit() bool {
	return u.ID != nil || u.HasStructuralPayload()
}

// HasStructuralPayload reports whether the update carries actual structural
// content. A bare identifier does not count: it may simply name the group a
// version rollback or a scale factor applies to.
func (u *GroupUpdate) HasStructuralPayload() bool {
	return len(u.Apps) > 0 || len(u.Pods) > 0 ||
		len(u.Groups) > 0 || len(u.Dependencies) > 0
}

// ResolutionBase returns the base against which this update's nested
// identifiers resolve: the update's own identifier canonicalized against
// base, or base itself when the update declares none.
func (u *GroupUpdate) ResolutionBase(base PathID) PathID {
	if u.ID == nil {
		return base
	}
	return u.ID.Canonicalize(base)
}

// Canonicalized returns a copy of the update with every identifier resolved
// to absolute form. The update's own identifier resolves against base;
// nested apps, pods, dependencies, and subgroup updates resolve against the
// nearest enclosing declared identifier, recursively.
func (u *GroupUpdate) Canonicalized(base PathID) *GroupUpdate {
	resolved := *u
	if u.ID != nil {
		id := u.ID.Canonicalize(base)
		resolved.ID = &id
	}
	scope := u.ResolutionBase(base)
	if len(u.Apps) > 0 {
		resolved.Apps = make([]*App, 0, len(u.Apps))
		for _, app := range u.Apps {
			resolved.Apps = append(resolved.Apps, app.WithCanonicalID(scope))
		}
	}
	if len(u.Pods) > 0 {
		resolved.Pods = make([]*Pod, 0, len(u.Pods))
		for _, pod := range u.Pods {
			resolved.Pods = append(resolved.Pods, pod.WithCanonicalID(scope))
		}
	}
	if len(u.Dependencies) > 0 {
		resolved.Dependencies = make([]PathID, 0, len(u.Dependencies))
		for _, dep := range u.Dependencies {
			resolved.Dependencies = append(resolved.Dependencies, dep.Canonicalize(scope))
		}
	}
	if len(u.Groups) > 0 {
		resolved.Groups = make([]*GroupUpdate, 0, len(u.Groups))
		for _, sub := range u.Groups {
			resolved.Groups = append(resolved.Groups, sub.Canonicalized(scope))
		}
	}
	return &resolved
}

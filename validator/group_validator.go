package validator

import (
	"fmt"
	"strings"

	"github.com/harbormaster-io/harbormaster/model"
)

// entityPath builds the structural path naming a field inside a group, e.g.
// entityPath("/sub", "apps", "a") == "/sub/apps/a".
func entityPath(groupID model.PathID, parts ...string) string {
	return strings.TrimSuffix(string(groupID), "/") + "/" + strings.Join(parts, "/")
}

// FeatureSet is the set of feature flags enabled by the surrounding
// configuration layer. Specs using fields gated behind a disabled feature
// are rejected.
type FeatureSet map[string]bool

const (
	// FeatureSecrets gates the App.Secrets field.
	FeatureSecrets = "secrets"
	// FeatureGPUResources gates the App.GPUs field.
	FeatureGPUResources = "gpu_resources"
)

// Enabled reports whether the named feature is switched on.
func (f FeatureSet) Enabled(name string) bool {
	return f[name]
}

// groupValidator is a single validation rule over a candidate root group.
// Every rule is always evaluated; a failure in one rule must not suppress
// another, so rules return their violations instead of failing fast.
type groupValidator func(root *model.Group, base model.PathID, features FeatureSet) ValidationErrors

var groupStructureValidators = []groupValidator{
	validateGroupBasePath,
	validateEntityKeys,
	validateAppSpecs,
	validatePodSpecs,
	validateIDUniqueness,
	validateGroupNesting,
	validateDependencies,
}

// CheckGroup validates a candidate root group against base with the given
// feature flags. The result is either Accepted or carries the complete batch
// of violations across all rules, each tagged with a structural path
// locating the offending entity. Violations are collected depth-first but
// their order carries no meaning.
func CheckGroup(root *model.Group, base model.PathID, features FeatureSet) ValidationResult {
	errs := ValidationErrors{}
	for _, validate := range groupStructureValidators {
		errs = append(errs, validate(root, base, features)...)
	}
	return resultFrom(errs)
}

// validateGroupBasePath checks that the root group's own identifier is a
// well-formed path under base.
func validateGroupBasePath(root *model.Group, base model.PathID, _ FeatureSet) ValidationErrors {
	if err := root.ID.ValidPathWithBase(base); err != nil {
		return ValidationErrors{{
			Level:   Error,
			Path:    string(root.ID),
			Message: err.Error(),
		}}
	}
	return nil
}

// validateEntityKeys checks that every map key in every group equals the
// contained entity's own identifier.
func validateEntityKeys(root *model.Group, _ model.PathID, _ FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	for _, node := range root.TransitiveGroups() {
		for key, app := range node.Apps {
			if key != app.ID {
				errs = append(errs, ValidationError{
					Level:   Error,
					Path:    entityPath(node.ID, "apps", key.Base()),
					Message: fmt.Sprintf("app is stored under key '%s' but has id '%s'", key, app.ID),
				})
			}
		}
		for key, pod := range node.Pods {
			if key != pod.ID {
				errs = append(errs, ValidationError{
					Level:   Error,
					Path:    entityPath(node.ID, "pods", key.Base()),
					Message: fmt.Sprintf("pod is stored under key '%s' but has id '%s'", key, pod.ID),
				})
			}
		}
		for key, sub := range node.Groups {
			if key != sub.ID {
				errs = append(errs, ValidationError{
					Level:   Error,
					Path:    entityPath(node.ID, "groups", key.Base()),
					Message: fmt.Sprintf("group is stored under key '%s' but has id '%s'", key, sub.ID),
				})
			}
		}
	}
	return errs
}

// validateAppSpecs runs the spec-level app validators over every
// transitively contained app and checks that each app is correctly
// parented: the group at the app id's parent must hold the app at that
// exact key. This catches specs inserted under the wrong key or group.
func validateAppSpecs(root *model.Group, _ model.PathID, features FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	for _, id := range root.TransitiveAppIDs() {
		app := root.TransitiveApps()[id]
		errs = append(errs, CheckApp(app, features)...)
		parent := root.Group(app.ID.Parent())
		if parent == nil {
			errs = append(errs, ValidationError{
				Level:   Error,
				Path:    string(app.ID),
				Message: fmt.Sprintf("no group exists at '%s' to contain this app", app.ID.Parent()),
			})
			continue
		}
		if _, ok := parent.Apps[app.ID]; !ok {
			errs = append(errs, ValidationError{
				Level:   Error,
				Path:    string(app.ID),
				Message: fmt.Sprintf("app is not stored in its parent group '%s'", parent.ID),
			})
		}
	}
	return errs
}

// validatePodSpecs is the pod counterpart of validateAppSpecs.
func validatePodSpecs(root *model.Group, _ model.PathID, features FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	for _, id := range root.TransitivePodIDs() {
		pod := root.TransitivePods()[id]
		errs = append(errs, CheckPod(pod, features)...)
		parent := root.Group(pod.ID.Parent())
		if parent == nil {
			errs = append(errs, ValidationError{
				Level:   Error,
				Path:    string(pod.ID),
				Message: fmt.Sprintf("no group exists at '%s' to contain this pod", pod.ID.Parent()),
			})
			continue
		}
		if _, ok := parent.Pods[pod.ID]; !ok {
			errs = append(errs, ValidationError{
				Level:   Error,
				Path:    string(pod.ID),
				Message: fmt.Sprintf("pod is not stored in its parent group '%s'", parent.ID),
			})
		}
	}
	return errs
}

// validateIDUniqueness checks, at every level of the tree, that no
// identifier is shared between an app and a pod, between an app and a
// subgroup, or between a pod and a subgroup of the same group.
func validateIDUniqueness(root *model.Group, _ model.PathID, _ FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	for _, node := range root.TransitiveGroups() {
		for id := range node.Apps {
			if _, ok := node.Pods[id]; ok {
				errs = append(errs, ValidationError{
					Level:   Error,
					Path:    string(id),
					Message: fmt.Sprintf("identifier '%s' is used by both an app and a pod in group '%s'", id, node.ID),
				})
			}
			if _, ok := node.Groups[id]; ok {
				errs = append(errs, ValidationError{
					Level:   Error,
					Path:    string(id),
					Message: fmt.Sprintf("identifier '%s' is used by both an app and a group in group '%s'", id, node.ID),
				})
			}
		}
		for id := range node.Pods {
			if _, ok := node.Groups[id]; ok {
				errs = append(errs, ValidationError{
					Level:   Error,
					Path:    string(id),
					Message: fmt.Sprintf("identifier '%s' is used by both a pod and a group in group '%s'", id, node.ID),
				})
			}
		}
	}
	return errs
}

// validateGroupNesting checks the parent-chaining rule at every level: a
// subgroup whose id's parent equals the owning group's id must be a direct
// entry of that group; otherwise the group located at the id's parent must
// contain it.
func validateGroupNesting(root *model.Group, _ model.PathID, _ FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	for _, node := range root.TransitiveGroups() {
		for _, sub := range node.Groups {
			if sub.ID.Parent() == node.ID {
				continue
			}
			parent := root.Group(sub.ID.Parent())
			if parent == nil {
				errs = append(errs, ValidationError{
					Level:   Error,
					Path:    string(sub.ID),
					Message: fmt.Sprintf("group '%s' is attached to '%s' but no group exists at its parent '%s'", sub.ID, node.ID, sub.ID.Parent()),
				})
				continue
			}
			if _, ok := parent.Groups[sub.ID]; !ok {
				errs = append(errs, ValidationError{
					Level:   Error,
					Path:    string(sub.ID),
					Message: fmt.Sprintf("group '%s' is not contained by its parent group '%s'", sub.ID, parent.ID),
				})
			}
		}
	}
	return errs
}

// validateDependencies checks that every declared inter-group dependency
// resolves to a group or runnable spec somewhere in the tree.
func validateDependencies(root *model.Group, _ model.PathID, _ FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	for _, node := range root.TransitiveGroups() {
		for _, dep := range node.Dependencies {
			target := dep.Canonicalize(node.ID)
			if root.Group(target) == nil && !root.Exists(target) {
				errs = append(errs, ValidationError{
					Level:   Error,
					Path:    entityPath(node.ID, "dependencies"),
					Message: fmt.Sprintf("dependency '%s' does not reference anything in the tree", target),
				})
			}
		}
	}
	return errs
}

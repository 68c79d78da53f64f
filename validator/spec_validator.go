package validator

import (
	"fmt"

	"github.com/harbormaster-io/harbormaster/model"
)

// appValidator is a spec-level validation rule over a single app.
type appValidator func(*model.App, FeatureSet) ValidationErrors

var appSpecValidators = []appValidator{
	validateAppResources,
	validateAppFeatureGates,
}

// CheckApp runs every spec-level rule over the app and returns the complete
// batch of violations, each tagged with the offending field's path.
func CheckApp(app *model.App, features FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	for _, validate := range appSpecValidators {
		errs = append(errs, validate(app, features)...)
	}
	return errs
}

func validateAppResources(app *model.App, _ FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	if app.CPUs < 0 {
		errs = append(errs, ValidationError{
			Level:   Error,
			Path:    fmt.Sprintf("%s/cpus", app.ID),
			Message: "cpus must not be negative",
		})
	}
	if app.Mem < 0 {
		errs = append(errs, ValidationError{
			Level:   Error,
			Path:    fmt.Sprintf("%s/mem", app.ID),
			Message: "mem must not be negative",
		})
	}
	if app.Disk < 0 {
		errs = append(errs, ValidationError{
			Level:   Error,
			Path:    fmt.Sprintf("%s/disk", app.ID),
			Message: "disk must not be negative",
		})
	}
	if app.Instances < 0 {
		errs = append(errs, ValidationError{
			Level:   Error,
			Path:    fmt.Sprintf("%s/instances", app.ID),
			Message: "instances must not be negative",
		})
	}
	return errs
}

func validateAppFeatureGates(app *model.App, features FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	if len(app.Secrets) > 0 && !features.Enabled(FeatureSecrets) {
		errs = append(errs, ValidationError{
			Level:   Error,
			Path:    fmt.Sprintf("%s/secrets", app.ID),
			Message: fmt.Sprintf("secrets are disabled; enable the '%s' feature to use them", FeatureSecrets),
		})
	}
	if app.GPUs != 0 && !features.Enabled(FeatureGPUResources) {
		errs = append(errs, ValidationError{
			Level:   Error,
			Path:    fmt.Sprintf("%s/gpus", app.ID),
			Message: fmt.Sprintf("gpu resources are disabled; enable the '%s' feature to use them", FeatureGPUResources),
		})
	}
	return errs
}

// podValidator is a spec-level validation rule over a single pod.
type podValidator func(*model.Pod, FeatureSet) ValidationErrors

var podSpecValidators = []podValidator{
	validatePodResources,
}

// CheckPod runs every spec-level rule over the pod.
func CheckPod(pod *model.Pod, features FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	for _, validate := range podSpecValidators {
		errs = append(errs, validate(pod, features)...)
	}
	return errs
}

func validatePodResources(pod *model.Pod, _ FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	if pod.Instances < 0 {
		errs = append(errs, ValidationError{
			Level:   Error,
			Path:    fmt.Sprintf("%s/instances", pod.ID),
			Message: "instances must not be negative",
		})
	}
	for _, container := range pod.Containers {
		if container.CPUs < 0 || container.Mem < 0 {
			errs = append(errs, ValidationError{
				Level:   Error,
				Path:    fmt.Sprintf("%s/containers/%s", pod.ID, container.Name),
				Message: "container resources must not be negative",
			})
		}
		if container.Name == "" {
			errs = append(errs, ValidationError{
				Level:   Error,
				Path:    fmt.Sprintf("%s/containers", pod.ID),
				Message: "containers must be named",
			})
		}
	}
	return errs
}

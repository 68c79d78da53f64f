package validator

import (
	"fmt"

	"github.com/harbormaster-io/harbormaster/model"
)

// updateValidator is a single validation rule over a raw partial-update
// payload, evaluated before the payload is resolved into a concrete Group.
type updateValidator func(update *model.GroupUpdate, base model.PathID, features FeatureSet) ValidationErrors

// groupUpdateValidators is populated in init: validateNestedGroupUpdates
// recurses through CheckGroupUpdate, so a composite literal here would form
// an initialization cycle.
var groupUpdateValidators []updateValidator

func init() {
	groupUpdateValidators = []updateValidator{
		validateExclusiveUpdateMode,
		validateUpdateID,
		validateNestedSpecs,
		validateNestedGroupUpdates,
	}
}

// CheckGroupUpdate validates a raw, possibly-relative update payload against
// base. Exactly one of the three update modes (structural edit, version
// rollback, scale factor) may be set; a payload specifying more than one is
// rejected regardless of anything else. Identifiers inside nested updates
// resolve against the nearest enclosing declared identifier before being
// handed to their own validators.
func CheckGroupUpdate(update *model.GroupUpdate, base model.PathID, features FeatureSet) ValidationResult {
	errs := ValidationErrors{}
	for _, validate := range groupUpdateValidators {
		errs = append(errs, validate(update, base, features)...)
	}
	return resultFrom(errs)
}

// validateExclusiveUpdateMode rejects payloads that mix a structural edit
// with a version rollback or a scale factor. A bare identifier is mode
// neutral: it only names the group a rollback or scale applies to, so
// {id, version} and {id, scaleBy} payloads are fine.
func validateExclusiveUpdateMode(update *model.GroupUpdate, base model.PathID, _ FeatureSet) ValidationErrors {
	modes := 0
	if update.HasStructuralPayload() {
		modes++
	}
	if update.Version != nil {
		modes++
	}
	if update.ScaleBy != nil {
		modes++
	}
	if modes > 1 {
		return ValidationErrors{{
			Level:   Error,
			Path:    string(update.ResolutionBase(base)),
			Message: "update may set only one of: a structural edit, a version rollback, or a scale factor",
		}}
	}
	return nil
}

func validateUpdateID(update *model.GroupUpdate, base model.PathID, _ FeatureSet) ValidationErrors {
	if update.ID == nil {
		return nil
	}
	if err := update.ID.ValidPathWithBase(base); err != nil {
		return ValidationErrors{{
			Level:   Error,
			Path:    string(*update.ID),
			Message: err.Error(),
		}}
	}
	return nil
}

// validateNestedSpecs resolves the update's apps and pods against the
// update's own scope and runs the spec-level validators over them.
func validateNestedSpecs(update *model.GroupUpdate, base model.PathID, features FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	scope := update.ResolutionBase(base)
	for _, app := range update.Apps {
		resolved := app.WithCanonicalID(scope)
		if err := resolved.ID.ValidPathWithBase(scope); err != nil {
			errs = append(errs, ValidationError{
				Level:   Error,
				Path:    string(app.ID),
				Message: err.Error(),
			})
		}
		errs = append(errs, CheckApp(resolved, features)...)
	}
	for _, pod := range update.Pods {
		resolved := pod.WithCanonicalID(scope)
		if err := resolved.ID.ValidPathWithBase(scope); err != nil {
			errs = append(errs, ValidationError{
				Level:   Error,
				Path:    string(pod.ID),
				Message: err.Error(),
			})
		}
		errs = append(errs, CheckPod(resolved, features)...)
	}
	if update.ScaleBy != nil && *update.ScaleBy < 0 {
		errs = append(errs, ValidationError{
			Level:   Error,
			Path:    fmt.Sprintf("%s/scaleBy", scope),
			Message: "scale factor must not be negative",
		})
	}
	return errs
}

// validateNestedGroupUpdates recurses into subgroup updates with the
// enclosing update's scope as their base.
func validateNestedGroupUpdates(update *model.GroupUpdate, base model.PathID, features FeatureSet) ValidationErrors {
	errs := ValidationErrors{}
	scope := update.ResolutionBase(base)
	for _, sub := range update.Groups {
		errs = append(errs, CheckGroupUpdate(sub, scope, features).Violations()...)
	}
	return errs
}

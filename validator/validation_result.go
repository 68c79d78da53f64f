package validator

import (
	"fmt"
	"strings"
)

// ValidationErrorLevel classifies the severity of a validation failure.
type ValidationErrorLevel int64

const (
	// Error level failures make the candidate unacceptable.
	Error ValidationErrorLevel = iota
	// Warning level failures are reported but do not reject the candidate.
	Warning
)

func (l ValidationErrorLevel) String() string {
	switch l {
	case Error:
		return "ERROR"
	case Warning:
		return "WARNING"
	}
	return "?"
}

// ValidationError is a single reported violation: a structural path locating
// the offending entity in the tree, a message, and a severity level.
type ValidationError struct {
	Level   ValidationErrorLevel `json:"level"`
	Path    string               `json:"path"`
	Message string               `json:"message"`
}

func (vr ValidationError) Error() string {
	if vr.Path == "" {
		return vr.Message
	}
	return fmt.Sprintf("%s: %s", vr.Path, vr.Message)
}

// ValidationErrors is a batch of violations collected across independent
// rules; a failure in one rule never suppresses evaluation of another.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, err := range v {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, ", ")
}

// AtLevel returns the subset of violations at the given level.
func (v ValidationErrors) AtLevel(level ValidationErrorLevel) ValidationErrors {
	errs := ValidationErrors{}
	for _, err := range v {
		if err.Level == level {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasPath reports whether any violation locates the given path.
func (v ValidationErrors) HasPath(path string) bool {
	for _, err := range v {
		if err.Path == path {
			return true
		}
	}
	return false
}

// ValidationResult is the two-case outcome of a validation run: Accepted, or
// Rejected with a non-empty batch of violations. Warnings do not reject.
type ValidationResult struct {
	violations ValidationErrors
}

// Accepted returns the result with no violations.
func Accepted() ValidationResult {
	return ValidationResult{}
}

// Rejected returns a result carrying the given violations.
func Rejected(errs ...ValidationError) ValidationResult {
	return ValidationResult{violations: errs}
}

// resultFrom folds a raw violation batch into a result.
func resultFrom(errs ValidationErrors) ValidationResult {
	return ValidationResult{violations: errs}
}

// IsAccepted reports whether the run produced no Error-level violations.
func (r ValidationResult) IsAccepted() bool {
	return len(r.violations.AtLevel(Error)) == 0
}

// Violations returns every collected violation, warnings included.
func (r ValidationResult) Violations() ValidationErrors {
	return r.violations
}

// And combines results rule-by-rule with a logical AND: the combined result
// is accepted only if every input is, and it carries the union of all
// violations so that every failure is visible simultaneously.
func (r ValidationResult) And(others ...ValidationResult) ValidationResult {
	combined := append(ValidationErrors{}, r.violations...)
	for _, other := range others {
		combined = append(combined, other.violations...)
	}
	return ValidationResult{violations: combined}
}

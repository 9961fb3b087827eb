package models

import "strings"

// ValidationErrorKind classifies structural problems found before execution.
type ValidationErrorKind string

const (
	ValidationUnknownNodeType      ValidationErrorKind = "UnknownNodeType"
	ValidationCyclicDependency     ValidationErrorKind = "CyclicDependency"
	ValidationDanglingConnection   ValidationErrorKind = "DanglingConnection"
	ValidationMissingRequiredField ValidationErrorKind = "MissingRequiredField"
	ValidationInvalidConfiguration ValidationErrorKind = "InvalidConfiguration"
)

// ValidationError is one structural problem. NodeIDs is set for cycles,
// Field for configuration problems.
type ValidationError struct {
	Kind    ValidationErrorKind `json:"kind"`
	NodeID  string              `json:"node_id,omitempty"`
	NodeIDs []string            `json:"node_ids,omitempty"`
	Field   string              `json:"field,omitempty"`
	Message string              `json:"message"`
}

func (e ValidationError) Error() string {
	var b strings.Builder

	b.WriteString(string(e.Kind))

	switch {
	case len(e.NodeIDs) > 0:
		b.WriteString("(" + strings.Join(e.NodeIDs, ", ") + ")")
	case e.NodeID != "" && e.Field != "":
		b.WriteString("(" + e.NodeID + ", " + e.Field + ")")
	case e.NodeID != "":
		b.WriteString("(" + e.NodeID + ")")
	}

	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}

	return b.String()
}

// ValidationResult collects every problem found in one pass.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors"`
	Alerts []Alert           `json:"alerts"`
}

// HasKind reports whether any error of the given kind was found.
func (r ValidationResult) HasKind(kind ValidationErrorKind) bool {
	for _, e := range r.Errors {
		if e.Kind == kind {
			return true
		}
	}

	return false
}

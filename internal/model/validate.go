package model

import (
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// ValidateMapping checks a Mapping before it is inserted.
// It returns a *ValidationError if any rules fail, or nil if the mapping is valid.
func ValidateMapping(m *Mapping) error {
	var ve ValidationError

	if m.SourceID <= 0 {
		ve.add("source_id", "must be positive")
	}
	if m.TargetID <= 0 {
		ve.add("target_id", "must be positive")
	}
	if m.ContainerID <= 0 {
		ve.add("container_id", "must be positive")
	}
	if strings.TrimSpace(m.SourceNumber) == "" {
		ve.add("source_number", "is required")
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateRoutingRule checks a RoutingRule before it is upserted.
func ValidateRoutingRule(r *RoutingRule) error {
	var ve ValidationError

	if r.CategoryID <= 0 {
		ve.add("category_id", "must be positive")
	}
	if r.ContainerID <= 0 {
		ve.add("container_id", "must be positive")
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

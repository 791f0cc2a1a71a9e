package model

import (
	"fmt"
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

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// Metadata limits.
const (
	MaxDescriptionLength = 2000
	MaxTags              = 20
	MaxTagLength         = 64
	MaxAttributes        = 50
	MaxAttributeKey      = 64
	MaxAttributeValue    = 1024
)

// ValidateDescription checks an event description.
func ValidateDescription(desc string) error {
	var ve ValidationError
	if len([]rune(desc)) > MaxDescriptionLength {
		ve.add("description", "must be %d characters or fewer", MaxDescriptionLength)
	}
	return ve.orNil()
}

// ValidateMetadata checks the structured event metadata for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the metadata is valid.
func ValidateMetadata(m *EventMetadata) error {
	var ve ValidationError
	if m == nil {
		return nil
	}

	if m.Location != nil {
		validateCoordinates(&ve, "metadata.location", m.Location.Latitude, m.Location.Longitude)
	}

	if p := m.Process; p != nil {
		if p.DurationHours != nil && *p.DurationHours < 0 {
			ve.add("metadata.process.duration_hours", "must not be negative")
		}
		if p.MoisturePct != nil && (*p.MoisturePct < 0 || *p.MoisturePct > 100) {
			ve.add("metadata.process.moisture_pct", "must be between 0 and 100, got %g", *p.MoisturePct)
		}
	}

	if r := m.Revert; r != nil && r.To != "" && !r.To.IsValid() {
		ve.add("metadata.revert.to", "invalid value %q", r.To)
	}

	if len(m.Tags) > MaxTags {
		ve.add("metadata.tags", "at most %d tags allowed, got %d", MaxTags, len(m.Tags))
	}
	for i, tag := range m.Tags {
		if strings.TrimSpace(tag) == "" || len(tag) > MaxTagLength {
			ve.add(fmt.Sprintf("metadata.tags[%d]", i), "must be 1-%d characters", MaxTagLength)
		}
	}

	if len(m.Attributes) > MaxAttributes {
		ve.add("metadata.attributes", "at most %d attributes allowed, got %d", MaxAttributes, len(m.Attributes))
	}
	for k, v := range m.Attributes {
		if k == "" || len(k) > MaxAttributeKey {
			ve.add("metadata.attributes", "key %q must be 1-%d characters", k, MaxAttributeKey)
		}
		if len(v) > MaxAttributeValue {
			ve.add("metadata.attributes."+k, "must be %d bytes or fewer", MaxAttributeValue)
		}
	}

	return ve.orNil()
}

func validateCoordinates(ve *ValidationError, prefix string, lat, lon *float64) {
	if lat != nil && (*lat < -90 || *lat > 90) {
		ve.add(prefix+".latitude", "must be between -90 and 90, got %g", *lat)
	}
	if lon != nil && (*lon < -180 || *lon > 180) {
		ve.add(prefix+".longitude", "must be between -180 and 180, got %g", *lon)
	}
}

// ValidateMeasurements rejects readings outside their physical range.
// Missing readings are allowed here; the quality gate treats them as failing.
func ValidateMeasurements(m Measurements) error {
	var ve ValidationError

	if m.MoisturePct != nil && (*m.MoisturePct < 0 || *m.MoisturePct > 100) {
		ve.add("measurements.moisture", "must be between 0 and 100, got %g", *m.MoisturePct)
	}
	if m.Defects != nil && *m.Defects < 0 {
		ve.add("measurements.defects", "must not be negative, got %d", *m.Defects)
	}
	if m.Density != nil && *m.Density <= 0 {
		ve.add("measurements.density", "must be positive, got %g", *m.Density)
	}

	sensory := []struct {
		name string
		v    *float64
	}{
		{"aroma", m.Aroma},
		{"acidity", m.Acidity},
		{"body", m.Body},
		{"flavor", m.Flavor},
	}
	for _, s := range sensory {
		if s.v != nil && (*s.v < 0 || *s.v > 10) {
			ve.add("measurements."+s.name, "must be between 0 and 10, got %g", *s.v)
		}
	}

	if m.SCAScore != nil && (*m.SCAScore < 0 || *m.SCAScore > 100) {
		ve.add("measurements.sca_score", "must be between 0 and 100, got %g", *m.SCAScore)
	}

	return ve.orNil()
}

// ValidateCertification checks a certification before it is attached.
func ValidateCertification(c *CertificationRecord) error {
	var ve ValidationError

	if strings.TrimSpace(c.Type) == "" {
		ve.add("type", "is required")
	}
	if strings.TrimSpace(c.IssuingBody) == "" {
		ve.add("issuing_body", "is required")
	}
	if strings.TrimSpace(c.CertificateNumber) == "" {
		ve.add("certificate_number", "is required")
	}
	if c.IssueDate.IsZero() {
		ve.add("issue_date", "is required")
	}
	if c.ExpiryDate.IsZero() {
		ve.add("expiry_date", "is required")
	}
	if !c.IssueDate.IsZero() && !c.ExpiryDate.IsZero() && !c.IssueDate.Before(c.ExpiryDate) {
		ve.add("expiry_date", "must be after issue_date")
	}

	return ve.orNil()
}

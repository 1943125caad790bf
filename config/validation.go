package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	errorskg "github.com/sweetpotato0/toolmesh/errors"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator provides configuration validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: []ValidationError{},
	}
}

// Add records a validation failure for field.
func (v *Validator) Add(field, message string) *Validator {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
	return v
}

// RequireNonEmpty validates that a string field is not empty
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "value cannot be empty")
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		v.Add(field, fmt.Sprintf("value must be positive, got %d", value))
	}
	return v
}

// RequireNonNegativeDuration validates that a duration is zero or greater
func (v *Validator) RequireNonNegativeDuration(field string, value time.Duration) *Validator {
	if value < 0 {
		v.Add(field, fmt.Sprintf("duration must not be negative, got %s", value))
	}
	return v
}

// ValidateOneOf validates that a string value is one of the allowed options
func (v *Validator) ValidateOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	return v.Add(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value))
}

// ValidateHTTPURL validates that value is an absolute http or https URL
func (v *Validator) ValidateHTTPURL(field, value string) *Validator {
	u, err := url.Parse(value)
	if err != nil {
		return v.Add(field, fmt.Sprintf("invalid URL: %v", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return v.Add(field, fmt.Sprintf("URL scheme must be http or https, got %q", u.Scheme))
	}
	if u.Host == "" {
		return v.Add(field, "URL must include a host")
	}
	return v
}

// HasErrors returns true if there are any validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns a combined error wrapping ErrInvalidConfig, or nil if no errors
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}

	var b strings.Builder
	for _, e := range v.errors {
		fmt.Fprintf(&b, "\n  - %s: %s", e.Field, e.Message)
	}
	return fmt.Errorf("%w:%s", errorskg.ErrInvalidConfig, b.String())
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// validateServer appends the problems of one server definition to v.
func (v *Validator) validateServer(prefix string, s ServerConfig) {
	v.RequireNonEmpty(prefix+".name", s.Name)
	switch s.Transport {
	case TransportSubprocess:
		v.RequireNonEmpty(prefix+".command", s.Command)
	case TransportHTTPStream:
		v.RequireNonEmpty(prefix+".url", s.URL)
		if s.URL != "" {
			v.ValidateHTTPURL(prefix+".url", s.URL)
		}
	default:
		v.ValidateOneOf(prefix+".transport", string(s.Transport),
			string(TransportSubprocess), string(TransportHTTPStream))
	}
}

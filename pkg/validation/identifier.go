// Package validation checks names before they are spliced into SQL text.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/theory-cloud/columntheory/pkg/errors"
)

// Identifier limits
const (
	MaxIdentifierLength = 300
	MaxNestedDepth      = 15
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	// Project ids also allow dashes and a domain prefix.
	projectPattern = regexp.MustCompile(`^[a-z][a-z0-9.:-]*[a-z0-9]$`)
)

// SecurityError represents an identifier that cannot be quoted safely.
type SecurityError struct {
	Type   string
	Detail string
}

func (e *SecurityError) Error() string {
	// The offending identifier is deliberately left out of the message.
	return fmt.Sprintf("security validation failed: %s: %s", e.Type, e.Detail)
}

func (e *SecurityError) Unwrap() error {
	return errors.ErrInvalidIdentifier
}

// ValidateIdentifier validates an entity, table, attribute or alias name.
func ValidateIdentifier(name string) error {
	if name == "" {
		return &SecurityError{Type: "InvalidIdentifier", Detail: "identifier cannot be empty"}
	}
	if len(name) > MaxIdentifierLength {
		return &SecurityError{Type: "InvalidIdentifier", Detail: "identifier exceeds maximum length"}
	}
	if containsControlCharacters(name) {
		return &SecurityError{Type: "InjectionAttempt", Detail: "identifier contains control characters"}
	}
	if !identifierPattern.MatchString(name) {
		return &SecurityError{Type: "InvalidIdentifier", Detail: "identifier must start with a letter or underscore and contain only letters, digits and underscores"}
	}
	return nil
}

// ValidateFieldPath validates a dotted path such as "orders.amount".
func ValidateFieldPath(path string) error {
	parts := strings.Split(path, ".")
	if len(parts) > MaxNestedDepth {
		return &SecurityError{Type: "InvalidIdentifier", Detail: "field path depth exceeds maximum"}
	}
	for _, part := range parts {
		if err := ValidateIdentifier(part); err != nil {
			return err
		}
	}
	return nil
}

// ValidateProject validates a warehouse project id.
func ValidateProject(project string) error {
	if project == "" {
		return nil
	}
	if containsControlCharacters(project) || !projectPattern.MatchString(project) {
		return &SecurityError{Type: "InvalidIdentifier", Detail: "project id contains invalid characters"}
	}
	return nil
}

func containsControlCharacters(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
